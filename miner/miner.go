// Package miner produces blocks on top of the ledger tip: blocks carrying
// submitted transactions, empty blocks, and blocks applying privileged
// state edits. It also issues proof-of-work descriptors of the pending block.
package miner

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/rony4d/go-opera-devnode/evmcore"
	"github.com/rony4d/go-opera-devnode/inter"
	"github.com/rony4d/go-opera-devnode/ledger"
	"github.com/rony4d/go-opera-devnode/opera/contracts/evmwriter"
)

var (
	minedMeter = metrics.NewRegisteredMeter("miner/blocks", nil)
	txsMeter   = metrics.NewRegisteredMeter("miner/txs", nil)
	editsMeter = metrics.NewRegisteredMeter("miner/edits", nil)
)

// Miner seals blocks onto the ledger.
type Miner struct {
	ledger  *ledger.Ledger
	builder *evmcore.Builder
	now     func() time.Time

	log log.Logger
}

// New creates a miner stamping blocks with the wall clock.
func New(l *ledger.Ledger, builder *evmcore.Builder) *Miner {
	return &Miner{
		ledger:  l,
		builder: builder,
		now:     time.Now,
		log:     log.New("module", "miner"),
	}
}

// Mine seals one block with content on top of the tip.
func (m *Miner) Mine(ctx context.Context, content evmcore.BlockContent) (*evmcore.EvmBlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var block *evmcore.EvmBlock
	err := m.ledger.Mutate(func(batch *ledger.Batch) error {
		statedb, err := batch.ParentState()
		if err != nil {
			return err
		}
		parent := batch.Tip().Block
		header := m.builder.NextHeader(&parent.EvmHeader, uint64(m.now().Unix()), nil)
		block, err = m.builder.Build(header, statedb, content, batch.GetHash())
		if err != nil {
			return err
		}
		return batch.Append(block)
	})
	if err != nil {
		return nil, inter.AsError(err)
	}

	minedMeter.Mark(1)
	txsMeter.Mark(int64(len(block.Transactions)))
	editsMeter.Mark(int64(len(block.Edits)))
	m.log.Debug("Block mined", "number", block.Number, "hash", block.Hash, "txs", len(block.Transactions), "edits", len(block.Edits), "gas", block.GasUsed)
	return block, nil
}

// MineEmpty seals n empty blocks.
func (m *Miner) MineEmpty(ctx context.Context, n uint64) ([]*evmcore.EvmBlock, error) {
	blocks := make([]*evmcore.EvmBlock, 0, n)
	for i := uint64(0); i < n; i++ {
		block, err := m.Mine(ctx, evmcore.BlockContent{})
		if err != nil {
			return blocks, err
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// Send mines a block containing the transaction and returns its hash. A
// transaction that cannot be executed is still mined, with a failed receipt.
func (m *Miner) Send(ctx context.Context, d inter.TransactionData) (common.Hash, error) {
	block, err := m.Mine(ctx, evmcore.BlockContent{Txs: []inter.TransactionData{d}})
	if err != nil {
		return common.Hash{}, err
	}
	return block.Transactions[0].Hash(), nil
}

// SetBalance mines a block setting the balance of addr.
func (m *Miner) SetBalance(ctx context.Context, addr common.Address, balance *big.Int) error {
	return m.edit(ctx, "setBalance", addr, balance)
}

// SetNonce mines a block setting the nonce of addr.
func (m *Miner) SetNonce(ctx context.Context, addr common.Address, nonce uint64) error {
	return m.edit(ctx, "setNonce", addr, new(big.Int).SetUint64(nonce))
}

// SetCode mines a block replacing the code of addr.
func (m *Miner) SetCode(ctx context.Context, addr common.Address, code []byte) error {
	return m.edit(ctx, "setCode", addr, code)
}

// SetStorageAt mines a block writing one storage slot of addr.
func (m *Miner) SetStorageAt(ctx context.Context, addr common.Address, key, value common.Hash) error {
	return m.edit(ctx, "setStorage", addr, [32]byte(key), [32]byte(value))
}

func (m *Miner) edit(ctx context.Context, method string, args ...interface{}) error {
	input, err := evmwriter.Pack(method, args...)
	if err != nil {
		return inter.DecodeError("%s: %v", method, err)
	}
	_, err = m.Mine(ctx, evmcore.BlockContent{Edits: [][]byte{input}})
	return err
}

// Run mines an empty block every interval until ctx is done.
func (m *Miner) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	m.log.Info("Interval mining started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.log.Info("Interval mining stopped")
			return
		case <-ticker.C:
			if _, err := m.Mine(ctx, evmcore.BlockContent{}); err != nil && ctx.Err() == nil {
				m.log.Warn("Failed to mine block", "err", err)
			}
		}
	}
}
