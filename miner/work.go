package miner

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus/ethash"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/rony4d/go-opera-devnode/evmcore"
	"github.com/rony4d/go-opera-devnode/inter"
	"github.com/rony4d/go-opera-devnode/ledger"
)

var (
	// two256 is a big integer representing 2^256
	two256 = new(big.Int).Exp(big.NewInt(2), big.NewInt(256), big.NewInt(0))

	// maxHash is the target of a block with difficulty 0 or 1.
	maxHash = common.HexToHash("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
)

// WorkIssuer hands out proof-of-work descriptors of the block that would be
// mined on top of the current tip.
type WorkIssuer struct {
	ledger  *ledger.Ledger
	builder *evmcore.Builder
	engine  *ethash.Ethash

	// legacy omits the block number from issued work, for miners that only
	// understand the three element form.
	legacy bool
}

// NewWorkIssuer creates a work issuer.
func NewWorkIssuer(l *ledger.Ledger, builder *evmcore.Builder, legacy bool) *WorkIssuer {
	return &WorkIssuer{
		ledger:  l,
		builder: builder,
		engine:  ethash.NewFaker(),
		legacy:  legacy,
	}
}

// PendingHeader returns the header of an empty block on top of the tip.
func (w *WorkIssuer) PendingHeader() *evmcore.EvmHeader {
	tip := w.ledger.Tip().Block
	h := w.builder.NextHeader(&tip.EvmHeader, tip.Time+1, nil)
	h.Root = tip.Root
	h.TxHash = types.EmptyRootHash
	h.ReceiptHash = types.EmptyRootHash
	return h
}

// CurrentWork returns the work descriptor of the pending block:
//   - PowHash: the ethash seal hash of the pending header
//   - SeedHash: the seed of the DAG epoch of the pending number
//   - Target: 2^256 / difficulty
//   - Number: the pending number, unless the issuer is in legacy mode
func (w *WorkIssuer) CurrentWork() inter.Work {
	header := w.PendingHeader().EthHeader()
	number := header.Number.Uint64()

	work := inter.Work{
		PowHash:  w.engine.SealHash(header),
		SeedHash: common.BytesToHash(ethash.SeedHash(number)),
		Target:   target(header.Difficulty),
	}
	if !w.legacy {
		work.Number = new(big.Int).Set(header.Number)
	}
	return work
}

func target(difficulty *big.Int) common.Hash {
	if difficulty == nil || difficulty.Cmp(common.Big1) <= 0 {
		return maxHash
	}
	return common.BytesToHash(new(big.Int).Div(two256, difficulty).Bytes())
}
