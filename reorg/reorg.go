// Package reorg rewrites the newest blocks of the ledger: it discards the
// last `depth` blocks and rebuilds the same number of blocks carrying the
// transactions a caller placed on each of them.
//
// A reorg either commits every rebuilt block at once or leaves the ledger
// exactly as it was.
package reorg

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/rony4d/go-opera-devnode/evmcore"
	"github.com/rony4d/go-opera-devnode/inter"
	"github.com/rony4d/go-opera-devnode/ledger"
)

var (
	committedMeter = metrics.NewRegisteredMeter("reorg/committed", nil)
	abortedMeter   = metrics.NewRegisteredMeter("reorg/aborted", nil)
	rebuiltMeter   = metrics.NewRegisteredMeter("reorg/blocks", nil)
	reorgTimer     = metrics.NewRegisteredTimer("reorg/time", nil)
)

// Engine performs reorgs on a ledger.
type Engine struct {
	ledger  *ledger.Ledger
	builder *evmcore.Builder

	// generation counts committed and attempted rebuilds. It is written into
	// the extra field of rebuilt headers so a rebuilt block never collides
	// with the block it replaces.
	generation uint64

	log log.Logger
}

// New creates a reorg engine building blocks with builder.
func New(l *ledger.Ledger, builder *evmcore.Builder) *Engine {
	return &Engine{
		ledger:  l,
		builder: builder,
		log:     log.New("module", "reorg"),
	}
}

// plan is a validated reorg.
type plan struct {
	first  uint64 // number of the first rebuilt block
	depth  uint64
	blocks [][]inter.TransactionData
	times  []uint64
}

// Reorg replaces the newest opts.Depth blocks. Validation runs against the
// tip seen by the mutator, so concurrent block production cannot slip
// between the checks and the rebuild.
//
// The context is only consulted before rebuilding starts; once blocks are
// being built the reorg runs to completion.
func (e *Engine) Reorg(ctx context.Context, opts inter.ReorgOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	var p *plan
	err := e.ledger.Mutate(func(batch *ledger.Batch) error {
		var err error
		if p, err = e.validate(batch, opts); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return e.rebuild(batch, p)
	})
	if err != nil {
		abortedMeter.Mark(1)
		e.log.Debug("Reorg aborted", "depth", opts.Depth, "pairs", len(opts.TxBlockPairs), "err", err)
		return inter.AsError(err)
	}

	committedMeter.Mark(1)
	rebuiltMeter.Mark(int64(p.depth))
	reorgTimer.UpdateSince(start)
	e.log.Info("Reorg committed", "depth", p.depth, "from", p.first, "txs", len(opts.TxBlockPairs), "elapsed", time.Since(start))
	return nil
}

func (e *Engine) validate(batch *ledger.Batch, opts inter.ReorgOptions) (*plan, error) {
	tip := uint64(batch.Len() - 1)
	if opts.Depth < 1 || opts.Depth > tip+1 {
		return nil, inter.InvalidReorgSpec("depth %d out of range [1, %d]", opts.Depth, tip+1)
	}

	p := &plan{
		first:  tip + 1 - opts.Depth,
		depth:  opts.Depth,
		blocks: make([][]inter.TransactionData, opts.Depth),
		times:  make([]uint64, opts.Depth),
	}
	for i, pair := range opts.TxBlockPairs {
		if pair.Offset >= opts.Depth {
			return nil, inter.InvalidReorgSpec("pair %d: offset %d out of range [0, %d)", i, pair.Offset, opts.Depth)
		}
		if pair.Tx.IsRaw() {
			if _, _, err := e.builder.CheckRaw(pair.Tx.Raw); err != nil {
				return nil, inter.DecodeError("pair %d: %v", i, err)
			}
		} else if _, err := e.builder.CheckRequest(pair.Tx.Request); err != nil {
			return nil, inter.InvalidReorgSpec("pair %d: %v", i, err)
		}
		p.blocks[pair.Offset] = append(p.blocks[pair.Offset], pair.Tx)
	}
	for i := range p.times {
		old, _ := batch.Block(p.first + uint64(i))
		p.times[i] = old.Time
	}
	return p, nil
}

// rebuild replaces the blocks from p.first onwards. Rebuilt blocks keep the
// timestamps of the blocks they replace.
func (e *Engine) rebuild(batch *ledger.Batch, p *plan) error {
	generation := atomic.AddUint64(&e.generation, 1)
	extra := bigendian.Uint64ToBytes(generation)

	if p.first == 0 {
		batch.Reset()
	} else if err := batch.Truncate(p.first - 1); err != nil {
		return err
	}

	for offset, txs := range p.blocks {
		statedb, err := batch.ParentState()
		if err != nil {
			return err
		}
		var parent *evmcore.EvmHeader
		if tip := batch.Tip(); tip != nil {
			parent = &tip.Block.EvmHeader
		}
		header := e.builder.NextHeader(parent, p.times[offset], extra)
		block, err := e.builder.Build(header, statedb, evmcore.BlockContent{Txs: txs}, batch.GetHash())
		if err != nil {
			return inter.ExecutionError("rebuilding block %d: %v", header.Number, err)
		}
		if err := batch.Append(block); err != nil {
			return err
		}
		e.log.Debug("Rebuilt block", "number", block.Number, "hash", block.Hash, "txs", len(block.Transactions), "gas", block.GasUsed)
	}
	return nil
}
