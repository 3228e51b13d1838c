// Package simulate executes bundles of calls against a historical point of
// the chain without committing anything.
//
// Calls of a bundle share one state: the effects of a call are visible to
// the calls after it. The state is a private copy opened from an immutable
// root, so the ledger never observes a simulation.
package simulate

import (
	"context"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/rony4d/go-opera-devnode/evmcore"
	"github.com/rony4d/go-opera-devnode/inter"
	"github.com/rony4d/go-opera-devnode/ledger"
)

var (
	bundleTimer  = metrics.NewRegisteredTimer("simulate/bundle", nil)
	callsMeter   = metrics.NewRegisteredMeter("simulate/calls", nil)
	revertsMeter = metrics.NewRegisteredMeter("simulate/failed", nil)
)

// Simulator runs call bundles on snapshots of a ledger.
type Simulator struct {
	ledger    *ledger.Ledger
	processor *evmcore.StateProcessor
	gasCap    uint64

	log log.Logger
}

// New creates a simulator. gasCap bounds the gas of every call; zero means
// no bound besides the gas a call asks for.
func New(l *ledger.Ledger, processor *evmcore.StateProcessor, gasCap uint64) *Simulator {
	return &Simulator{
		ledger:    l,
		processor: processor,
		gasCap:    gasCap,
		log:       log.New("module", "simulate"),
	}
}

// Simulate runs bundle at the position cc selects and returns one trace per
// call, in bundle order. Only a failure to position the bundle is an error;
// failing calls are reported in their traces.
func (s *Simulator) Simulate(ctx context.Context, cc inter.CallContext, bundle inter.CallBundle) ([]inter.CallTrace, error) {
	start := time.Now()
	defer bundleTimer.UpdateSince(start)

	snap, err := s.ledger.Resolve(cc.Block())
	if err != nil {
		return nil, err
	}
	statedb, err := snap.StateAtTransaction(s.processor, int(cc.TransactionIndex))
	if err != nil {
		return nil, inter.ExecutionError("replaying block %d: %v", snap.Block.Number, err)
	}

	blockCtx := evmcore.NewBlockContext(&snap.Block.EvmHeader, snap.GetHash())
	applyOverrides(&blockCtx, bundle.BlockOverride)

	traces := make([]inter.CallTrace, 0, len(bundle.Transactions))
	for i := range bundle.Transactions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		trace := s.call(blockCtx, statedb, &bundle.Transactions[i])
		if trace.Failed {
			revertsMeter.Mark(1)
		}
		traces = append(traces, trace)
	}
	callsMeter.Mark(int64(len(traces)))
	s.log.Debug("Bundle simulated", "block", snap.Block.Number, "index", cc.TransactionIndex, "calls", len(traces), "elapsed", time.Since(start))
	return traces, nil
}

// call executes one request on statedb and finalises its effects.
func (s *Simulator) call(blockCtx vm.BlockContext, statedb *state.StateDB, req *inter.TransactionRequest) inter.CallTrace {
	var from common.Address
	if req.From != nil {
		from = *req.From
	}
	call, err := evmcore.NewCallMsg(req, from, blockCtx.BaseFee)
	if err != nil {
		return failed(err)
	}

	gas := s.gasCap
	if req.Gas != nil && (gas == 0 || uint64(*req.Gas) < gas) {
		gas = uint64(*req.Gas)
	}
	if gas == 0 {
		gas = blockCtx.GasLimit
	}
	msg := call.Message(statedb.GetNonce(from), gas)

	evm := vm.NewEVM(evmcore.CallContext(blockCtx, call), core.NewEVMTxContext(msg), statedb, s.processor.Config(), s.processor.VMConfig())
	snapshot := statedb.Snapshot()
	logsBefore := len(statedb.Logs())

	result, err := core.ApplyMessage(evm, msg, new(core.GasPool).AddGas(math.MaxUint64))
	if err != nil {
		statedb.RevertToSnapshot(snapshot)
		return failed(err)
	}
	statedb.Finalise(true)

	trace := inter.CallTrace{
		Gas:         hexutil.Uint64(result.UsedGas),
		Failed:      result.Failed(),
		ReturnValue: result.ReturnData,
		Logs:        callLogs(statedb, logsBefore),
	}
	if result.Err != nil {
		trace.Error = result.Err.Error()
	}
	return trace
}

func failed(err error) inter.CallTrace {
	return inter.CallTrace{
		Failed: true,
		Error:  err.Error(),
		Logs:   []*types.Log{},
	}
}

func callLogs(statedb *state.StateDB, from int) []*types.Log {
	all := statedb.Logs()
	if from >= len(all) {
		return []*types.Log{}
	}
	return append([]*types.Log(nil), all[from:]...)
}

// applyOverrides replaces fields of the block context. Nothing is written
// back to the block.
func applyOverrides(blockCtx *vm.BlockContext, o *inter.BlockOverrides) {
	if o == nil {
		return
	}
	if o.Number != nil {
		blockCtx.BlockNumber = inter.ToBig(o.Number)
	}
	if o.Difficulty != nil {
		blockCtx.Difficulty = inter.ToBig(o.Difficulty)
	}
	if o.Time != nil {
		blockCtx.Time = new(big.Int).SetUint64(uint64(*o.Time))
	}
	if o.GasLimit != nil {
		blockCtx.GasLimit = uint64(*o.GasLimit)
	}
	if o.Coinbase != nil {
		blockCtx.Coinbase = *o.Coinbase
	}
	if o.BaseFee != nil {
		blockCtx.BaseFee = inter.ToBig(o.BaseFee)
	}
	if len(o.BlockHash) != 0 {
		hashes, base := o.BlockHash, blockCtx.GetHash
		blockCtx.GetHash = func(n uint64) common.Hash {
			if h, ok := hashes[n]; ok {
				return h
			}
			if base == nil {
				return common.Hash{}
			}
			return base(n)
		}
	}
}
