// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package evmcore

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/rony4d/go-opera-devnode/opera/contracts/evmwriter"
)

// StateProcessor applies transactions on top of a state.
//
// Unlike go-ethereum's processor, a transaction that cannot be applied
// (bad nonce, insufficient funds, block gas exhausted) does not invalidate
// the block: it keeps its position with a failed receipt and its state
// effects are rolled back. Dev tooling relies on seeing such transactions
// in the chain.
type StateProcessor struct {
	config   *params.ChainConfig
	vmConfig vm.Config
}

// NewStateProcessor initialises a new StateProcessor.
func NewStateProcessor(config *params.ChainConfig, vmConfig vm.Config) *StateProcessor {
	return &StateProcessor{
		config:   config,
		vmConfig: vmConfig,
	}
}

// Config returns the chain configuration transactions execute under.
func (p *StateProcessor) Config() *params.ChainConfig {
	return p.config
}

// VMConfig returns the VM configuration transactions execute under.
func (p *StateProcessor) VMConfig() vm.Config {
	return p.vmConfig
}

// NewBlockContext creates the EVM block context of a header.
func NewBlockContext(h *EvmHeader, getHash vm.GetHashFunc) vm.BlockContext {
	ctx := vm.BlockContext{
		CanTransfer: core.CanTransfer,
		Transfer:    core.Transfer,
		GetHash:     getHash,
		Coinbase:    h.Coinbase,
		BlockNumber: new(big.Int).Set(h.Number),
		Time:        new(big.Int).SetUint64(h.Time),
		Difficulty:  new(big.Int).Set(h.Difficulty),
		GasLimit:    h.GasLimit,
	}
	if h.BaseFee != nil {
		ctx.BaseFee = new(big.Int).Set(h.BaseFee)
	}
	return ctx
}

// BlockEnv is the execution environment of one block under construction or replay.
type BlockEnv struct {
	Header  *EvmHeader
	State   *state.StateDB
	EVM     *vm.EVM
	GasPool *core.GasPool
	Signer  types.Signer

	GasUsed  uint64
	Edits    [][]byte
	Txs      types.Transactions
	Receipts types.Receipts
}

// NewBlockEnv prepares the execution of a block with the given header on statedb.
func (p *StateProcessor) NewBlockEnv(header *EvmHeader, statedb *state.StateDB, getHash vm.GetHashFunc) *BlockEnv {
	blockCtx := NewBlockContext(header, getHash)
	return &BlockEnv{
		Header:  header,
		State:   statedb,
		EVM:     vm.NewEVM(blockCtx, vm.TxContext{}, statedb, p.config, p.vmConfig),
		GasPool: new(core.GasPool).AddGas(header.GasLimit),
		Signer:  types.MakeSigner(p.config, header.Number),
	}
}

// ApplyEdits runs privileged state edits through the state writer
// precompile. Edits must precede the transactions of a block.
func (p *StateProcessor) ApplyEdits(env *BlockEnv, edits [][]byte) error {
	if len(edits) == 0 {
		return nil
	}
	if len(env.Txs) != 0 {
		return errors.New("state edits after transactions")
	}
	writer, ok := p.vmConfig.StatePrecompiles[evmwriter.ContractAddress]
	if !ok {
		return errors.New("state writer precompile is not enabled")
	}
	txCtx := vm.TxContext{Origin: evmwriter.NodeAddress, GasPrice: new(big.Int)}
	for i, input := range edits {
		if _, _, err := writer.Run(env.State, env.EVM.Context, txCtx, evmwriter.NodeAddress, input, env.Header.GasLimit); err != nil {
			return fmt.Errorf("state edit %d: %w", i, err)
		}
	}
	env.State.Finalise(true)
	env.Edits = append(env.Edits, edits...)
	return nil
}

// ApplyTransaction executes tx in env and records it with its receipt.
// The returned error is the reason the transaction could not be applied; the
// transaction is recorded regardless.
func (p *StateProcessor) ApplyTransaction(env *BlockEnv, tx *types.Transaction) (*types.Receipt, error) {
	index := len(env.Txs)
	env.Txs = append(env.Txs, tx)

	receipt, err := p.applyTransaction(env, tx)
	if err != nil {
		log.Debug("Transaction included as failed", "hash", tx.Hash(), "index", index, "err", err)
		receipt = &types.Receipt{
			Type:              tx.Type(),
			Status:            types.ReceiptStatusFailed,
			CumulativeGasUsed: env.GasUsed,
			TxHash:            tx.Hash(),
			Logs:              []*types.Log{},
		}
		receipt.Bloom = types.CreateBloom(types.Receipts{receipt})
	}
	env.Receipts = append(env.Receipts, receipt)
	return receipt, err
}

func (p *StateProcessor) applyTransaction(env *BlockEnv, tx *types.Transaction) (*types.Receipt, error) {
	msg, err := tx.AsMessage(env.Signer, env.Header.BaseFee)
	if err != nil {
		return nil, err
	}

	snapshot := env.State.Snapshot()
	gasBefore := env.GasPool.Gas()
	logsBefore := len(env.State.Logs())

	env.EVM.Reset(core.NewEVMTxContext(msg), env.State)
	result, err := core.ApplyMessage(env.EVM, msg, env.GasPool)
	if err != nil {
		env.State.RevertToSnapshot(snapshot)
		*env.GasPool = core.GasPool(gasBefore)
		return nil, err
	}
	env.State.Finalise(true)
	env.GasUsed += result.UsedGas

	receipt := &types.Receipt{
		Type:              tx.Type(),
		CumulativeGasUsed: env.GasUsed,
		TxHash:            tx.Hash(),
		GasUsed:           result.UsedGas,
		Logs:              txLogs(env.State, logsBefore),
	}
	if result.Failed() {
		receipt.Status = types.ReceiptStatusFailed
	} else {
		receipt.Status = types.ReceiptStatusSuccessful
	}
	if msg.To() == nil {
		receipt.ContractAddress = crypto.CreateAddress(msg.From(), tx.Nonce())
	}
	receipt.Bloom = types.CreateBloom(types.Receipts{receipt})
	return receipt, nil
}

// txLogs returns the logs emitted since the state held `from` logs.
func txLogs(statedb *state.StateDB, from int) []*types.Log {
	all := statedb.Logs()
	if from >= len(all) {
		return []*types.Log{}
	}
	logs := make([]*types.Log, len(all)-from)
	copy(logs, all[from:])
	return logs
}

// Replay re-executes the first n transactions of block on statedb, which must
// hold the state of block's parent. The result is the state right before
// transaction n.
func (p *StateProcessor) Replay(block *EvmBlock, n int, statedb *state.StateDB, getHash vm.GetHashFunc) error {
	if n < 0 || n > len(block.Transactions) {
		return fmt.Errorf("transaction index %d out of range [0, %d]", n, len(block.Transactions))
	}
	header := block.EvmHeader
	env := p.NewBlockEnv(&header, statedb, getHash)
	if err := p.ApplyEdits(env, block.Edits); err != nil {
		return err
	}
	for _, tx := range block.Transactions[:n] {
		// failures were recorded when the block was sealed; they replay identically
		_, _ = p.ApplyTransaction(env, tx)
	}
	return nil
}

// Seal commits env's state and seals the block.
func (p *StateProcessor) Seal(env *BlockEnv) (*EvmBlock, error) {
	root, err := flush(env.State, p.config.IsEIP158(env.Header.Number))
	if err != nil {
		return nil, err
	}
	header := *env.Header
	header.Root = root
	header.GasUsed = env.GasUsed
	block := NewEvmBlock(&header, env.Txs, env.Receipts)
	block.Edits = env.Edits
	return block, nil
}

// Commit writes statedb to the state database and returns its root, so the
// state can be reopened later with StateAt.
func (p *StateProcessor) Commit(statedb *state.StateDB, number *big.Int) (common.Hash, error) {
	return flush(statedb, p.config.IsEIP158(number))
}

// StateAt opens the state with the given root.
func StateAt(db state.Database, root common.Hash) (*state.StateDB, error) {
	return state.New(root, db, nil)
}
