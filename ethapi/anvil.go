package ethapi

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/rony4d/go-opera-devnode/inter"
	"github.com/rony4d/go-opera-devnode/integration"
)

// AnvilAPI manipulates the chain of a development node.
type AnvilAPI struct {
	n *integration.Node
}

// NewAnvilAPI creates the anvil_* service.
func NewAnvilAPI(n *integration.Node) *AnvilAPI {
	return &AnvilAPI{n}
}

// Reorg replaces the last opts.Depth blocks with blocks holding the given
// transactions. The chain height does not change.
func (api *AnvilAPI) Reorg(ctx context.Context, opts inter.ReorgOptions) error {
	return api.n.Reorg.Reorg(ctx, opts)
}

// Mine mines the given number of empty blocks, one when omitted.
func (api *AnvilAPI) Mine(ctx context.Context, blocks *hexutil.Uint64) error {
	n := uint64(1)
	if blocks != nil {
		n = uint64(*blocks)
	}
	_, err := api.n.Miner.MineEmpty(ctx, n)
	return err
}

// SetBalance sets the balance of addr.
func (api *AnvilAPI) SetBalance(ctx context.Context, addr common.Address, balance hexutil.Big) error {
	return api.n.Miner.SetBalance(ctx, addr, balance.ToInt())
}

// SetNonce sets the nonce of addr.
func (api *AnvilAPI) SetNonce(ctx context.Context, addr common.Address, nonce hexutil.Uint64) error {
	return api.n.Miner.SetNonce(ctx, addr, uint64(nonce))
}

// SetCode replaces the code of addr.
func (api *AnvilAPI) SetCode(ctx context.Context, addr common.Address, code hexutil.Bytes) error {
	return api.n.Miner.SetCode(ctx, addr, code)
}

// SetStorageAt writes one storage slot of addr.
func (api *AnvilAPI) SetStorageAt(ctx context.Context, addr common.Address, slot hexutil.Big, value common.Hash) (bool, error) {
	if err := api.n.Miner.SetStorageAt(ctx, addr, common.BigToHash(slot.ToInt()), value); err != nil {
		return false, err
	}
	return true, nil
}

// EvmAPI offers the evm_* methods of a development node.
type EvmAPI struct {
	n *integration.Node
}

// NewEvmAPI creates the evm_* service.
func NewEvmAPI(n *integration.Node) *EvmAPI {
	return &EvmAPI{n}
}

// Mine mines one empty block.
func (api *EvmAPI) Mine(ctx context.Context) (string, error) {
	if _, err := api.n.Miner.MineEmpty(ctx, 1); err != nil {
		return "", err
	}
	return "0x0", nil
}

// TraceAPI simulates call bundles.
type TraceAPI struct {
	n *integration.Node
}

// NewTraceAPI creates the trace_* service.
func NewTraceAPI(n *integration.Node) *TraceAPI {
	return &TraceAPI{n}
}

// CallMany runs the calls of bundle in order on one shared state. Without a
// context the bundle starts at index 0 of the latest block.
func (api *TraceAPI) CallMany(ctx context.Context, bundle inter.CallBundle, cc *inter.CallContext) ([]inter.CallTrace, error) {
	var pos inter.CallContext
	if cc != nil {
		pos = *cc
	}
	return api.n.Simulator.Simulate(ctx, pos, bundle)
}

// DebugAPI offers state inspection methods.
type DebugAPI struct {
	n *integration.Node
}

// NewDebugAPI creates the debug_* service.
func NewDebugAPI(n *integration.Node) *DebugAPI {
	return &DebugAPI{n}
}

// StorageRangeAt returns up to maxResult storage slots of addr as of
// transaction txIndex of the block, starting at the hashed key keyStart.
func (api *DebugAPI) StorageRangeAt(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash, txIndex int, addr common.Address, keyStart hexutil.Bytes, maxResult int) (inter.StorageRangeResult, error) {
	if maxResult < 0 {
		return inter.StorageRangeResult{}, inter.DecodeError("negative maxResult %d", maxResult)
	}
	return api.n.Storage.Page(ctx, blockNrOrHash, txIndex, addr, keyStart, maxResult)
}
