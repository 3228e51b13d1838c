package ethapi

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/rony4d/go-opera-devnode/inter"
	"github.com/rony4d/go-opera-devnode/integration"
	"github.com/rony4d/go-opera-devnode/ledger"
)

// PublicEthAPI provides the eth_* methods of a development node. Submitted
// transactions are mined right away, each into a block of its own.
type PublicEthAPI struct {
	n *integration.Node
}

// NewPublicEthAPI creates the eth_* service.
func NewPublicEthAPI(n *integration.Node) *PublicEthAPI {
	return &PublicEthAPI{n}
}

// ChainId returns the chain id transactions are signed for.
func (api *PublicEthAPI) ChainId() *hexutil.Big {
	return (*hexutil.Big)(api.n.Builder.Processor().Config().ChainID)
}

// BlockNumber returns the height of the chain.
func (api *PublicEthAPI) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(api.n.Ledger.Height())
}

// Accounts returns the dev accounts the node signs for.
func (api *PublicEthAPI) Accounts() []common.Address {
	return api.n.Signers.Accounts()
}

// GetWork returns the proof-of-work descriptor of the pending block.
func (api *PublicEthAPI) GetWork() inter.Work {
	return api.n.Work.CurrentWork()
}

// SendTransaction signs the request with a dev account and mines it.
func (api *PublicEthAPI) SendTransaction(ctx context.Context, args inter.TransactionRequest) (common.Hash, error) {
	if _, err := api.n.Builder.CheckRequest(&args); err != nil {
		return common.Hash{}, inter.DecodeError("%v", err)
	}
	return api.n.Miner.Send(ctx, inter.TransactionData{Request: &args})
}

// SendRawTransaction mines a signed transaction.
func (api *PublicEthAPI) SendRawTransaction(ctx context.Context, input hexutil.Bytes) (common.Hash, error) {
	if _, _, err := api.n.Builder.CheckRaw(input); err != nil {
		return common.Hash{}, err
	}
	return api.n.Miner.Send(ctx, inter.TransactionData{Raw: input})
}

// Call executes a read-only call and returns its output. A reverted call is
// reported as an execution error.
func (api *PublicEthAPI) Call(ctx context.Context, args inter.TransactionRequest, blockNrOrHash *rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	cc := inter.CallContext{BlockNumber: blockNrOrHash, TransactionIndex: inter.AllTransactions}
	traces, err := api.n.Simulator.Simulate(ctx, cc, inter.CallBundle{Transactions: []inter.TransactionRequest{args}})
	if err != nil {
		return nil, err
	}
	if traces[0].Failed {
		return nil, inter.ExecutionError("%s", traces[0].Error)
	}
	return traces[0].ReturnValue, nil
}

func (api *PublicEthAPI) stateAt(blockNrOrHash rpc.BlockNumberOrHash) (*state.StateDB, error) {
	snap, err := api.n.Ledger.Resolve(blockNrOrHash)
	if err != nil {
		return nil, err
	}
	statedb, err := snap.State()
	if err != nil {
		return nil, inter.ExecutionError("state of block %d: %v", snap.Block.Number, err)
	}
	return statedb, nil
}

// GetBalance returns the balance of addr at the given block.
func (api *PublicEthAPI) GetBalance(addr common.Address, blockNrOrHash rpc.BlockNumberOrHash) (*hexutil.Big, error) {
	statedb, err := api.stateAt(blockNrOrHash)
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(statedb.GetBalance(addr)), nil
}

// GetTransactionCount returns the nonce of addr at the given block.
func (api *PublicEthAPI) GetTransactionCount(addr common.Address, blockNrOrHash rpc.BlockNumberOrHash) (*hexutil.Uint64, error) {
	statedb, err := api.stateAt(blockNrOrHash)
	if err != nil {
		return nil, err
	}
	nonce := hexutil.Uint64(statedb.GetNonce(addr))
	return &nonce, nil
}

// GetCode returns the code of addr at the given block.
func (api *PublicEthAPI) GetCode(addr common.Address, blockNrOrHash rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	statedb, err := api.stateAt(blockNrOrHash)
	if err != nil {
		return nil, err
	}
	return statedb.GetCode(addr), nil
}

// GetStorageAt returns one storage slot of addr at the given block.
func (api *PublicEthAPI) GetStorageAt(addr common.Address, key string, blockNrOrHash rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	statedb, err := api.stateAt(blockNrOrHash)
	if err != nil {
		return nil, err
	}
	slot, err := decodeSlot(key)
	if err != nil {
		return nil, err
	}
	return statedb.GetState(addr, slot).Bytes(), nil
}

func decodeSlot(key string) (common.Hash, error) {
	b, err := hexutil.Decode(key)
	if err != nil {
		// quantities such as "0x0" are accepted too
		n, qerr := hexutil.DecodeBig(key)
		if qerr != nil {
			return common.Hash{}, inter.DecodeError("storage key %q: %v", key, err)
		}
		return common.BigToHash(n), nil
	}
	if len(b) > common.HashLength {
		return common.Hash{}, inter.DecodeError("storage key %q is longer than 32 bytes", key)
	}
	return common.BytesToHash(b), nil
}

// GetBlockByNumber returns the block with the given number, or null.
func (api *PublicEthAPI) GetBlockByNumber(number rpc.BlockNumber, fullTx bool) (map[string]interface{}, error) {
	snap, err := api.n.Ledger.SnapshotByNumber(number)
	return api.marshalSnapshot(snap, err, fullTx)
}

// GetBlockByHash returns the block with the given hash, or null.
func (api *PublicEthAPI) GetBlockByHash(hash common.Hash, fullTx bool) (map[string]interface{}, error) {
	snap, err := api.n.Ledger.SnapshotByHash(hash)
	return api.marshalSnapshot(snap, err, fullTx)
}

func (api *PublicEthAPI) marshalSnapshot(snap *ledger.Snapshot, err error, fullTx bool) (map[string]interface{}, error) {
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return rpcMarshalBlock(snap.Block, fullTx, api.signer()), nil
}

// GetTransactionByHash returns the transaction with the given hash, or null.
func (api *PublicEthAPI) GetTransactionByHash(hash common.Hash) (*RPCTransaction, error) {
	block, index, err := api.n.Ledger.Transaction(hash)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return newRPCTransaction(block, index, api.signer()), nil
}

// GetTransactionReceipt returns the receipt of the transaction with the
// given hash, or null.
func (api *PublicEthAPI) GetTransactionReceipt(hash common.Hash) (map[string]interface{}, error) {
	block, index, err := api.n.Ledger.Transaction(hash)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if index >= len(block.Receipts) {
		return nil, inter.ExecutionError("block %d has no receipt for transaction %d", block.Number, index)
	}
	return rpcMarshalReceipt(block, index, api.signer()), nil
}

func (api *PublicEthAPI) signer() types.Signer {
	return types.LatestSignerForChainID(api.n.Builder.Processor().Config().ChainID)
}

// PublicNetAPI offers network information.
type PublicNetAPI struct {
	n *integration.Node
}

// NewPublicNetAPI creates the net_* service.
func NewPublicNetAPI(n *integration.Node) *PublicNetAPI {
	return &PublicNetAPI{n}
}

// Version returns the network id.
func (api *PublicNetAPI) Version() string {
	return fmt.Sprintf("%d", api.n.Config.Rules.NetworkID)
}

// Listening reports false: the node has no peers.
func (api *PublicNetAPI) Listening() bool {
	return false
}

// PeerCount is always zero.
func (api *PublicNetAPI) PeerCount() hexutil.Uint {
	return 0
}

// PublicWeb3API offers client information.
type PublicWeb3API struct{}

// NewPublicWeb3API creates the web3_* service.
func NewPublicWeb3API() *PublicWeb3API {
	return &PublicWeb3API{}
}

// ClientVersion returns the node version.
func (PublicWeb3API) ClientVersion() string {
	return ClientIdentifier + "/v" + Version
}
