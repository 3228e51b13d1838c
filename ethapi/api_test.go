package ethapi

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-opera-devnode/inter"
	"github.com/rony4d/go-opera-devnode/integration"
	"github.com/rony4d/go-opera-devnode/opera/genesis"
)

var storeAddr = common.HexToAddress("0x5700000000000000000000000000000000000001")

func newTestClient(t *testing.T, cfg integration.PresetConfig) (*integration.Node, *rpc.Client) {
	t.Helper()
	cfg.Accounts = 3
	g := genesis.New(genesis.DefaultTime)
	// stores calldata word 0 in slot 0, returns slot 0 on empty calldata
	g.Alloc[storeAddr] = genesis.Account{Code: hexutil.MustDecode("0x3615600c57600035600055005b60005460005260206000f3")}
	node, err := integration.NewNode(cfg, g)
	require.NoError(t, err)

	srv, err := NewServer(node, nil)
	require.NoError(t, err)
	client := rpc.DialInProc(srv)
	t.Cleanup(func() {
		client.Close()
		srv.Stop()
	})
	return node, client
}

func errorCode(t *testing.T, err error) int {
	t.Helper()
	require.Error(t, err)
	rpcErr, ok := err.(rpc.Error)
	require.True(t, ok, "not an rpc error: %v", err)
	return rpcErr.ErrorCode()
}

func TestEthAPI_sendAndRead(t *testing.T) {
	require := require.New(t)
	node, client := newTestClient(t, integration.DefaultPreset())
	ctx := context.Background()

	var accounts []common.Address
	require.NoError(client.CallContext(ctx, &accounts, "eth_accounts"))
	require.Len(accounts, 3)

	var chainID hexutil.Big
	require.NoError(client.CallContext(ctx, &chainID, "eth_chainId"))
	require.Equal(node.Config.Rules.NetworkID, chainID.ToInt().Uint64())

	var hash common.Hash
	require.NoError(client.CallContext(ctx, &hash, "eth_sendTransaction", map[string]interface{}{
		"from":  accounts[0],
		"to":    accounts[1],
		"value": "0x2a",
	}))

	var number hexutil.Uint64
	require.NoError(client.CallContext(ctx, &number, "eth_blockNumber"))
	require.Equal(hexutil.Uint64(1), number)

	var receipt map[string]interface{}
	require.NoError(client.CallContext(ctx, &receipt, "eth_getTransactionReceipt", hash))
	require.Equal("0x1", receipt["status"])
	require.Equal("0x1", receipt["blockNumber"])

	var tx RPCTransaction
	require.NoError(client.CallContext(ctx, &tx, "eth_getTransactionByHash", hash))
	require.Equal(accounts[0], tx.From)
	require.Equal(big.NewInt(0x2a), tx.Value.ToInt())

	var block map[string]interface{}
	require.NoError(client.CallContext(ctx, &block, "eth_getBlockByNumber", "latest", false))
	require.Equal([]interface{}{hash.Hex()}, block["transactions"])

	var balance hexutil.Big
	require.NoError(client.CallContext(ctx, &balance, "eth_getBalance", accounts[1], "latest"))
	want := new(big.Int).Add(node.Config.Balance, big.NewInt(0x2a))
	require.Equal(want, balance.ToInt())

	var nonce hexutil.Uint64
	require.NoError(client.CallContext(ctx, &nonce, "eth_getTransactionCount", accounts[0], "latest"))
	require.Equal(hexutil.Uint64(1), nonce)

	// unknown objects are null, not errors
	var missing map[string]interface{}
	require.NoError(client.CallContext(ctx, &missing, "eth_getBlockByNumber", "0x10", false))
	require.Nil(missing)
	require.NoError(client.CallContext(ctx, &missing, "eth_getTransactionReceipt", common.HexToHash("0x01")))
	require.Nil(missing)
}

func TestEthAPI_sendRawTransaction(t *testing.T) {
	require := require.New(t)
	node, client := newTestClient(t, integration.DefaultPreset())
	from, to := node.Signers.Accounts()[0], node.Signers.Accounts()[1]

	tx, err := node.Signers.Sign(from, &types.LegacyTx{
		GasPrice: big.NewInt(2 * params.GWei),
		Gas:      params.TxGas,
		To:       &to,
		Value:    big.NewInt(1),
	})
	require.NoError(err)
	raw, err := tx.MarshalBinary()
	require.NoError(err)

	var hash common.Hash
	require.NoError(client.CallContext(context.Background(), &hash, "eth_sendRawTransaction", hexutil.Bytes(raw)))
	require.Equal(tx.Hash(), hash)

	err = client.CallContext(context.Background(), &hash, "eth_sendRawTransaction", "0x01")
	require.Equal(inter.CodeInvalidParams, errorCode(t, err))
	require.Equal(uint64(1), node.Ledger.Height())
}

func TestEthAPI_getWork(t *testing.T) {
	tests := []struct {
		name   string
		preset integration.PresetConfig
		elems  int
	}{
		{"default", integration.DefaultPreset(), 4},
		{"legacy", integration.LegacyPreset(), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, client := newTestClient(t, tt.preset)

			var elems []string
			require.NoError(t, client.CallContext(context.Background(), &elems, "eth_getWork"))
			require.Len(t, elems, tt.elems)
			require.Equal(t, node.Work.CurrentWork().PowHash.Hex(), elems[0])
			if tt.elems == 4 {
				require.Equal(t, "0x1", elems[3])
			}
		})
	}
}

func TestAnvilAPI_reorg(t *testing.T) {
	require := require.New(t)
	node, client := newTestClient(t, integration.DefaultPreset())
	ctx := context.Background()
	accounts := node.Signers.Accounts()

	require.NoError(client.CallContext(ctx, nil, "anvil_mine", hexutil.Uint64(3)))
	require.Equal(uint64(3), node.Ledger.Height())
	old, err := node.Ledger.BlockByNumber(3)
	require.NoError(err)

	opts := json.RawMessage(`{"depth": 2, "tx_block_pairs": [
		[{"from": "` + accounts[0].Hex() + `", "to": "` + accounts[1].Hex() + `", "value": "0x1"}, 0],
		[{"from": "` + accounts[1].Hex() + `", "to": "` + accounts[2].Hex() + `", "value": "0x2"}, "0x1"]
	]}`)
	require.NoError(client.CallContext(ctx, nil, "anvil_reorg", opts))
	require.Equal(uint64(3), node.Ledger.Height())

	for n := uint64(2); n <= 3; n++ {
		b, err := node.Ledger.BlockByNumber(n)
		require.NoError(err)
		require.Len(b.Transactions, 1, "block %d", n)
	}
	var block map[string]interface{}
	require.NoError(client.CallContext(ctx, &block, "eth_getBlockByHash", old.Hash, false))
	require.Nil(block, "discarded blocks are gone")

	tests := []struct {
		name string
		opts string
	}{
		{"depth too large", `{"depth": 9}`},
		{"missing depth", `{"txBlockPairs": []}`},
		{"malformed pair", `{"depth": 1, "txBlockPairs": [[null, 0]]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.CallContext(ctx, nil, "anvil_reorg", json.RawMessage(tt.opts))
			assert.Equal(t, inter.CodeInvalidParams, errorCode(t, err))
			assert.Equal(t, uint64(3), node.Ledger.Height())
		})
	}
}

func TestAnvilAPI_stateEdits(t *testing.T) {
	require := require.New(t)
	_, client := newTestClient(t, integration.DefaultPreset())
	ctx := context.Background()
	acc := common.HexToAddress("0x1234")
	latest := "latest"

	require.NoError(client.CallContext(ctx, nil, "anvil_setBalance", acc, "0x3e8"))
	require.NoError(client.CallContext(ctx, nil, "anvil_setNonce", acc, "0x7"))
	require.NoError(client.CallContext(ctx, nil, "anvil_setCode", acc, "0x6000"))
	var ok bool
	require.NoError(client.CallContext(ctx, &ok, "anvil_setStorageAt", acc, "0x1", common.HexToHash("0xff")))
	require.True(ok)

	var balance hexutil.Big
	require.NoError(client.CallContext(ctx, &balance, "eth_getBalance", acc, latest))
	require.Equal(int64(1000), balance.ToInt().Int64())

	var nonce hexutil.Uint64
	require.NoError(client.CallContext(ctx, &nonce, "eth_getTransactionCount", acc, latest))
	require.Equal(hexutil.Uint64(7), nonce)

	var code hexutil.Bytes
	require.NoError(client.CallContext(ctx, &code, "eth_getCode", acc, latest))
	require.Equal(hexutil.Bytes{0x60, 0x00}, code)

	var value hexutil.Bytes
	require.NoError(client.CallContext(ctx, &value, "eth_getStorageAt", acc, "0x1", latest))
	require.Equal(common.HexToHash("0xff").Bytes(), []byte(value))

	var mined string
	require.NoError(client.CallContext(ctx, &mined, "evm_mine"))
	require.Equal("0x0", mined)
	var number hexutil.Uint64
	require.NoError(client.CallContext(ctx, &number, "eth_blockNumber"))
	require.Equal(hexutil.Uint64(5), number)
}

func TestTraceAPI_callMany(t *testing.T) {
	require := require.New(t)
	node, client := newTestClient(t, integration.DefaultPreset())
	ctx := context.Background()

	bundle := json.RawMessage(`{"transactions": [
		{"to": "` + storeAddr.Hex() + `", "data": "0x000000000000000000000000000000000000000000000000000000000000002a"},
		{"to": "` + storeAddr.Hex() + `"}
	]}`)
	var traces []inter.CallTrace
	require.NoError(client.CallContext(ctx, &traces, "trace_callMany", bundle))
	require.Len(traces, 2)
	require.False(traces[1].Failed)
	require.Equal(common.HexToHash("0x2a").Bytes(), []byte(traces[1].ReturnValue))
	require.Equal(uint64(0), node.Ledger.Height())

	// an explicit context pins the bundle to a block
	require.NoError(client.CallContext(ctx, &traces, "trace_callMany", bundle, map[string]interface{}{
		"blockNumber":      "0x0",
		"transactionIndex": 0,
	}))
	require.Len(traces, 2)

	err := client.CallContext(ctx, &traces, "trace_callMany", bundle, map[string]interface{}{"blockNumber": "0x9"})
	require.Equal(inter.CodeNotFound, errorCode(t, err))
}

// TestTraceAPI_callMany_transactionIndex verifies that an omitted index runs
// the bundle before the first transaction of the block.
func TestTraceAPI_callMany_transactionIndex(t *testing.T) {
	require := require.New(t)
	node, client := newTestClient(t, integration.DefaultPreset())
	ctx := context.Background()

	var hash common.Hash
	require.NoError(client.CallContext(ctx, &hash, "eth_sendTransaction", map[string]interface{}{
		"from": node.Signers.Accounts()[0],
		"to":   storeAddr,
		"data": common.HexToHash("0x07"),
	}))
	require.Equal(uint64(1), node.Ledger.Height())

	load := json.RawMessage(`{"transactions": [{"to": "` + storeAddr.Hex() + `"}]}`)
	for _, tt := range []struct {
		name string
		cc   interface{}
		want common.Hash
	}{
		{"omitted index", map[string]interface{}{"blockNumber": "0x1"}, common.Hash{}},
		{"index 0", map[string]interface{}{"blockNumber": "0x1", "transactionIndex": 0}, common.Hash{}},
		{"after all transactions", map[string]interface{}{"blockNumber": "0x1", "transactionIndex": -1}, common.HexToHash("0x07")},
		{"index past the end", map[string]interface{}{"blockNumber": "0x1", "transactionIndex": 5}, common.HexToHash("0x07")},
		{"no context", nil, common.Hash{}},
	} {
		var traces []inter.CallTrace
		args := []interface{}{load}
		if tt.cc != nil {
			args = append(args, tt.cc)
		}
		require.NoError(client.CallContext(ctx, &traces, "trace_callMany", args...), tt.name)
		require.Len(traces, 1, tt.name)
		require.Equal(tt.want.Bytes(), []byte(traces[0].ReturnValue), tt.name)
	}
}

func TestDebugAPI_storageRangeAt(t *testing.T) {
	require := require.New(t)
	node, client := newTestClient(t, integration.DefaultPreset())
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		require.NoError(node.Miner.SetStorageAt(ctx, storeAddr, common.BigToHash(big.NewInt(i)), common.BigToHash(big.NewInt(i*10))))
	}

	var seen []common.Hash
	var start hexutil.Bytes
	for {
		var res inter.StorageRangeResult
		require.NoError(client.CallContext(ctx, &res, "debug_storageRangeAt", "latest", -1, storeAddr, start, 2))
		for k := range res.Storage {
			seen = append(seen, k)
		}
		if res.NextKey == nil {
			break
		}
		start = res.NextKey.Bytes()
	}
	require.Len(seen, 3)

	var res inter.StorageRangeResult
	err := client.CallContext(ctx, &res, "debug_storageRangeAt", "latest", -1, common.HexToAddress("0x0bad"), hexutil.Bytes{}, 2)
	require.Equal(inter.CodeNotFound, errorCode(t, err))
}

func TestNewServer_namespaces(t *testing.T) {
	node, err := integration.NewNode(integration.DefaultPreset(), genesis.New(genesis.DefaultTime))
	require.NoError(t, err)
	srv, err := NewServer(node, []string{"eth"})
	require.NoError(t, err)
	defer srv.Stop()
	client := rpc.DialInProc(srv)
	defer client.Close()

	var number hexutil.Uint64
	require.NoError(t, client.CallContext(context.Background(), &number, "eth_blockNumber"))
	err = client.CallContext(context.Background(), nil, "anvil_mine")
	require.Error(t, err, "anvil is not registered")
}
