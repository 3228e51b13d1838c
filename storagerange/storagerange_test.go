package storagerange_test

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-opera-devnode/evmcore"
	"github.com/rony4d/go-opera-devnode/inter"
	"github.com/rony4d/go-opera-devnode/integration"
	"github.com/rony4d/go-opera-devnode/opera/genesis"
)

const slotCount = 25

var (
	tokenAddr = common.HexToAddress("0x5700000000000000000000000000000000000010")
	storeAddr = common.HexToAddress("0x5700000000000000000000000000000000000001")
)

func slot(i int) common.Hash {
	return common.BigToHash(new(big.Int).Lsh(big.NewInt(1), uint(i)))
}

func newNode(t *testing.T) *integration.Node {
	t.Helper()
	cfg := integration.DefaultPreset()
	cfg.Accounts = 1
	g := genesis.New(genesis.DefaultTime)
	storage := make(map[common.Hash]common.Hash, slotCount)
	for i := 0; i < slotCount; i++ {
		storage[slot(i)] = common.BigToHash(big.NewInt(int64(i + 1)))
	}
	g.Alloc[tokenAddr] = genesis.Account{Code: []byte{0x00}, Storage: storage}
	g.Alloc[storeAddr] = genesis.Account{Code: hexutil.MustDecode("0x3615600c57600035600055005b60005460005260206000f3")}
	node, err := integration.NewNode(cfg, g)
	require.NoError(t, err)
	return node
}

// walk collects every page of tokenAddr starting from the zero key.
func walk(t *testing.T, p func(start []byte) inter.StorageRangeResult) (map[common.Hash]inter.StorageEntry, int) {
	t.Helper()
	all := make(map[common.Hash]inter.StorageEntry)
	var start []byte
	pages := 0
	for {
		res := p(start)
		pages++
		var last common.Hash
		for k, e := range res.Storage {
			_, dup := all[k]
			require.False(t, dup, "key %x returned twice", k)
			all[k] = e
			if bytes.Compare(k[:], last[:]) > 0 {
				last = k
			}
		}
		if res.NextKey == nil {
			return all, pages
		}
		require.Greater(t, bytes.Compare(res.NextKey[:], last[:]), 0, "next key must follow the page")
		start = res.NextKey.Bytes()
	}
}

func TestPage_roundTrip(t *testing.T) {
	require := require.New(t)
	node := newNode(t)
	id := rpc.BlockNumberOrHashWithNumber(rpc.LatestBlockNumber)

	all, pages := walk(t, func(start []byte) inter.StorageRangeResult {
		res, err := node.Storage.Page(context.Background(), id, inter.AllTransactions, tokenAddr, start, 7)
		require.NoError(err)
		require.LessOrEqual(len(res.Storage), 7)
		return res
	})
	require.Len(all, slotCount)
	require.Equal(4, pages)

	for i := 0; i < slotCount; i++ {
		key := slot(i)
		e, ok := all[crypto.Keccak256Hash(key[:])]
		require.True(ok, "slot %d missing", i)
		require.NotNil(e.Key)
		require.Equal(key, *e.Key)
		require.Equal(common.BigToHash(big.NewInt(int64(i+1))), e.Value)
	}
}

func TestPage_stableUnderMutation(t *testing.T) {
	require := require.New(t)
	node := newNode(t)
	genesisBlock, err := node.Ledger.BlockByNumber(0)
	require.NoError(err)
	id := rpc.BlockNumberOrHashWithHash(genesisBlock.Hash, false)

	first, err := node.Storage.Page(context.Background(), id, inter.AllTransactions, tokenAddr, nil, 10)
	require.NoError(err)
	require.NotNil(first.NextKey)

	// the chain moves on, adding slots to the account
	for i := 0; i < 3; i++ {
		require.NoError(node.Miner.SetStorageAt(context.Background(), tokenAddr, common.BigToHash(big.NewInt(int64(1000+i))), common.HexToHash("0x01")))
	}

	all, _ := walk(t, func(start []byte) inter.StorageRangeResult {
		if start == nil {
			return first
		}
		res, err := node.Storage.Page(context.Background(), id, inter.AllTransactions, tokenAddr, start, 10)
		require.NoError(err)
		return res
	})
	require.Len(all, slotCount)

	latest, err := node.Storage.Page(context.Background(), rpc.BlockNumberOrHashWithNumber(rpc.LatestBlockNumber), inter.AllTransactions, tokenAddr, nil, 100)
	require.NoError(err)
	require.Len(latest.Storage, slotCount+3)
	require.Nil(latest.NextKey)
}

func TestPage_transactionIndex(t *testing.T) {
	require := require.New(t)
	node := newNode(t)
	from := node.Signers.Accounts()[0]
	write := func(word string) inter.TransactionData {
		data := hexutil.Bytes(common.HexToHash(word).Bytes())
		return inter.TransactionData{Request: &inter.TransactionRequest{From: &from, To: &storeAddr, Data: &data}}
	}
	block, err := node.Miner.Mine(context.Background(), evmcore.BlockContent{Txs: []inter.TransactionData{write("0x01"), write("0x02")}})
	require.NoError(err)
	id := rpc.BlockNumberOrHashWithHash(block.Hash, false)
	slot0 := crypto.Keccak256Hash(common.Hash{}.Bytes())

	res, err := node.Storage.Page(context.Background(), id, 0, storeAddr, nil, 10)
	require.NoError(err)
	require.Empty(res.Storage)
	require.Nil(res.NextKey)

	res, err = node.Storage.Page(context.Background(), id, 1, storeAddr, nil, 10)
	require.NoError(err)
	require.Equal(common.HexToHash("0x01"), res.Storage[slot0].Value)
	require.NotNil(res.Storage[slot0].Key)

	res, err = node.Storage.Page(context.Background(), id, inter.AllTransactions, storeAddr, nil, 10)
	require.NoError(err)
	require.Equal(common.HexToHash("0x02"), res.Storage[slot0].Value)

	// only the mid-block page needed a replay, and it is served again from cache
	require.Equal(1, node.Storage.CachedRoots())
	again, err := node.Storage.Page(context.Background(), id, 1, storeAddr, nil, 10)
	require.NoError(err)
	require.Equal(common.HexToHash("0x01"), again.Storage[slot0].Value)
	require.Equal(res.Storage[slot0].Key, again.Storage[slot0].Key)
	require.Equal(1, node.Storage.CachedRoots())
}

func TestPage_notFound(t *testing.T) {
	node := newNode(t)
	latest := rpc.BlockNumberOrHashWithNumber(rpc.LatestBlockNumber)

	_, err := node.Storage.Page(context.Background(), latest, inter.AllTransactions, common.HexToAddress("0x0bad"), nil, 10)
	require.ErrorIs(t, err, inter.ErrNotFound)

	_, err = node.Storage.Page(context.Background(), rpc.BlockNumberOrHashWithNumber(9), inter.AllTransactions, tokenAddr, nil, 10)
	require.ErrorIs(t, err, inter.ErrNotFound)
}

func TestPage_discardedBlock(t *testing.T) {
	require := require.New(t)
	node := newNode(t)
	block, err := node.Miner.Mine(context.Background(), evmcore.BlockContent{})
	require.NoError(err)
	id := rpc.BlockNumberOrHashWithHash(block.Hash, false)

	first, err := node.Storage.Page(context.Background(), id, inter.AllTransactions, tokenAddr, nil, 10)
	require.NoError(err)
	require.NotNil(first.NextKey)

	require.NoError(node.Reorg.Reorg(context.Background(), inter.ReorgOptions{Depth: 1}))

	_, err = node.Storage.Page(context.Background(), id, inter.AllTransactions, tokenAddr, first.NextKey.Bytes(), 10)
	require.ErrorIs(err, inter.ErrNotFound)
}
