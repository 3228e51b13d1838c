package evmcore

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-opera-devnode/inter"
	"github.com/rony4d/go-opera-devnode/opera"
	"github.com/rony4d/go-opera-devnode/opera/contracts/evmwriter"
	"github.com/rony4d/go-opera-devnode/opera/genesis"
)

var (
	// storeCode writes calldata word 0 into slot 0, or returns slot 0 on empty calldata.
	storeCode  = hexutil.MustDecode("0x3615600c57600035600055005b60005460005260206000f3")
	revertCode = hexutil.MustDecode("0x60006000fd")

	storeAddr  = common.HexToAddress("0x5700000000000000000000000000000000000001")
	revertAddr = common.HexToAddress("0x5700000000000000000000000000000000000002")

	funds = new(big.Int).Mul(big.NewInt(1000), big.NewInt(params.Ether))
)

type testChain struct {
	rules   opera.Rules
	signers *DevSigners
	builder *Builder
	db      state.Database
	genesis *EvmBlock
}

func newTestChain(t *testing.T, rules opera.Rules) *testChain {
	t.Helper()
	signers := NewDevSigners(3, new(big.Int).SetUint64(rules.NetworkID))
	g := genesis.New(genesis.DefaultTime)
	for _, addr := range signers.Accounts() {
		g.Fund(addr, funds)
	}
	g.Alloc[storeAddr] = genesis.Account{Code: storeCode}
	g.Alloc[revertAddr] = genesis.Account{Code: revertCode}

	db := state.NewDatabaseWithConfig(rawdb.NewMemoryDatabase(), &trie.Config{Preimages: true})
	statedb, err := state.New(common.Hash{}, db, nil)
	require.NoError(t, err)
	gen, err := ApplyGenesis(statedb, g, rules)
	require.NoError(t, err)

	processor := NewStateProcessor(rules.EvmChainConfig(), opera.DefaultVMConfig)
	return &testChain{
		rules:   rules,
		signers: signers,
		builder: NewBuilder(rules, processor, signers),
		db:      db,
		genesis: gen,
	}
}

func (c *testChain) account(i int) common.Address {
	return c.signers.Accounts()[i]
}

func (c *testChain) build(t *testing.T, parent *EvmBlock, content BlockContent) *EvmBlock {
	t.Helper()
	statedb, err := StateAt(c.db, parent.Root)
	require.NoError(t, err)
	header := c.builder.NextHeader(&parent.EvmHeader, parent.Time+1, nil)
	block, err := c.builder.Build(header, statedb, content, func(uint64) common.Hash { return common.Hash{} })
	require.NoError(t, err)
	return block
}

func (c *testChain) stateOf(t *testing.T, block *EvmBlock) *state.StateDB {
	t.Helper()
	statedb, err := StateAt(c.db, block.Root)
	require.NoError(t, err)
	return statedb
}

func transfer(from, to common.Address, wei int64) inter.TransactionData {
	value := (*hexutil.Big)(big.NewInt(wei))
	return inter.TransactionData{Request: &inter.TransactionRequest{From: &from, To: &to, Value: value}}
}

func calldata(b []byte) *hexutil.Bytes {
	return (*hexutil.Bytes)(&b)
}

func (c *testChain) raw(t *testing.T, from common.Address, tx types.TxData) inter.TransactionData {
	t.Helper()
	signed, err := c.signers.Sign(from, tx)
	require.NoError(t, err)
	raw, err := signed.MarshalBinary()
	require.NoError(t, err)
	return inter.TransactionData{Raw: raw}
}

func TestApplyGenesis(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, opera.DevNetRules())

	require.Equal(uint64(0), c.genesis.NumberU64())
	require.Equal(common.Hash{}, c.genesis.ParentHash)
	require.Equal(genesis.DefaultTime, c.genesis.Time)
	require.Equal(c.genesis.EthHeader().Hash(), c.genesis.Hash)
	require.Equal(types.EmptyRootHash, c.genesis.TxHash)
	require.Equal(c.rules.Economy.InitialBaseFee, c.genesis.BaseFee)

	statedb := c.stateOf(t, c.genesis)
	for _, addr := range c.signers.Accounts() {
		require.Equal(funds, statedb.GetBalance(addr))
	}
	require.Equal(storeCode, statedb.GetCode(storeAddr))
}

func TestApplyGenesis_legacy(t *testing.T) {
	c := newTestChain(t, opera.LegacyNetRules())
	require.Nil(t, c.genesis.BaseFee)
}

func TestBuilder_NextHeader(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, opera.DevNetRules())

	h := c.builder.NextHeader(&c.genesis.EvmHeader, c.genesis.Time, []byte{1})
	require.Equal(uint64(1), h.NumberU64())
	require.Equal(c.genesis.Hash, h.ParentHash)
	require.Equal(c.genesis.Time+1, h.Time, "time must advance past the parent")
	require.Equal([]byte{1}, h.Extra)
	// empty parent: the base fee drops by 1/8
	require.Equal(big.NewInt(875000000), h.BaseFee)

	first := c.builder.NextHeader(nil, 42, nil)
	require.Equal(uint64(0), first.NumberU64())
	require.Equal(uint64(42), first.Time)
	require.Equal(c.rules.Economy.InitialBaseFee, first.BaseFee)
}

func TestBuilder_Build(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, opera.DevNetRules())
	a, b := c.account(0), c.account(1)

	block := c.build(t, c.genesis, BlockContent{Txs: []inter.TransactionData{
		transfer(a, b, 1000),
		c.raw(t, b, &types.LegacyTx{Nonce: 0, GasPrice: big.NewInt(params.GWei), Gas: params.TxGas, To: &a, Value: big.NewInt(1)}),
	}})

	require.Equal(uint64(1), block.NumberU64())
	require.Equal(c.genesis.Hash, block.ParentHash)
	require.Len(block.Transactions, 2)
	require.Len(block.Receipts, 2)
	require.Equal(2*params.TxGas, block.GasUsed)
	require.Equal(types.DynamicFeeTxType, int(block.Transactions[0].Type()))
	for i, r := range block.Receipts {
		require.Equal(types.ReceiptStatusSuccessful, r.Status, "tx %d", i)
		require.Equal(block.Hash, r.BlockHash)
		require.Equal(uint(i), r.TransactionIndex)
		require.Equal(block.Transactions[i].Hash(), r.TxHash)
	}

	statedb := c.stateOf(t, block)
	require.Equal(uint64(1), statedb.GetNonce(a))
	require.Equal(uint64(1), statedb.GetNonce(b))

	r, i := block.Receipt(block.Transactions[1].Hash())
	require.Equal(1, i)
	require.Equal(block.Receipts[1], r)
}

func TestBuilder_Build_failedTransactionsAreIncluded(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, opera.DevNetRules())
	a, b := c.account(0), c.account(1)

	block := c.build(t, c.genesis, BlockContent{Txs: []inter.TransactionData{
		// nonce gap: cannot be applied at all
		c.raw(t, a, &types.LegacyTx{Nonce: 5, GasPrice: big.NewInt(params.GWei), Gas: params.TxGas, To: &b, Value: big.NewInt(1)}),
		// executes and reverts
		{Request: &inter.TransactionRequest{From: &a, To: &revertAddr}},
		transfer(a, b, 7),
	}})

	require.Len(block.Transactions, 3)
	require.Equal(types.ReceiptStatusFailed, block.Receipts[0].Status)
	require.Zero(block.Receipts[0].GasUsed)
	require.Equal(types.ReceiptStatusFailed, block.Receipts[1].Status)
	require.NotZero(block.Receipts[1].GasUsed)
	require.Equal(types.ReceiptStatusSuccessful, block.Receipts[2].Status)
	require.Equal(block.Receipts[1].GasUsed+block.Receipts[2].GasUsed, block.GasUsed)

	statedb := c.stateOf(t, block)
	require.Equal(uint64(2), statedb.GetNonce(a))
	require.Equal(new(big.Int).Add(funds, big.NewInt(7)), statedb.GetBalance(b))
}

func TestBuilder_Build_edits(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, opera.DevNetRules())
	key, value := common.HexToHash("0x01"), common.HexToHash("0xbeef")

	edit, err := evmwriter.Pack("setStorage", storeAddr, [32]byte(key), [32]byte(value))
	require.NoError(err)
	block := c.build(t, c.genesis, BlockContent{Edits: [][]byte{edit}})

	require.Empty(block.Transactions)
	require.Equal(types.EmptyRootHash, block.TxHash)
	require.Equal([][]byte{edit}, block.Edits)
	require.NotEqual(c.genesis.Root, block.Root)
	require.Equal(value, c.stateOf(t, block).GetState(storeAddr, key))
}

func TestBuilder_Build_unknownSender(t *testing.T) {
	c := newTestChain(t, opera.DevNetRules())
	stranger := common.HexToAddress("0x0bad")

	statedb := c.stateOf(t, c.genesis)
	header := c.builder.NextHeader(&c.genesis.EvmHeader, c.genesis.Time+1, nil)
	_, err := c.builder.Build(header, statedb, BlockContent{Txs: []inter.TransactionData{
		transfer(stranger, c.account(0), 1),
	}}, nil)
	require.ErrorIs(t, err, ErrUnknownSender)
}

func TestBuilder_CheckRequest(t *testing.T) {
	c := newTestChain(t, opera.DevNetRules())
	a := c.account(1)
	otherChain := (*hexutil.Big)(big.NewInt(1))
	price := (*hexutil.Big)(big.NewInt(params.GWei))

	tests := []struct {
		name    string
		req     inter.TransactionRequest
		want    common.Address
		wantErr error
	}{
		{name: "explicit sender", req: inter.TransactionRequest{From: &a}, want: a},
		{name: "default sender", req: inter.TransactionRequest{}, want: c.account(0)},
		{name: "foreign chain", req: inter.TransactionRequest{From: &a, ChainID: otherChain}, wantErr: ErrChainIDMismatch},
		{name: "unknown sender", req: inter.TransactionRequest{From: &storeAddr}, wantErr: ErrUnknownSender},
		{name: "fee conflict", req: inter.TransactionRequest{From: &a, GasPrice: price, MaxFeePerGas: price}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, err := c.builder.CheckRequest(&tt.req)
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.want == (common.Address{}):
				require.Error(t, err)
			default:
				require.NoError(t, err)
				require.Equal(t, tt.want, from)
			}
		})
	}
}

func TestBuilder_CheckRaw(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, opera.DevNetRules())
	a, b := c.account(0), c.account(1)

	d := c.raw(t, a, &types.LegacyTx{Nonce: 0, GasPrice: big.NewInt(params.GWei), Gas: params.TxGas, To: &b})
	tx, from, err := c.builder.CheckRaw(d.Raw)
	require.NoError(err)
	require.Equal(a, from)
	require.Equal(uint64(0), tx.Nonce())

	_, _, err = c.builder.CheckRaw([]byte{0xde, 0xad})
	require.ErrorIs(err, inter.ErrDecode)
}

func TestStateProcessor_Replay(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, opera.DevNetRules())
	a := c.account(0)
	word := common.HexToHash("0x2a")

	block := c.build(t, c.genesis, BlockContent{Txs: []inter.TransactionData{
		{Request: &inter.TransactionRequest{From: &a, To: &storeAddr, Data: calldata(word.Bytes())}},
		transfer(a, c.account(1), 1),
	}})
	require.Equal(types.ReceiptStatusSuccessful, block.Receipts[0].Status)

	p := c.builder.Processor()
	for n, want := range []common.Hash{{}, word, word} {
		statedb := c.stateOf(t, c.genesis)
		require.NoError(p.Replay(block, n, statedb, nil))
		require.Equal(want, statedb.GetState(storeAddr, common.Hash{}), "before tx %d", n)
		require.Equal(uint64(n), statedb.GetNonce(a))
	}

	require.Error(p.Replay(block, 3, c.stateOf(t, c.genesis), nil))
	require.Error(p.Replay(block, -1, c.stateOf(t, c.genesis), nil))
}

func TestStateProcessor_EstimateGas(t *testing.T) {
	require := require.New(t)
	c := newTestChain(t, opera.DevNetRules())
	a, b := c.account(0), c.account(1)
	p := c.builder.Processor()

	statedb := c.stateOf(t, c.genesis)
	header := c.builder.NextHeader(&c.genesis.EvmHeader, c.genesis.Time+1, nil)
	blockCtx := NewBlockContext(header, nil)

	call, err := NewCallMsg(&inter.TransactionRequest{To: &b, Value: (*hexutil.Big)(big.NewInt(1))}, a, header.BaseFee)
	require.NoError(err)
	gas, err := p.EstimateGas(blockCtx, statedb, call, header.GasLimit)
	require.NoError(err)
	require.Equal(params.TxGas, gas)

	store, err := NewCallMsg(&inter.TransactionRequest{To: &storeAddr, Data: calldata(common.HexToHash("0x01").Bytes())}, a, header.BaseFee)
	require.NoError(err)
	gas, err = p.EstimateGas(blockCtx, statedb, store, header.GasLimit)
	require.NoError(err)
	require.Greater(gas, params.TxGas+params.SstoreSetGasEIP2200)
	require.Equal(common.Hash{}, statedb.GetState(storeAddr, common.Hash{}), "estimation must not write")

	revert, err := NewCallMsg(&inter.TransactionRequest{To: &revertAddr}, a, header.BaseFee)
	require.NoError(err)
	_, err = p.EstimateGas(blockCtx, statedb, revert, header.GasLimit)
	require.Error(err)

	_, err = p.EstimateGas(blockCtx, statedb, call, params.TxGas-1)
	require.ErrorIs(err, ErrGasAllowance)
}

func TestNewCallMsg_fees(t *testing.T) {
	a := common.HexToAddress("0x01")
	baseFee := big.NewInt(100)
	gwei := func(v int64) *hexutil.Big { return (*hexutil.Big)(big.NewInt(v)) }

	tests := []struct {
		name  string
		req   inter.TransactionRequest
		price int64
		free  bool
	}{
		{name: "no fees", req: inter.TransactionRequest{}, free: true},
		{name: "legacy price", req: inter.TransactionRequest{GasPrice: gwei(7)}, price: 7},
		{name: "tip below cap", req: inter.TransactionRequest{MaxFeePerGas: gwei(500), MaxPriorityFeePerGas: gwei(3)}, price: 103},
		{name: "capped", req: inter.TransactionRequest{MaxFeePerGas: gwei(101), MaxPriorityFeePerGas: gwei(3)}, price: 101},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewCallMsg(&tt.req, a, baseFee)
			require.NoError(t, err)
			require.Equal(t, tt.free, msg.Free())
			require.Equal(t, big.NewInt(tt.price), msg.GasPrice)
		})
	}
}
