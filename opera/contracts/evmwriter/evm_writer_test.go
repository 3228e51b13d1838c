package evmwriter

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/stretchr/testify/require"
)

func newStateDB(t *testing.T) *state.StateDB {
	t.Helper()
	statedb, err := state.New(common.Hash{}, state.NewDatabase(rawdb.NewMemoryDatabase()), nil)
	require.NoError(t, err)
	return statedb
}

func run(statedb *state.StateDB, caller common.Address, input []byte) (uint64, error) {
	_, left, err := PreCompiledContract{}.Run(statedb, vm.BlockContext{}, vm.TxContext{}, caller, input, 1000000)
	return left, err
}

func TestRun_stateEdits(t *testing.T) {
	acc := common.HexToAddress("0x1234")
	code := []byte{0x60, 0x00, 0x60, 0x00, 0xf3}

	tests := []struct {
		name   string
		method string
		args   []interface{}
		check  func(t *testing.T, statedb *state.StateDB)
	}{
		{
			name:   "setBalance up",
			method: "setBalance",
			args:   []interface{}{acc, big.NewInt(500)},
			check: func(t *testing.T, statedb *state.StateDB) {
				require.Equal(t, big.NewInt(500), statedb.GetBalance(acc))
			},
		},
		{
			name:   "setCode",
			method: "setCode",
			args:   []interface{}{acc, code},
			check: func(t *testing.T, statedb *state.StateDB) {
				require.Equal(t, code, statedb.GetCode(acc))
			},
		},
		{
			name:   "setStorage",
			method: "setStorage",
			args:   []interface{}{acc, [32]byte{1}, [32]byte{2}},
			check: func(t *testing.T, statedb *state.StateDB) {
				require.Equal(t, common.Hash{2}, statedb.GetState(acc, common.Hash{1}))
			},
		},
		{
			name:   "setNonce",
			method: "setNonce",
			args:   []interface{}{acc, big.NewInt(42)},
			check: func(t *testing.T, statedb *state.StateDB) {
				require.Equal(t, uint64(42), statedb.GetNonce(acc))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			statedb := newStateDB(t)
			input, err := Pack(tt.method, tt.args...)
			require.NoError(t, err)

			left, err := run(statedb, NodeAddress, input)
			require.NoError(t, err)
			require.Less(t, left, uint64(1000000))
			tt.check(t, statedb)
		})
	}
}

func TestRun_setBalanceDown(t *testing.T) {
	acc := common.HexToAddress("0x1234")
	statedb := newStateDB(t)
	statedb.AddBalance(acc, big.NewInt(1000))

	input, err := Pack("setBalance", acc, big.NewInt(10))
	require.NoError(t, err)
	_, err = run(statedb, NodeAddress, input)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10), statedb.GetBalance(acc))
}

func TestRun_rejects(t *testing.T) {
	acc := common.HexToAddress("0x1234")
	input, err := Pack("setNonce", acc, big.NewInt(1))
	require.NoError(t, err)

	t.Run("foreign caller", func(t *testing.T) {
		statedb := newStateDB(t)
		_, err := run(statedb, acc, input)
		require.Equal(t, vm.ErrExecutionReverted, err)
		require.Equal(t, uint64(0), statedb.GetNonce(acc))
	})
	t.Run("short input", func(t *testing.T) {
		_, err := run(newStateDB(t), NodeAddress, input[:3])
		require.Equal(t, vm.ErrExecutionReverted, err)
	})
	t.Run("unknown selector", func(t *testing.T) {
		_, err := run(newStateDB(t), NodeAddress, []byte{1, 2, 3, 4})
		require.Equal(t, vm.ErrExecutionReverted, err)
	})
	t.Run("truncated arguments", func(t *testing.T) {
		_, err := run(newStateDB(t), NodeAddress, input[:20])
		require.Equal(t, vm.ErrExecutionReverted, err)
	})
	t.Run("out of gas", func(t *testing.T) {
		_, _, err := PreCompiledContract{}.Run(newStateDB(t), vm.BlockContext{}, vm.TxContext{}, NodeAddress, input, 10)
		require.Equal(t, vm.ErrOutOfGas, err)
	})
}
