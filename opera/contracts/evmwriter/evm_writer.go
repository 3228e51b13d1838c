// Package evmwriter implements a precompiled contract that lets the node edit
// EVM state directly (balances, code, storage, nonces) outside of normal
// transaction execution.
//
// Overview:
//
//	Development tooling needs to set arbitrary account state: fund an account,
//	plant bytecode, poke a storage slot or bump a nonce. The node applies these
//	edits by calling EvmWriter as NodeAddress; every other caller is reverted,
//	so contracts executing on the chain can never reach it.
//
// Gas Costs:
//
//	Each operation charges gas according to the state it touches:
//	- Balance operations: CallValueTransferGas
//	- Code operations: CreateGas + data-dependent costs
//	- Storage operations: SstoreSetGasEIP2200
//	- Nonce operations: CallValueTransferGas
package evmwriter

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
)

var (
	// ContractAddress is the precompiled contract address for EvmWriter.
	ContractAddress = common.HexToAddress("0xd100ec0000000000000000000000000000000000")

	// NodeAddress is the only caller EvmWriter accepts.
	NodeAddress = common.HexToAddress("0xd100ec0000000000000000000000000000000001")

	// ContractABI is the JSON ABI definition for the EvmWriter contract:
	//   - setBalance(address acc, uint256 value): Set account balance to specific value
	//   - setCode(address acc, bytes code): Replace account code
	//   - setStorage(address acc, bytes32 key, bytes32 value): Set storage slot value
	//   - setNonce(address acc, uint256 nonce): Set account nonce
	ContractABI string = `[
{"inputs":[{"internalType":"address","name":"acc","type":"address"},{"internalType":"uint256","name":"value","type":"uint256"}],"name":"setBalance","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"address","name":"acc","type":"address"},{"internalType":"bytes","name":"code","type":"bytes"}],"name":"setCode","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"address","name":"acc","type":"address"},{"internalType":"bytes32","name":"key","type":"bytes32"},{"internalType":"bytes32","name":"value","type":"bytes32"}],"name":"setStorage","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"address","name":"acc","type":"address"},{"internalType":"uint256","name":"nonce","type":"uint256"}],"name":"setNonce","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`
)

var contractABI abi.ABI

func init() {
	var err error
	contractABI, err = abi.JSON(strings.NewReader(ContractABI))
	if err != nil {
		panic(err)
	}
}

// Pack encodes a call of the named EvmWriter method.
func Pack(method string, args ...interface{}) ([]byte, error) {
	return contractABI.Pack(method, args...)
}

// PreCompiledContract implements the vm.PrecompiledStateContract interface.
type PreCompiledContract struct{}

// Run executes the precompiled contract logic.
//
// Parameters:
//   - stateDB: The EVM state database interface for reading/writing state
//   - caller: Address of the account calling this precompiled contract
//   - input: ABI-encoded function call data (method selector + parameters)
//   - suppliedGas: Gas available for this operation
//
// Returns:
//   - []byte: Return data (always nil for these operations)
//   - uint64: Remaining gas after execution
//   - error: Execution error (nil on success)
func (_ PreCompiledContract) Run(stateDB vm.StateDB, _ vm.BlockContext, _ vm.TxContext, caller common.Address, input []byte, suppliedGas uint64) ([]byte, uint64, error) {
	if caller != NodeAddress {
		return nil, 0, vm.ErrExecutionReverted
	}
	if len(input) < 4 {
		return nil, 0, vm.ErrExecutionReverted
	}
	method, err := contractABI.MethodById(input[:4])
	if err != nil {
		return nil, 0, vm.ErrExecutionReverted
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, 0, vm.ErrExecutionReverted
	}
	acc := args[0].(common.Address)

	switch method.Name {
	case "setBalance":
		if suppliedGas < params.CallValueTransferGas {
			return nil, 0, vm.ErrOutOfGas
		}
		suppliedGas -= params.CallValueTransferGas

		value := args[1].(*big.Int)
		balance := stateDB.GetBalance(acc)
		if balance.Cmp(value) >= 0 {
			stateDB.SubBalance(acc, new(big.Int).Sub(balance, value))
		} else {
			stateDB.AddBalance(acc, new(big.Int).Sub(value, balance))
		}

	case "setCode":
		code := args[1].([]byte)
		cost := params.CreateGas + uint64(len(code))*(params.CreateDataGas+params.MemoryGas)
		if suppliedGas < cost {
			return nil, 0, vm.ErrOutOfGas
		}
		suppliedGas -= cost

		stateDB.SetCode(acc, code)

	case "setStorage":
		if suppliedGas < params.SstoreSetGasEIP2200 {
			return nil, 0, vm.ErrOutOfGas
		}
		suppliedGas -= params.SstoreSetGasEIP2200

		key := args[1].([32]byte)
		value := args[2].([32]byte)
		stateDB.SetState(acc, common.Hash(key), common.Hash(value))

	case "setNonce":
		if suppliedGas < params.CallValueTransferGas {
			return nil, 0, vm.ErrOutOfGas
		}
		suppliedGas -= params.CallValueTransferGas

		nonce := args[1].(*big.Int)
		if !nonce.IsUint64() {
			return nil, 0, vm.ErrExecutionReverted
		}
		stateDB.SetNonce(acc, nonce.Uint64())

	default:
		return nil, 0, vm.ErrExecutionReverted
	}

	return nil, suppliedGas, nil
}
