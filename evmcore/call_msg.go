package evmcore

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	cmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
	"github.com/rony4d/go-opera-devnode/inter"
)

// CallMsg is an unsigned message: a transaction request with its fee fields
// resolved against a base fee. It never carries a nonce; the executor takes
// the sender's current one.
type CallMsg struct {
	From       common.Address
	To         *common.Address
	Value      *big.Int
	Data       []byte
	AccessList types.AccessList

	GasPrice  *big.Int
	GasFeeCap *big.Int
	GasTipCap *big.Int
}

// NewCallMsg resolves req into a message for a block with the given base fee.
// A request without any fee field pays nothing.
func NewCallMsg(req *inter.TransactionRequest, from common.Address, baseFee *big.Int) (CallMsg, error) {
	if req.GasPrice != nil && (req.MaxFeePerGas != nil || req.MaxPriorityFeePerGas != nil) {
		return CallMsg{}, errors.New("both gasPrice and (maxFeePerGas or maxPriorityFeePerGas) specified")
	}
	msg := CallMsg{
		From:      from,
		To:        req.To,
		Value:     new(big.Int),
		Data:      req.Calldata(),
		GasPrice:  new(big.Int),
		GasFeeCap: new(big.Int),
		GasTipCap: new(big.Int),
	}
	if req.Value != nil {
		msg.Value = inter.ToBig(req.Value)
	}
	if req.AccessList != nil {
		msg.AccessList = *req.AccessList
	}

	switch {
	case req.GasPrice != nil:
		msg.GasPrice = inter.ToBig(req.GasPrice)
		msg.GasFeeCap, msg.GasTipCap = msg.GasPrice, msg.GasPrice
	case baseFee != nil:
		if req.MaxFeePerGas != nil {
			msg.GasFeeCap = inter.ToBig(req.MaxFeePerGas)
		}
		if req.MaxPriorityFeePerGas != nil {
			msg.GasTipCap = inter.ToBig(req.MaxPriorityFeePerGas)
		}
		if msg.GasFeeCap.BitLen() > 0 || msg.GasTipCap.BitLen() > 0 {
			msg.GasPrice = cmath.BigMin(new(big.Int).Add(msg.GasTipCap, baseFee), msg.GasFeeCap)
		}
	}
	return msg, nil
}

// Free reports whether the message pays no fees.
func (c CallMsg) Free() bool {
	return c.GasPrice.Sign() == 0 && c.GasFeeCap.Sign() == 0 && c.GasTipCap.Sign() == 0
}

// WithoutFees returns a copy of the message paying no fees.
func (c CallMsg) WithoutFees() CallMsg {
	c.GasPrice, c.GasFeeCap, c.GasTipCap = new(big.Int), new(big.Int), new(big.Int)
	return c
}

// Message converts the call into a go-ethereum message with the given nonce and gas.
func (c CallMsg) Message(nonce, gas uint64) types.Message {
	return types.NewMessage(c.From, c.To, nonce, c.Value, gas, c.GasPrice, c.GasFeeCap, c.GasTipCap, c.Data, c.AccessList, false)
}

// CallContext adapts a block context to a call. Free calls run with a zero
// base fee so the fee cap check of EIP-1559 does not reject them.
func CallContext(blockCtx vm.BlockContext, call CallMsg) vm.BlockContext {
	if blockCtx.BaseFee != nil && call.Free() {
		blockCtx.BaseFee = new(big.Int)
	}
	return blockCtx
}

// ErrGasAllowance is returned when a call does not succeed with the highest allowed gas.
var ErrGasAllowance = errors.New("gas required exceeds allowance")

// EstimateGas finds the lowest gas limit the call executes with successfully.
// It bisects between the intrinsic minimum and hi, running every attempt on a
// copy of statedb, so statedb is left untouched.
func (p *StateProcessor) EstimateGas(blockCtx vm.BlockContext, statedb *state.StateDB, call CallMsg, hi uint64) (uint64, error) {
	call = call.WithoutFees()
	blockCtx = CallContext(blockCtx, call)
	nonce := statedb.GetNonce(call.From)

	lo := params.TxGas - 1
	if hi <= lo {
		return 0, fmt.Errorf("%w (%d)", ErrGasAllowance, hi)
	}
	allowance := hi

	executable := func(gas uint64) (bool, *core.ExecutionResult, error) {
		msg := call.Message(nonce, gas)
		evm := vm.NewEVM(blockCtx, core.NewEVMTxContext(msg), statedb.Copy(), p.config, p.vmConfig)
		result, err := core.ApplyMessage(evm, msg, new(core.GasPool).AddGas(math.MaxUint64))
		if err != nil {
			if errors.Is(err, core.ErrIntrinsicGas) {
				return true, nil, nil
			}
			return true, nil, err
		}
		return result.Failed(), result, nil
	}

	for lo+1 < hi {
		mid := (hi + lo) / 2
		failed, _, err := executable(mid)
		if err != nil {
			return 0, err
		}
		if failed {
			lo = mid
		} else {
			hi = mid
		}
	}
	if hi == allowance {
		failed, result, err := executable(hi)
		if err != nil {
			return 0, err
		}
		if failed {
			if result != nil && result.Err != vm.ErrOutOfGas {
				return 0, result.Err
			}
			return 0, fmt.Errorf("%w (%d)", ErrGasAllowance, allowance)
		}
	}
	return hi, nil
}
