package evmcore

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus/misc"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/log"
	"github.com/rony4d/go-opera-devnode/inter"
	"github.com/rony4d/go-opera-devnode/opera"
)

var (
	// ErrUnknownSender is returned for a request whose sender the node holds no key for.
	ErrUnknownSender = errors.New("sender is not a dev account")
	// ErrChainIDMismatch is returned for a request naming another chain.
	ErrChainIDMismatch = errors.New("chain id mismatch")
)

// fallbackGas is the gas limit of requests whose execution fails at any gas limit.
const fallbackGas uint64 = 1000000

// BlockContent lists what a new block applies: state edits first, then
// transactions in order.
type BlockContent struct {
	Edits [][]byte
	Txs   []inter.TransactionData
}

// Builder produces new blocks on top of a parent.
type Builder struct {
	rules     opera.Rules
	processor *StateProcessor
	signers   *DevSigners
}

// NewBuilder creates a block builder signing requests with signers.
func NewBuilder(rules opera.Rules, processor *StateProcessor, signers *DevSigners) *Builder {
	return &Builder{
		rules:     rules,
		processor: processor,
		signers:   signers,
	}
}

// Processor returns the state processor blocks are executed with.
func (b *Builder) Processor() *StateProcessor {
	return b.processor
}

// Signers returns the dev accounts the builder signs for.
func (b *Builder) Signers() *DevSigners {
	return b.signers
}

// NextHeader returns an unsealed header following parent. A nil parent yields
// a header at height 0. The time is bumped when it would not advance past
// the parent.
func (b *Builder) NextHeader(parent *EvmHeader, time uint64, extra []byte) *EvmHeader {
	h := &EvmHeader{
		Number:     new(big.Int),
		Time:       time,
		GasLimit:   b.rules.Blocks.GasLimit,
		Difficulty: new(big.Int).Set(b.rules.Blocks.Difficulty),
		Coinbase:   b.rules.Blocks.Coinbase,
		Extra:      common.CopyBytes(extra),
	}
	if parent != nil {
		h.Number.Add(parent.Number, common.Big1)
		h.ParentHash = parent.Hash
		if h.Time <= parent.Time {
			h.Time = parent.Time + 1
		}
	}
	config := b.processor.config
	if config.IsLondon(h.Number) {
		if parent == nil || !config.IsLondon(parent.Number) {
			h.BaseFee = new(big.Int).Set(b.rules.Economy.InitialBaseFee)
		} else {
			h.BaseFee = misc.CalcBaseFee(config, parent.EthHeader())
		}
	}
	return h
}

// Build executes content on statedb, which must hold the state of header's
// parent, and seals the block.
func (b *Builder) Build(header *EvmHeader, statedb *state.StateDB, content BlockContent, getHash vm.GetHashFunc) (*EvmBlock, error) {
	env := b.processor.NewBlockEnv(header, statedb, getHash)
	if err := b.processor.ApplyEdits(env, content.Edits); err != nil {
		return nil, err
	}
	for i, d := range content.Txs {
		tx, err := b.Resolve(env, d)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		_, _ = b.processor.ApplyTransaction(env, tx)
	}
	return b.processor.Seal(env)
}

// DecodeRaw decodes a signed transaction from its binary encoding.
func DecodeRaw(raw []byte) (*types.Transaction, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, inter.DecodeError("raw transaction: %v", err)
	}
	return tx, nil
}

// CheckRaw decodes a raw transaction and recovers its sender.
func (b *Builder) CheckRaw(raw []byte) (*types.Transaction, common.Address, error) {
	tx, err := DecodeRaw(raw)
	if err != nil {
		return nil, common.Address{}, err
	}
	signer := types.LatestSignerForChainID(b.processor.config.ChainID)
	from, err := types.Sender(signer, tx)
	if err != nil {
		return nil, common.Address{}, inter.DecodeError("raw transaction %s: %v", tx.Hash().Hex(), err)
	}
	return tx, from, nil
}

// CheckRequest returns the sender of a structured request, failing when the
// node cannot sign for it.
func (b *Builder) CheckRequest(req *inter.TransactionRequest) (common.Address, error) {
	if req.ChainID != nil && req.ChainID.ToInt().Cmp(b.processor.config.ChainID) != 0 {
		return common.Address{}, fmt.Errorf("%w: have %v, want %v", ErrChainIDMismatch, req.ChainID.ToInt(), b.processor.config.ChainID)
	}
	if req.GasPrice != nil && (req.MaxFeePerGas != nil || req.MaxPriorityFeePerGas != nil) {
		return common.Address{}, errors.New("both gasPrice and (maxFeePerGas or maxPriorityFeePerGas) specified")
	}
	if req.From == nil {
		from, ok := b.signers.Default()
		if !ok {
			return common.Address{}, ErrUnknownSender
		}
		return from, nil
	}
	if !b.signers.Has(*req.From) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnknownSender, req.From.Hex())
	}
	return *req.From, nil
}

// Resolve turns a descriptor into a signed transaction. Raw transactions are
// used verbatim; requests are completed against env's current state and signed.
func (b *Builder) Resolve(env *BlockEnv, d inter.TransactionData) (*types.Transaction, error) {
	if d.IsRaw() {
		return DecodeRaw(d.Raw)
	}
	return b.SignRequest(env, d.Request)
}

// SignRequest completes missing fields of req from env and signs it.
// The nonce comes from the sender's current nonce, the gas from an estimate
// against the remaining block gas, and fees from the chain rules.
func (b *Builder) SignRequest(env *BlockEnv, req *inter.TransactionRequest) (*types.Transaction, error) {
	from, err := b.CheckRequest(req)
	if err != nil {
		return nil, err
	}
	call, err := NewCallMsg(req, from, env.Header.BaseFee)
	if err != nil {
		return nil, err
	}

	nonce := env.State.GetNonce(from)
	if req.Nonce != nil {
		nonce = uint64(*req.Nonce)
	}

	var gas uint64
	if req.Gas != nil {
		gas = uint64(*req.Gas)
	} else {
		gas, err = b.processor.EstimateGas(env.EVM.Context, env.State, call, env.GasPool.Gas())
		if err != nil {
			gas = fallbackGas
			if left := env.GasPool.Gas(); left < gas {
				gas = left
			}
			log.Debug("Gas estimation failed, using fallback", "from", from, "gas", gas, "err", err)
		}
	}

	config := b.processor.config
	var data types.TxData
	switch {
	case env.Header.BaseFee != nil && req.GasPrice == nil:
		tip := inter.ToBig(req.MaxPriorityFeePerGas)
		if tip == nil {
			tip = new(big.Int).Set(b.rules.Economy.MinGasPrice)
		}
		feeCap := inter.ToBig(req.MaxFeePerGas)
		if feeCap == nil {
			feeCap = new(big.Int).Add(new(big.Int).Mul(env.Header.BaseFee, common.Big2), tip)
		}
		if tip.Cmp(feeCap) > 0 {
			tip = new(big.Int).Set(feeCap)
		}
		data = &types.DynamicFeeTx{
			ChainID:    config.ChainID,
			Nonce:      nonce,
			GasTipCap:  tip,
			GasFeeCap:  feeCap,
			Gas:        gas,
			To:         call.To,
			Value:      call.Value,
			Data:       call.Data,
			AccessList: call.AccessList,
		}
	case call.AccessList != nil && config.IsBerlin(env.Header.Number):
		data = &types.AccessListTx{
			ChainID:    config.ChainID,
			Nonce:      nonce,
			GasPrice:   b.gasPrice(req, env.Header),
			Gas:        gas,
			To:         call.To,
			Value:      call.Value,
			Data:       call.Data,
			AccessList: call.AccessList,
		}
	default:
		data = &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: b.gasPrice(req, env.Header),
			Gas:      gas,
			To:       call.To,
			Value:    call.Value,
			Data:     call.Data,
		}
	}
	return b.signers.Sign(from, data)
}

func (b *Builder) gasPrice(req *inter.TransactionRequest, header *EvmHeader) *big.Int {
	if req.GasPrice != nil {
		return inter.ToBig(req.GasPrice)
	}
	price := new(big.Int).Set(b.rules.Economy.MinGasPrice)
	if header.BaseFee != nil && header.BaseFee.Cmp(price) > 0 {
		price.Set(header.BaseFee)
	}
	return price
}
