package ethapi

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/rony4d/go-opera-devnode/evmcore"
	"github.com/rony4d/go-opera-devnode/inter"
)

func isNotFound(err error) bool {
	return errors.Is(err, inter.ErrNotFound)
}

// rpcMarshalHeader converts the header into the JSON-RPC block fields.
func rpcMarshalHeader(h *evmcore.EvmHeader) map[string]interface{} {
	eh := h.EthHeader()
	result := map[string]interface{}{
		"number":           (*hexutil.Big)(eh.Number),
		"hash":             h.Hash,
		"parentHash":       eh.ParentHash,
		"nonce":            eh.Nonce,
		"mixHash":          eh.MixDigest,
		"sha3Uncles":       eh.UncleHash,
		"logsBloom":        eh.Bloom,
		"stateRoot":        eh.Root,
		"miner":            eh.Coinbase,
		"difficulty":       (*hexutil.Big)(eh.Difficulty),
		"extraData":        hexutil.Bytes(eh.Extra),
		"size":             hexutil.Uint64(eh.Size()),
		"gasLimit":         hexutil.Uint64(eh.GasLimit),
		"gasUsed":          hexutil.Uint64(eh.GasUsed),
		"timestamp":        hexutil.Uint64(eh.Time),
		"transactionsRoot": eh.TxHash,
		"receiptsRoot":     eh.ReceiptHash,
	}
	if eh.BaseFee != nil {
		result["baseFeePerGas"] = (*hexutil.Big)(eh.BaseFee)
	}
	return result
}

// rpcMarshalBlock converts the block into the JSON-RPC block object. With
// fullTx the transactions are listed in full, otherwise by hash.
func rpcMarshalBlock(b *evmcore.EvmBlock, fullTx bool, signer types.Signer) map[string]interface{} {
	fields := rpcMarshalHeader(&b.EvmHeader)
	txs := make([]interface{}, len(b.Transactions))
	for i, tx := range b.Transactions {
		if fullTx {
			txs[i] = newRPCTransaction(b, i, signer)
		} else {
			txs[i] = tx.Hash()
		}
	}
	fields["transactions"] = txs
	fields["uncles"] = []common.Hash{}
	fields["totalDifficulty"] = (*hexutil.Big)(new(big.Int).Mul(b.Difficulty, new(big.Int).Add(b.Number, common.Big1)))
	return fields
}

// RPCTransaction is a mined transaction as returned over JSON-RPC.
type RPCTransaction struct {
	BlockHash        common.Hash       `json:"blockHash"`
	BlockNumber      *hexutil.Big      `json:"blockNumber"`
	From             common.Address    `json:"from"`
	Gas              hexutil.Uint64    `json:"gas"`
	GasPrice         *hexutil.Big      `json:"gasPrice"`
	GasFeeCap        *hexutil.Big      `json:"maxFeePerGas,omitempty"`
	GasTipCap        *hexutil.Big      `json:"maxPriorityFeePerGas,omitempty"`
	Hash             common.Hash       `json:"hash"`
	Input            hexutil.Bytes     `json:"input"`
	Nonce            hexutil.Uint64    `json:"nonce"`
	To               *common.Address   `json:"to"`
	TransactionIndex hexutil.Uint64    `json:"transactionIndex"`
	Value            *hexutil.Big      `json:"value"`
	Type             hexutil.Uint64    `json:"type"`
	Accesses         *types.AccessList `json:"accessList,omitempty"`
	ChainID          *hexutil.Big      `json:"chainId,omitempty"`
	V                *hexutil.Big      `json:"v"`
	R                *hexutil.Big      `json:"r"`
	S                *hexutil.Big      `json:"s"`
}

// newRPCTransaction returns the transaction at index of block. The gas price
// of dynamic fee transactions is the price they actually paid.
func newRPCTransaction(b *evmcore.EvmBlock, index int, signer types.Signer) *RPCTransaction {
	tx := b.Transactions[index]
	from, _ := types.Sender(signer, tx)
	v, r, s := tx.RawSignatureValues()
	result := &RPCTransaction{
		BlockHash:        b.Hash,
		BlockNumber:      (*hexutil.Big)(new(big.Int).Set(b.Number)),
		From:             from,
		Gas:              hexutil.Uint64(tx.Gas()),
		GasPrice:         (*hexutil.Big)(tx.GasPrice()),
		Hash:             tx.Hash(),
		Input:            hexutil.Bytes(tx.Data()),
		Nonce:            hexutil.Uint64(tx.Nonce()),
		To:               tx.To(),
		TransactionIndex: hexutil.Uint64(index),
		Value:            (*hexutil.Big)(tx.Value()),
		Type:             hexutil.Uint64(tx.Type()),
		V:                (*hexutil.Big)(v),
		R:                (*hexutil.Big)(r),
		S:                (*hexutil.Big)(s),
	}
	switch tx.Type() {
	case types.AccessListTxType:
		al := tx.AccessList()
		result.Accesses = &al
		result.ChainID = (*hexutil.Big)(tx.ChainId())
	case types.DynamicFeeTxType:
		al := tx.AccessList()
		result.Accesses = &al
		result.ChainID = (*hexutil.Big)(tx.ChainId())
		result.GasFeeCap = (*hexutil.Big)(tx.GasFeeCap())
		result.GasTipCap = (*hexutil.Big)(tx.GasTipCap())
		if b.BaseFee != nil {
			price := new(big.Int).Add(tx.GasTipCap(), b.BaseFee)
			if price.Cmp(tx.GasFeeCap()) > 0 {
				price.Set(tx.GasFeeCap())
			}
			result.GasPrice = (*hexutil.Big)(price)
		}
	}
	return result
}

// rpcMarshalReceipt converts the receipt of the transaction at index.
func rpcMarshalReceipt(b *evmcore.EvmBlock, index int, signer types.Signer) map[string]interface{} {
	tx, receipt := b.Transactions[index], b.Receipts[index]
	from, _ := types.Sender(signer, tx)
	rpcTx := newRPCTransaction(b, index, signer)

	fields := map[string]interface{}{
		"blockHash":         b.Hash,
		"blockNumber":       hexutil.Uint64(b.NumberU64()),
		"transactionHash":   tx.Hash(),
		"transactionIndex":  hexutil.Uint64(index),
		"from":              from,
		"to":                tx.To(),
		"gasUsed":           hexutil.Uint64(receipt.GasUsed),
		"cumulativeGasUsed": hexutil.Uint64(receipt.CumulativeGasUsed),
		"contractAddress":   nil,
		"logs":              receipt.Logs,
		"logsBloom":         receipt.Bloom,
		"type":              hexutil.Uint(tx.Type()),
		"status":            hexutil.Uint(receipt.Status),
		"effectiveGasPrice": rpcTx.GasPrice,
	}
	if receipt.Logs == nil {
		fields["logs"] = []*types.Log{}
	}
	if receipt.ContractAddress != (common.Address{}) {
		fields["contractAddress"] = receipt.ContractAddress
	}
	return fields
}
