// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package evmcore executes transactions and seals the resulting blocks of the
// development chain.
// This file implements the block structures the ledger stores.
//
// Key concepts:
//   - EvmHeader/EvmBlock: block representation with its receipts
//   - Hash: the Keccak256 of the RLP of the Ethereum header, so tooling that
//     recomputes block hashes agrees with the node
//
// Usage:
//   block := NewEvmBlock(header, txs, receipts)
//   ethHeader := block.EthHeader() // Ethereum format for RPC and hashing

package evmcore

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/trie"
)

// EvmHeader represents a block header of the development chain.
//
// Differences from Ethereum headers:
//   - There are no uncles; UncleHash is always the empty uncle hash
//   - MixDigest and Nonce stay zero: blocks are sealed by the node itself
//   - Hash is cached once the header is sealed
type EvmHeader struct {
	Number      *big.Int       // Block number (height in the chain)
	Hash        common.Hash    // Block hash (set by NewEvmBlock)
	ParentHash  common.Hash    // Hash of the parent block
	Root        common.Hash    // State root (Merkle root of account/storage state)
	TxHash      common.Hash    // Transactions root (Merkle root of transaction trie)
	ReceiptHash common.Hash    // Receipts root (Merkle root of receipt trie)
	Bloom       types.Bloom    // Union of the receipt blooms
	Time        uint64         // Block timestamp (Unix seconds)
	Coinbase    common.Address // Fee recipient

	Difficulty *big.Int // Proof-of-work difficulty
	GasLimit   uint64   // Gas limit per block
	GasUsed    uint64   // Total gas consumed by transactions in this block

	BaseFee *big.Int // Base fee per gas (EIP-1559, nil if London upgrade not active)
	Extra   []byte   // Extra data; carries the reorg generation of rebuilt blocks
}

// EvmBlock represents a sealed block: header, transactions and their receipts.
// Receipts[i] belongs to Transactions[i].
type EvmBlock struct {
	EvmHeader                       // Embedded header (contains block metadata)
	Transactions types.Transactions // List of transactions included in this block
	Receipts     types.Receipts     // Execution outcome of each transaction
	Edits        [][]byte           // State writer calls applied before the transactions
}

// NewEvmBlock seals a block from a header, its transactions and receipts.
// It computes the transaction root, receipt root, bloom and block hash, then
// stamps the receipts and logs with the block position.
//
// Parameters:
//   - h: Block header (will be copied into the new block)
//   - txs: List of transactions to include in the block
//   - receipts: One receipt per transaction
//
// Returns:
//   - Pointer to a new EvmBlock with every derived field computed
func NewEvmBlock(h *EvmHeader, txs types.Transactions, receipts types.Receipts) *EvmBlock {
	b := &EvmBlock{
		EvmHeader:    *h,  // copy header struct
		Transactions: txs, // store transaction list
		Receipts:     receipts,
	}

	if len(txs) == 0 {
		// Empty block: use empty root hash (standard Ethereum convention)
		b.EvmHeader.TxHash = types.EmptyRootHash
		b.EvmHeader.ReceiptHash = types.EmptyRootHash
	} else {
		// StackTrie is a memory-efficient trie implementation for one-time hashing
		b.EvmHeader.TxHash = types.DeriveSha(txs, trie.NewStackTrie(nil))
		b.EvmHeader.ReceiptHash = types.DeriveSha(receipts, trie.NewStackTrie(nil))
	}
	b.EvmHeader.Bloom = types.CreateBloom(receipts)
	b.EvmHeader.Hash = b.EthHeader().Hash()

	var logIndex uint
	for i, r := range receipts {
		r.BlockHash = b.Hash
		r.BlockNumber = new(big.Int).Set(b.Number)
		r.TransactionIndex = uint(i)
		for _, l := range r.Logs {
			l.BlockHash = b.Hash
			l.BlockNumber = b.Number.Uint64()
			l.TxHash = r.TxHash
			l.TxIndex = uint(i)
			l.Index = logIndex
			logIndex++
		}
	}

	return b
}

// EthHeader converts the header into go-ethereum's header format.
func (h *EvmHeader) EthHeader() *types.Header {
	if h == nil {
		return nil
	}
	eh := &types.Header{
		ParentHash:  h.ParentHash,
		UncleHash:   types.EmptyUncleHash,
		Coinbase:    h.Coinbase,
		Root:        h.Root,
		TxHash:      h.TxHash,
		ReceiptHash: h.ReceiptHash,
		Bloom:       h.Bloom,
		Difficulty:  new(big.Int).Set(h.Difficulty),
		Number:      new(big.Int).Set(h.Number),
		GasLimit:    h.GasLimit,
		GasUsed:     h.GasUsed,
		Time:        h.Time,
		Extra:       common.CopyBytes(h.Extra),
	}
	if h.BaseFee != nil {
		eh.BaseFee = new(big.Int).Set(h.BaseFee)
	}
	return eh
}

// NumberU64 returns the block number as uint64.
func (h *EvmHeader) NumberU64() uint64 {
	return h.Number.Uint64()
}

// Receipt returns the receipt of the transaction with the given hash.
func (b *EvmBlock) Receipt(txHash common.Hash) (*types.Receipt, int) {
	for i, r := range b.Receipts {
		if r.TxHash == txHash {
			return r, i
		}
	}
	return nil, -1
}
