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

// Package evmcore provides EVM block and transaction processing functionality.
// This file handles genesis block creation and the deterministic dev keys.

package evmcore

import (
	"crypto/ecdsa"
	"math/big"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/rony4d/go-opera-devnode/opera"
	"github.com/rony4d/go-opera-devnode/opera/genesis"
)

// ApplyGenesis writes the genesis allocation into statedb and seals block 0.
//
// Process:
//  1. Sets balances, nonces, code and storage of every allocated account
//  2. Commits the state to the database and computes the state root
//  3. Creates a genesis block with the computed state root
//
// Parameters:
//   - statedb: The state database, normally opened at the empty root
//   - g: Genesis timestamp and allocation
//   - rules: Chain rules (gas limit, difficulty, coinbase, initial base fee)
//
// Returns:
//   - *EvmBlock: The created genesis block (block number 0)
//   - error: Any error encountered during state commit
func ApplyGenesis(statedb *state.StateDB, g genesis.Genesis, rules opera.Rules) (*EvmBlock, error) {
	for addr, acc := range g.Alloc {
		if acc.Balance != nil {
			statedb.SetBalance(addr, acc.Balance)
		}
		statedb.SetNonce(addr, acc.Nonce)
		if len(acc.Code) != 0 {
			statedb.SetCode(addr, acc.Code)
		}
		for key, value := range acc.Storage {
			statedb.SetState(addr, key, value)
		}
	}

	root, err := flush(statedb, false)
	if err != nil {
		return nil, err
	}

	return genesisBlock(g.Time, root, rules), nil
}

// flush commits state changes to the database and returns the state root hash.
//
// This function performs a two-phase commit:
//  1. Commits pending state changes to the state trie
//  2. Commits the trie nodes to the underlying (in-memory) database
//
// Every committed root stays readable afterwards; nothing is pruned, so any
// snapshot of the chain can be reopened with state.New.
func flush(statedb *state.StateDB, deleteEmptyObjects bool) (root common.Hash, err error) {
	root, err = statedb.Commit(deleteEmptyObjects)
	if err != nil {
		return
	}
	err = statedb.Database().TrieDB().Commit(root, false, nil)
	return
}

// genesisBlock creates block 0 on top of the given state root.
func genesisBlock(time uint64, root common.Hash, rules opera.Rules) *EvmBlock {
	h := &EvmHeader{
		Number:     big.NewInt(0),
		Time:       time,
		GasLimit:   rules.Blocks.GasLimit,
		Difficulty: new(big.Int).Set(rules.Blocks.Difficulty),
		Coinbase:   rules.Blocks.Coinbase,
		Root:       root,
	}
	if rules.Upgrades.London {
		h.BaseFee = new(big.Int).Set(rules.Economy.InitialBaseFee)
	}
	return NewEvmBlock(h, nil, nil)
}

// MustApplyGenesis is a convenience wrapper around ApplyGenesis that panics on error.
func MustApplyGenesis(statedb *state.StateDB, g genesis.Genesis, rules opera.Rules) *EvmBlock {
	block, err := ApplyGenesis(statedb, g, rules)
	if err != nil {
		// Log critical error and panic - genesis creation failure is fatal
		log.Crit("ApplyGenesis", "err", err)
	}
	return block
}

// FakeKey generates a deterministic fake private key.
//
// This function uses a seeded random number generator to produce deterministic
// private keys. Given the same input 'n', it will always generate the same key.
// The node derives its dev accounts from FakeKey(1..N).
//
// Parameters:
//   - n: The seed/index for key generation (deterministic: same n = same key)
//
// Returns:
//   - *ecdsa.PrivateKey: A deterministic ECDSA private key using secp256k1 curve
//
// Example:
//
//	key0 := FakeKey(0)  // First fake key
//	key1 := FakeKey(1)  // Second fake key (different from key0)
//	key0Again := FakeKey(0)  // Same as key0 (deterministic)
func FakeKey(n int) *ecdsa.PrivateKey {
	reader := rand.New(rand.NewSource(int64(n)))

	key, err := ecdsa.GenerateKey(crypto.S256(), reader)
	if err != nil {
		// Key generation should never fail, but panic if it does
		panic(err)
	}

	return key
}
