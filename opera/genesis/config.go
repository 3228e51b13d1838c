// Package genesis defines the initial state of a development chain: the
// genesis timestamp and the accounts allocated before block 0.
//
// Usage:
//
//	gen := genesis.New(1608600000)
//	gen.Fund(addr, balance)
//	gen.Alloc[contract] = genesis.Account{Code: code}
//
// The genesis is usually generated programmatically from the dev accounts of
// a preset; the launcher may extend it from its config file.
package genesis

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultTime is the genesis timestamp of development chains (December 22, 2020).
const DefaultTime uint64 = 1608600000

// Account is the initial state of one account.
type Account struct {
	Balance *big.Int
	Nonce   uint64
	Code    []byte
	Storage map[common.Hash]common.Hash
}

// Genesis is the initial state of a chain.
type Genesis struct {
	Time  uint64
	Alloc map[common.Address]Account
}

// New returns an empty genesis at the given timestamp.
func New(time uint64) Genesis {
	return Genesis{
		Time:  time,
		Alloc: make(map[common.Address]Account),
	}
}

// Fund adds balance to an allocated account, creating it if needed.
func (g *Genesis) Fund(addr common.Address, balance *big.Int) {
	acc := g.Alloc[addr]
	if acc.Balance == nil {
		acc.Balance = new(big.Int)
	}
	acc.Balance = new(big.Int).Add(acc.Balance, balance)
	g.Alloc[addr] = acc
}
