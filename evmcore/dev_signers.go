package evmcore

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// DevSigners holds the keys of the accounts the node signs for.
// It is immutable after creation.
type DevSigners struct {
	addrs  []common.Address
	keys   map[common.Address]*ecdsa.PrivateKey
	signer types.Signer
}

// NewDevSigners derives n deterministic dev accounts for the given chain.
func NewDevSigners(n int, chainID *big.Int) *DevSigners {
	keys := make([]*ecdsa.PrivateKey, n)
	for i := range keys {
		keys[i] = FakeKey(i + 1)
	}
	return NewSigners(keys, chainID)
}

// NewSigners wraps explicit keys.
func NewSigners(keys []*ecdsa.PrivateKey, chainID *big.Int) *DevSigners {
	s := &DevSigners{
		addrs:  make([]common.Address, 0, len(keys)),
		keys:   make(map[common.Address]*ecdsa.PrivateKey, len(keys)),
		signer: types.LatestSignerForChainID(chainID),
	}
	for _, key := range keys {
		addr := crypto.PubkeyToAddress(key.PublicKey)
		if _, ok := s.keys[addr]; ok {
			continue
		}
		s.addrs = append(s.addrs, addr)
		s.keys[addr] = key
	}
	return s
}

// Accounts returns the dev addresses in derivation order.
func (s *DevSigners) Accounts() []common.Address {
	return append([]common.Address(nil), s.addrs...)
}

// Has reports whether the node can sign for addr.
func (s *DevSigners) Has(addr common.Address) bool {
	_, ok := s.keys[addr]
	return ok
}

// Default returns the account used when a request names no sender.
func (s *DevSigners) Default() (common.Address, bool) {
	if len(s.addrs) == 0 {
		return common.Address{}, false
	}
	return s.addrs[0], true
}

// Sign signs transaction data on behalf of from.
func (s *DevSigners) Sign(from common.Address, tx types.TxData) (*types.Transaction, error) {
	key, ok := s.keys[from]
	if !ok {
		return nil, fmt.Errorf("no dev key for %s", from.Hex())
	}
	return types.SignNewTx(key, s.signer, tx)
}
