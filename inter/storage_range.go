package inter

import (
	"github.com/ethereum/go-ethereum/common"
)

// StorageEntry is one storage slot. Key is the slot preimage, nil when the
// node never saw the preimage of the trie key.
type StorageEntry struct {
	Key   *common.Hash `json:"key"`
	Value common.Hash  `json:"value"`
}

// StorageMap holds slots keyed by their trie key (the keccak256 of the slot).
type StorageMap map[common.Hash]StorageEntry

// StorageRangeResult is one page of an account's storage. NextKey is the trie
// key to resume from and is nil when the storage is exhausted.
type StorageRangeResult struct {
	Storage StorageMap   `json:"storage"`
	NextKey *common.Hash `json:"nextKey"`
}
