// Package storagerange pages through the storage of one account at a fixed
// point of the chain.
//
// Slots are walked in the order of the storage trie, i.e. by the keccak256
// hash of the slot key. A page lists at most `limit` slots keyed by their
// hashed key; NextKey is the hashed key to resume from. Because a page is
// always read from an immutable state root, resuming from NextKey neither
// skips nor repeats a slot, whatever happens to the chain in between.
package storagerange

import (
	"context"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/Fantom-foundation/lachesis-base/utils/wlru"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/trie"

	"github.com/rony4d/go-opera-devnode/evmcore"
	"github.com/rony4d/go-opera-devnode/inter"
	"github.com/rony4d/go-opera-devnode/ledger"
)

// rootCacheSize is the number of intra-block state roots kept for paging.
const rootCacheSize = 128

// Paginator reads storage pages from ledger snapshots.
type Paginator struct {
	ledger    *ledger.Ledger
	processor *evmcore.StateProcessor

	// roots maps (block hash, tx index) to the committed state root of a
	// replay, so following pages do not replay the block again.
	roots *wlru.Cache

	log log.Logger
}

// New creates a paginator. The processor replays blocks for pages taken in
// the middle of a block.
func New(l *ledger.Ledger, processor *evmcore.StateProcessor) *Paginator {
	roots, err := wlru.New(rootCacheSize, rootCacheSize)
	if err != nil {
		panic(err)
	}
	return &Paginator{
		ledger:    l,
		processor: processor,
		roots:     roots,
		log:       log.New("module", "storagerange"),
	}
}

// Page returns the storage of addr as of transaction txIndex of block id,
// starting at the hashed key start.
func (p *Paginator) Page(ctx context.Context, id rpc.BlockNumberOrHash, txIndex int, addr common.Address, start []byte, limit int) (inter.StorageRangeResult, error) {
	snap, err := p.ledger.Resolve(id)
	if err != nil {
		return inter.StorageRangeResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return inter.StorageRangeResult{}, err
	}
	statedb, err := p.stateAt(snap, txIndex)
	if err != nil {
		return inter.StorageRangeResult{}, inter.ExecutionError("replaying block %d: %v", snap.Block.Number, err)
	}
	if !statedb.Exist(addr) {
		return inter.StorageRangeResult{}, inter.NotFound("account %s at block %d", addr.Hex(), snap.Block.Number)
	}
	st := statedb.StorageTrie(addr)
	if st == nil {
		return inter.StorageRangeResult{}, inter.NotFound("account %s at block %d", addr.Hex(), snap.Block.Number)
	}
	return storageRangeAt(st, start, limit)
}

// stateAt opens the state before transaction txIndex of the snapshot block.
// Replayed states are committed and their roots cached.
func (p *Paginator) stateAt(snap *ledger.Snapshot, txIndex int) (*state.StateDB, error) {
	if txIndex <= 0 || txIndex >= len(snap.Block.Transactions) {
		return snap.StateAtTransaction(p.processor, txIndex)
	}
	key := rootKey(snap.Block.Hash, txIndex)
	if root, ok := p.roots.Get(key); ok {
		return evmcore.StateAt(p.ledger.DB(), root.(common.Hash))
	}
	statedb, err := snap.StateAtTransaction(p.processor, txIndex)
	if err != nil {
		return nil, err
	}
	root, err := p.processor.Commit(statedb, snap.Block.Number)
	if err != nil {
		return nil, err
	}
	p.roots.Add(key, root, 1)
	p.log.Trace("Cached replayed state", "block", snap.Block.Number, "index", txIndex, "root", root)
	return evmcore.StateAt(p.ledger.DB(), root)
}

func rootKey(block common.Hash, txIndex int) string {
	return string(append(block.Bytes(), bigendian.Uint32ToBytes(uint32(txIndex))...))
}

func storageRangeAt(st state.Trie, start []byte, limit int) (inter.StorageRangeResult, error) {
	it := trie.NewIterator(st.NodeIterator(start))
	result := inter.StorageRangeResult{Storage: inter.StorageMap{}}
	for i := 0; i < limit && it.Next(); i++ {
		_, content, _, err := rlp.Split(it.Value)
		if err != nil {
			return inter.StorageRangeResult{}, inter.ExecutionError("corrupt storage slot %x: %v", it.Key, err)
		}
		e := inter.StorageEntry{Value: common.BytesToHash(content)}
		if preimage := st.GetKey(it.Key); preimage != nil {
			preimage := common.BytesToHash(preimage)
			e.Key = &preimage
		}
		result.Storage[common.BytesToHash(it.Key)] = e
	}
	if it.Err != nil {
		return inter.StorageRangeResult{}, inter.ExecutionError("iterating storage: %v", it.Err)
	}
	// the key after the page, so callers can continue
	if it.Next() {
		next := common.BytesToHash(it.Key)
		result.NextKey = &next
	}
	return result, nil
}
