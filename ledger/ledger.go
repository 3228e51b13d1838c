// Package ledger keeps the canonical chain of the development node: an
// ordered list of sealed blocks whose tip can be rewound and rebuilt.
//
// Readers never block each other. Mutations are staged in a Batch and
// published atomically, so a reader sees either the chain before a reorg or
// the chain after it, never a mixture.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/rpc"
	lru "github.com/hashicorp/golang-lru"

	"github.com/rony4d/go-opera-devnode/evmcore"
	"github.com/rony4d/go-opera-devnode/inter"
)

// discardedCacheSize bounds how many discarded block hashes are remembered.
const discardedCacheSize = 4096

var (
	heightGauge      = metrics.NewRegisteredGauge("ledger/height", nil)
	appendedMeter    = metrics.NewRegisteredMeter("ledger/blocks/appended", nil)
	discardedMeter   = metrics.NewRegisteredMeter("ledger/blocks/discarded", nil)
	mutationTimer    = metrics.NewRegisteredTimer("ledger/mutation", nil)
	errEmptyLedger   = errors.New("ledger cannot be left without blocks")
	errBatchFinished = errors.New("batch is already finished")
)

type txPosition struct {
	block common.Hash
	index int
}

// Ledger is the canonical chain. The zero value is not usable; see New.
type Ledger struct {
	// mutateMu serialises writers; mu guards the published view.
	mutateMu sync.Mutex
	mu       sync.RWMutex

	db          state.Database
	genesisRoot common.Hash

	blocks []*evmcore.EvmBlock
	byHash map[common.Hash]*evmcore.EvmBlock
	// txs holds every canonical inclusion of a hash, oldest first
	txs map[common.Hash][]txPosition

	discarded *lru.Cache

	log log.Logger
}

// New creates a ledger holding a single genesis block. genesisRoot is the
// state the genesis block was sealed on, i.e. the bare allocation.
func New(db state.Database, genesisRoot common.Hash, genesis *evmcore.EvmBlock) (*Ledger, error) {
	if genesis == nil || genesis.NumberU64() != 0 {
		return nil, errors.New("genesis block must have number 0")
	}
	discarded, err := lru.New(discardedCacheSize)
	if err != nil {
		return nil, err
	}
	l := &Ledger{
		db:          db,
		genesisRoot: genesisRoot,
		byHash:      make(map[common.Hash]*evmcore.EvmBlock),
		txs:         make(map[common.Hash][]txPosition),
		discarded:   discarded,
		log:         log.New("module", "ledger"),
	}
	l.publish([]*evmcore.EvmBlock{genesis})
	return l, nil
}

// DB returns the state database every block root lives in.
func (l *Ledger) DB() state.Database {
	return l.db
}

// Tip returns a snapshot of the highest block.
func (l *Ledger) Tip() *Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot(l.blocks, len(l.blocks)-1)
}

// Height returns the number of the highest block.
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.blocks) - 1)
}

// Resolve looks a block up by number, tag or hash.
func (l *Ledger) Resolve(id rpc.BlockNumberOrHash) (*Snapshot, error) {
	if hash, ok := id.Hash(); ok {
		return l.SnapshotByHash(hash)
	}
	number, ok := id.Number()
	if !ok {
		return nil, inter.NotFound("empty block selector")
	}
	return l.SnapshotByNumber(number)
}

// SnapshotByNumber looks a block up by number or tag. The latest and pending
// tags select the tip, earliest selects block 0.
func (l *Ledger) SnapshotByNumber(number rpc.BlockNumber) (*Snapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	switch {
	case number == rpc.LatestBlockNumber || number == rpc.PendingBlockNumber:
		return l.snapshot(l.blocks, len(l.blocks)-1), nil
	case number < 0:
		return nil, inter.NotFound("unsupported block tag %d", number)
	case int64(number) >= int64(len(l.blocks)):
		return nil, inter.NotFound("block %d is above the tip %d", number, len(l.blocks)-1)
	}
	return l.snapshot(l.blocks, int(number)), nil
}

// SnapshotByHash looks a canonical block up by hash.
func (l *Ledger) SnapshotByHash(hash common.Hash) (*Snapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	block, ok := l.byHash[hash]
	if !ok {
		if l.discarded.Contains(hash) {
			return nil, inter.NotFound("block %s was discarded by a reorg", hash.Hex())
		}
		return nil, inter.NotFound("block %s", hash.Hex())
	}
	return l.snapshot(l.blocks, int(block.NumberU64())), nil
}

// BlockByNumber returns the canonical block at the given height.
func (l *Ledger) BlockByNumber(number uint64) (*evmcore.EvmBlock, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if number >= uint64(len(l.blocks)) {
		return nil, inter.NotFound("block %d is above the tip %d", number, len(l.blocks)-1)
	}
	return l.blocks[number], nil
}

// BlockByHash returns the canonical block with the given hash.
func (l *Ledger) BlockByHash(hash common.Hash) (*evmcore.EvmBlock, error) {
	s, err := l.SnapshotByHash(hash)
	if err != nil {
		return nil, err
	}
	return s.Block, nil
}

// Transaction returns the canonical block including the transaction and its
// position within the block. A hash included more than once, e.g. a replayed
// raw transaction that failed the second time, resolves to the latest block.
func (l *Ledger) Transaction(hash common.Hash) (*evmcore.EvmBlock, int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	positions := l.txs[hash]
	if len(positions) == 0 {
		return nil, 0, inter.NotFound("transaction %s", hash.Hex())
	}
	pos := positions[len(positions)-1]
	return l.byHash[pos.block], pos.index, nil
}

// IsDiscarded reports whether a block hash was removed by a reorg and has not
// come back since.
func (l *Ledger) IsDiscarded(hash common.Hash) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, canonical := l.byHash[hash]
	return !canonical && l.discarded.Contains(hash)
}

// Append adds a block on top of the tip.
func (l *Ledger) Append(block *evmcore.EvmBlock) error {
	return l.Mutate(func(b *Batch) error {
		return b.Append(block)
	})
}

// Truncate drops every block above `to`.
func (l *Ledger) Truncate(to uint64) error {
	return l.Mutate(func(b *Batch) error {
		return b.Truncate(to)
	})
}

// Mutate runs fn against a batch staged on the current chain and publishes
// the result if fn succeeds. Readers keep seeing the previous chain until
// then; an error from fn leaves the ledger untouched.
func (l *Ledger) Mutate(fn func(*Batch) error) error {
	l.mutateMu.Lock()
	defer l.mutateMu.Unlock()
	defer mutationTimer.UpdateSince(time.Now())

	l.mu.RLock()
	base := l.blocks
	l.mu.RUnlock()

	b := &Batch{
		db:          l.db,
		genesisRoot: l.genesisRoot,
		staged:      base[:len(base):len(base)],
	}
	if err := fn(b); err != nil {
		b.done = true
		return err
	}
	b.done = true
	if len(b.staged) == 0 {
		return errEmptyLedger
	}
	l.publish(b.staged)
	return nil
}

// publish swaps the chain and updates the indexes. Blocks shared with the
// previous chain keep their entries.
func (l *Ledger) publish(chain []*evmcore.EvmBlock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.blocks
	shared := 0
	for shared < len(old) && shared < len(chain) && old[shared] == chain[shared] {
		shared++
	}
	for _, block := range old[shared:] {
		delete(l.byHash, block.Hash)
		for _, tx := range block.Transactions {
			hash := tx.Hash()
			if rest := withoutBlock(l.txs[hash], block.Hash); len(rest) > 0 {
				l.txs[hash] = rest
			} else {
				delete(l.txs, hash)
			}
		}
		l.discarded.Add(block.Hash, block.NumberU64())
	}
	for _, block := range chain[shared:] {
		l.byHash[block.Hash] = block
		for i, tx := range block.Transactions {
			hash := tx.Hash()
			l.txs[hash] = append(l.txs[hash], txPosition{block: block.Hash, index: i})
		}
	}
	l.blocks = chain

	removed, added := len(old)-shared, len(chain)-shared
	discardedMeter.Mark(int64(removed))
	appendedMeter.Mark(int64(added))
	heightGauge.Update(int64(len(chain) - 1))
	if removed > 0 {
		l.log.Info("Chain rewritten", "discarded", removed, "added", added, "height", len(chain)-1, "tip", chain[len(chain)-1].Hash)
	} else if added > 0 {
		l.log.Debug("Chain extended", "added", added, "height", len(chain)-1, "tip", chain[len(chain)-1].Hash)
	}
}

func withoutBlock(positions []txPosition, block common.Hash) []txPosition {
	var rest []txPosition
	for _, pos := range positions {
		if pos.block != block {
			rest = append(rest, pos)
		}
	}
	return rest
}

func (l *Ledger) snapshot(chain []*evmcore.EvmBlock, i int) *Snapshot {
	return newSnapshot(l.db, l.genesisRoot, chain, i)
}

func newSnapshot(db state.Database, genesisRoot common.Hash, chain []*evmcore.EvmBlock, i int) *Snapshot {
	s := &Snapshot{
		Block:      chain[i],
		ParentRoot: genesisRoot,
		db:         db,
		chain:      chain[: i+1 : i+1],
	}
	if i > 0 {
		s.ParentRoot = chain[i-1].Root
	}
	return s
}

// Batch is a staged chain. Blocks below the truncation point are shared with
// the published chain and never modified.
type Batch struct {
	db          state.Database
	genesisRoot common.Hash
	staged      []*evmcore.EvmBlock
	done        bool
}

// Len returns the number of staged blocks.
func (b *Batch) Len() int {
	return len(b.staged)
}

// Tip returns the highest staged block, or nil when the batch was reset.
func (b *Batch) Tip() *Snapshot {
	if len(b.staged) == 0 {
		return nil
	}
	return newSnapshot(b.db, b.genesisRoot, b.staged, len(b.staged)-1)
}

// Block returns the staged block at the given height.
func (b *Batch) Block(number uint64) (*evmcore.EvmBlock, bool) {
	if number >= uint64(len(b.staged)) {
		return nil, false
	}
	return b.staged[number], true
}

// Truncate drops every staged block above `to`.
func (b *Batch) Truncate(to uint64) error {
	if b.done {
		return errBatchFinished
	}
	if to >= uint64(len(b.staged)) {
		return fmt.Errorf("cannot truncate to %d, tip is %d", to, len(b.staged)-1)
	}
	b.staged = b.staged[: to+1 : to+1]
	return nil
}

// Reset drops every staged block, genesis included. A block 0 must be
// appended before the batch is published.
func (b *Batch) Reset() {
	b.staged = b.staged[:0:0]
}

// Append stages a block on top of the staged tip.
func (b *Batch) Append(block *evmcore.EvmBlock) error {
	if b.done {
		return errBatchFinished
	}
	if have, want := block.NumberU64(), uint64(len(b.staged)); have != want {
		return fmt.Errorf("block number %d does not follow the tip, want %d", have, want)
	}
	var parent common.Hash
	if n := len(b.staged); n > 0 {
		parent = b.staged[n-1].Hash
	}
	if block.ParentHash != parent {
		return fmt.Errorf("block %d parent %s does not match the tip %s", block.NumberU64(), block.ParentHash.Hex(), parent.Hex())
	}
	b.staged = append(b.staged, block)
	return nil
}

// ParentRoot returns the state root the next staged block executes on.
func (b *Batch) ParentRoot() common.Hash {
	if n := len(b.staged); n > 0 {
		return b.staged[n-1].Root
	}
	return b.genesisRoot
}

// ParentState opens the state the next staged block executes on.
func (b *Batch) ParentState() (*state.StateDB, error) {
	return state.New(b.ParentRoot(), b.db, nil)
}

// GetHash returns the BLOCKHASH resolver for the next staged block.
func (b *Batch) GetHash() func(uint64) common.Hash {
	chain := b.staged
	return func(n uint64) common.Hash {
		if n >= uint64(len(chain)) {
			return common.Hash{}
		}
		return chain[n].Hash
	}
}
