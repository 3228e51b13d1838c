package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/rony4d/go-opera-devnode/evmcore"
)

// Snapshot is a block together with a consistent view of its ancestors.
// It stays valid after the block is discarded by a reorg: state roots are
// never pruned, so State keeps working on a discarded snapshot.
type Snapshot struct {
	Block *evmcore.EvmBlock
	// ParentRoot is the state the block was executed on. For block 0 it is
	// the genesis allocation.
	ParentRoot common.Hash

	db    state.Database
	chain []*evmcore.EvmBlock
}

// State opens the state after the last transaction of the block.
func (s *Snapshot) State() (*state.StateDB, error) {
	return state.New(s.Block.Root, s.db, nil)
}

// ParentState opens the state before the first transaction of the block.
func (s *Snapshot) ParentState() (*state.StateDB, error) {
	return state.New(s.ParentRoot, s.db, nil)
}

// GetHash returns the BLOCKHASH resolver of the block: hashes of the
// ancestors in the view the snapshot was taken from.
func (s *Snapshot) GetHash() vm.GetHashFunc {
	chain, number := s.chain, s.Block.NumberU64()
	return func(n uint64) common.Hash {
		if n >= number || n >= uint64(len(chain)) {
			return common.Hash{}
		}
		return chain[n].Hash
	}
}

// StateAtTransaction opens the state right before transaction txIndex of
// the block. An index outside [0, len(txs)) selects the state after the
// last transaction.
func (s *Snapshot) StateAtTransaction(p *evmcore.StateProcessor, txIndex int) (*state.StateDB, error) {
	if txIndex < 0 || txIndex >= len(s.Block.Transactions) {
		return s.State()
	}
	statedb, err := s.ParentState()
	if err != nil {
		return nil, err
	}
	if err := p.Replay(s.Block, txIndex, statedb, s.GetHash()); err != nil {
		return nil, err
	}
	return statedb, nil
}
