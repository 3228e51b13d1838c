package integration

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/trie"

	"github.com/rony4d/go-opera-devnode/evmcore"
	"github.com/rony4d/go-opera-devnode/ledger"
	"github.com/rony4d/go-opera-devnode/miner"
	"github.com/rony4d/go-opera-devnode/opera"
	"github.com/rony4d/go-opera-devnode/opera/genesis"
	"github.com/rony4d/go-opera-devnode/reorg"
	"github.com/rony4d/go-opera-devnode/simulate"
	"github.com/rony4d/go-opera-devnode/storagerange"
)

// Node is an assembled development node. Every component shares the same
// ledger; none of them keeps chain data of its own.
type Node struct {
	Config PresetConfig

	Signers   *evmcore.DevSigners
	Builder   *evmcore.Builder
	Ledger    *ledger.Ledger
	Reorg     *reorg.Engine
	Simulator *simulate.Simulator
	Storage   *storagerange.Paginator
	Miner     *miner.Miner
	Work      *miner.WorkIssuer
}

// NewNode builds a node from a preset. The dev accounts of the preset are
// funded on top of g; a nil allocation starts from an empty one.
func NewNode(cfg PresetConfig, g genesis.Genesis) (*Node, error) {
	if cfg.Rules.Blocks.Difficulty == nil || cfg.Rules.Economy.MinGasPrice == nil {
		return nil, errors.New("preset has incomplete chain rules")
	}
	rules := cfg.Rules
	chainID := new(big.Int).SetUint64(rules.NetworkID)
	signers := evmcore.NewDevSigners(cfg.Accounts, chainID)

	alloc := genesis.New(g.Time)
	if alloc.Time == 0 {
		alloc.Time = genesis.DefaultTime
	}
	for addr, acc := range g.Alloc {
		alloc.Alloc[addr] = acc
	}
	if cfg.Balance != nil {
		for _, addr := range signers.Accounts() {
			alloc.Fund(addr, cfg.Balance)
		}
	}

	db := state.NewDatabaseWithConfig(rawdb.NewMemoryDatabase(), &trie.Config{Preimages: true})
	statedb, err := state.New(common.Hash{}, db, nil)
	if err != nil {
		return nil, err
	}
	gen, err := evmcore.ApplyGenesis(statedb, alloc, rules)
	if err != nil {
		return nil, err
	}
	l, err := ledger.New(db, gen.Root, gen)
	if err != nil {
		return nil, err
	}

	processor := evmcore.NewStateProcessor(rules.EvmChainConfig(), opera.DefaultVMConfig)
	builder := evmcore.NewBuilder(rules, processor, signers)
	n := &Node{
		Config:    cfg,
		Signers:   signers,
		Builder:   builder,
		Ledger:    l,
		Reorg:     reorg.New(l, builder),
		Simulator: simulate.New(l, processor, rules.Economy.CallGasCap),
		Storage:   storagerange.New(l, processor),
		Miner:     miner.New(l, builder),
		Work:      miner.NewWorkIssuer(l, builder, cfg.LegacyWork),
	}
	log.Info("Development chain initialised", "preset", cfg.Name, "chain", rules.NetworkID, "genesis", gen.Hash, "accounts", len(signers.Accounts()))
	return n, nil
}

// Start launches the background services of the node. They stop with ctx.
func (n *Node) Start(ctx context.Context) {
	if n.Config.BlockTime > 0 {
		go n.Miner.Run(ctx, n.Config.BlockTime)
	}
}
