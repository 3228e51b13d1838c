// Package opera defines the chain rules of a development network.
//
// This package provides:
//   - Network identification constants (DevNet, FakeNet)
//   - Block production parameters (gas limit, difficulty, coinbase)
//   - Economic parameters (gas prices, base fee, call gas cap)
//   - Protocol upgrade configuration (Berlin, London)
//
// The Rules type is the single source the execution layer derives its
// go-ethereum chain configuration and VM configuration from.

package opera

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/rony4d/go-opera-devnode/opera/contracts/evmwriter"

	ethparams "github.com/ethereum/go-ethereum/params"
)

// Network identification constants
const (
	// DevNetworkID is the chain ID of the default development network (31337)
	DevNetworkID uint64 = 31337

	// FakeNetworkID is the chain ID for local/fake networks used in testing (0xfa3 = 4003 in decimal)
	FakeNetworkID uint64 = 0xfa3

	// DefaultGasLimit is the block gas limit of development networks
	DefaultGasLimit uint64 = 30000000

	// DefaultCallGasCap bounds the gas of a single simulated call
	DefaultCallGasCap uint64 = 50000000
)

// DefaultVMConfig provides the default EVM configuration with precompiled contracts.
// This includes the EVM writer contract which applies privileged state edits.
var DefaultVMConfig = vm.Config{
	StatePrecompiles: map[common.Address]vm.PrecompiledStateContract{
		evmwriter.ContractAddress: &evmwriter.PreCompiledContract{},
	},
}

// Rules describes the complete configuration of a development network.
//
// Note: When implementing Copy(), ensure all non-copiable variables (like *big.Int)
// are properly deep-copied to avoid shared state issues.
type Rules struct {
	Name      string // Network name identifier (e.g., "dev", "legacy", "fake")
	NetworkID uint64 // Chain ID for transaction signing and network identification

	// Blockchain options - Block production rules
	Blocks BlocksRules

	// Economy options - Gas pricing and economic parameters
	Economy EconomyRules

	// Upgrades - Protocol upgrade flags
	Upgrades Upgrades
}

// BlocksRules contains rules for block production.
type BlocksRules struct {
	// GasLimit is the gas limit of every produced block
	GasLimit uint64

	// Difficulty is the proof-of-work difficulty of every produced block.
	// The mining target handed to external miners is derived from it.
	Difficulty *big.Int

	// Coinbase receives the fees of produced blocks
	Coinbase common.Address
}

// EconomyRules contains all economic parameters for the network.
type EconomyRules struct {
	// MinGasPrice is the gas price of legacy transactions the node signs
	// and the default priority fee of dynamic fee transactions
	MinGasPrice *big.Int

	// InitialBaseFee is the base fee of the genesis block when London is active
	InitialBaseFee *big.Int

	// CallGasCap bounds the gas of a simulated call
	CallGasCap uint64
}

// Upgrades tracks which protocol upgrades are enabled for a network.
// All enabled upgrades are active from genesis.
type Upgrades struct {
	Berlin bool // Berlin upgrade (EIP-2565, EIP-2929, EIP-2718, EIP-2930)
	London bool // London upgrade (EIP-1559, EIP-3198, EIP-3529, EIP-3541)
}

// EvmChainConfig converts Rules to Ethereum ChainConfig format.
// This is used for transaction signing and EVM execution.
//
// Returns:
//   - *ethparams.ChainConfig: Ethereum-compatible chain configuration
//
// London requires Berlin, so enabling London alone activates both.
func (r Rules) EvmChainConfig() *ethparams.ChainConfig {
	// Start with all Ethereum protocol changes as base
	cfg := *ethparams.AllEthashProtocolChanges

	// Set the chain ID from network ID
	cfg.ChainID = new(big.Int).SetUint64(r.NetworkID)

	cfg.BerlinBlock = nil
	cfg.LondonBlock = nil
	if r.Upgrades.Berlin || r.Upgrades.London {
		cfg.BerlinBlock = new(big.Int)
	}
	if r.Upgrades.London {
		cfg.LondonBlock = new(big.Int)
	}

	return &cfg
}

// DevNetRules returns the rules of the default development network:
// every upgrade enabled, EIP-1559 fees, a 30M gas limit.
func DevNetRules() Rules {
	return Rules{
		Name:      "dev",
		NetworkID: DevNetworkID,
		Blocks:    DefaultBlocksRules(),
		Economy:   DefaultEconomyRules(),
		Upgrades: Upgrades{
			Berlin: true,
			London: true,
		},
	}
}

// LegacyNetRules returns rules of a pre-London network.
// Blocks carry no base fee and the node signs legacy transactions.
func LegacyNetRules() Rules {
	rules := DevNetRules()
	rules.Name = "legacy"
	rules.Upgrades.London = false
	return rules
}

// FakeNetRules returns rules of the Opera fake network used in tests.
func FakeNetRules() Rules {
	rules := DevNetRules()
	rules.Name = "fake"
	rules.NetworkID = FakeNetworkID
	return rules
}

// DefaultBlocksRules returns the block production rules shared by all networks.
func DefaultBlocksRules() BlocksRules {
	return BlocksRules{
		GasLimit:   DefaultGasLimit,
		Difficulty: new(big.Int).Set(ethparams.MinimumDifficulty), // 131072
	}
}

// DefaultEconomyRules returns the economy configuration shared by all networks.
func DefaultEconomyRules() EconomyRules {
	return EconomyRules{
		MinGasPrice:    big.NewInt(1e9), // 1 Gwei
		InitialBaseFee: big.NewInt(ethparams.InitialBaseFee),
		CallGasCap:     DefaultCallGasCap,
	}
}

// Copy creates a deep copy of Rules.
// This is necessary because Rules contains pointer types (*big.Int) that
// would be shared in a shallow copy, leading to unintended mutations.
func (r Rules) Copy() Rules {
	cp := r
	cp.Blocks.Difficulty = copyBig(r.Blocks.Difficulty)
	cp.Economy.MinGasPrice = copyBig(r.Economy.MinGasPrice)
	cp.Economy.InitialBaseFee = copyBig(r.Economy.InitialBaseFee)
	return cp
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// String returns a JSON representation of Rules for debugging and logging.
func (r Rules) String() string {
	b, _ := json.Marshal(&r)
	return string(b)
}
