package integration

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/params"

	"github.com/rony4d/go-opera-devnode/opera"
)

// Package integration provides chain presets and assembles the components of
// a development node. Presets bundle the settings a developer usually wants
// together (chain rules, dev accounts, mining mode) into named profiles so a
// node can be started without tweaking dozens of flags.
//
// Usage:
//   cfg := integration.DefaultPreset() // London chain, automine
//   cfg := integration.LegacyPreset()  // pre-London chain, 3-element work
//   cfg := integration.PowPreset()     // interval mining for external miners
//
// Each preset returns a PresetConfig that the launcher merges into its main
// config before the node is assembled.

// PresetConfig captures the parameters that vary across preset profiles.
type PresetConfig struct {
	Name       string        // human-readable identifier (e.g., "default", "legacy")
	Rules      opera.Rules   // chain rules: chain id, gas limit, upgrades, economy
	Accounts   int           // number of funded dev accounts the node signs for
	Balance    *big.Int      // genesis balance of every dev account
	BlockTime  time.Duration // interval mining period, zero mines only on demand
	LegacyWork bool          // issue work without the block number
}

// defaultBalance funds each dev account with 10000 ether.
var defaultBalance = new(big.Int).Mul(big.NewInt(10000), big.NewInt(params.Ether))

// DefaultPreset returns a London chain with ten funded accounts, mining a
// block for every submitted transaction.
func DefaultPreset() PresetConfig {
	return PresetConfig{
		Name:     "default",
		Rules:    opera.DevNetRules(),
		Accounts: 10,
		Balance:  new(big.Int).Set(defaultBalance),
	}
}

// LegacyPreset returns a chain without EIP-1559 whose work descriptors
// omit the block number, for tooling written against older nodes.
//
// Use cases:
//   - Testing contracts that rely on legacy gas pricing
//   - Miners that only accept the three element getWork response
func LegacyPreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "legacy"
	cfg.Rules = opera.LegacyNetRules()
	cfg.LegacyWork = true
	return cfg
}

// PowPreset returns a chain that keeps producing blocks at a fixed interval,
// so external miners always find fresh work.
func PowPreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "pow"
	cfg.Rules = opera.FakeNetRules()
	cfg.BlockTime = 5 * time.Second
	return cfg
}

// GetPresetByName looks up a preset by its string identifier.
// This helper enables CLI flags like --preset=legacy to select configurations
// dynamically.
//
// Example:
//
//	preset, err := integration.GetPresetByName("legacy")
//	if err != nil {
//	    log.Fatal(err)
//	}
func GetPresetByName(name string) (PresetConfig, error) {
	switch name {
	case "default", "":
		return DefaultPreset(), nil
	case "legacy":
		return LegacyPreset(), nil
	case "pow":
		return PowPreset(), nil
	default:
		return PresetConfig{}, fmt.Errorf("unknown preset: %q (valid: default, legacy, pow)", name)
	}
}

// ApplyPreset merges a preset into an existing config. Set fields of the
// preset override the target; zero values leave it alone.
func ApplyPreset(target *PresetConfig, preset PresetConfig) {
	if preset.Name != "" {
		target.Name = preset.Name
		target.Rules = preset.Rules.Copy()
	}
	if preset.Accounts > 0 {
		target.Accounts = preset.Accounts
	}
	if preset.Balance != nil {
		target.Balance = new(big.Int).Set(preset.Balance)
	}
	if preset.BlockTime > 0 {
		target.BlockTime = preset.BlockTime
	}
	// boolean flags are always applied
	target.LegacyWork = preset.LegacyWork
}
