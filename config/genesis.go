package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"latchain/crypto"
	"latchain/native/rewards"
)

// Genesis seeds a fresh node: the reward mint, the program parameters and any
// opening token balances.
type Genesis struct {
	Admin        string              `yaml:"admin"`
	RewardMint   string              `yaml:"rewardMint"`
	MintDecimals uint8               `yaml:"mintDecimals"`
	Params       GenesisParams       `yaml:"params"`
	Allocations  []GenesisAllocation `yaml:"allocations"`
}

type GenesisParams struct {
	TradeRewardRate     uint64 `yaml:"tradeRewardRate"`
	StakeRewardRate     uint64 `yaml:"stakeRewardRate"`
	TradeEpochDuration  int64  `yaml:"tradeEpochDuration"`
	PoolVolumeThreshold uint64 `yaml:"poolVolumeThreshold"`
	PoolBoostMultiplier uint64 `yaml:"poolBoostMultiplier"`
}

type GenesisAllocation struct {
	Owner  string `yaml:"owner"`
	Amount uint64 `yaml:"amount"`
}

// ResolvedAllocation is an allocation with a decoded owner.
type ResolvedAllocation struct {
	Owner  crypto.Address
	Amount uint64
}

var ErrInvalidGenesis = errors.New("genesis: invalid")

// LoadGenesis reads and validates a YAML genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var gen Genesis
	if err := yaml.Unmarshal(raw, &gen); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGenesis, err)
	}
	if err := gen.Validate(); err != nil {
		return nil, err
	}
	return &gen, nil
}

// WriteGenesis encodes gen as YAML at path.
func WriteGenesis(path string, gen *Genesis) error {
	if err := gen.Validate(); err != nil {
		return err
	}
	raw, err := yaml.Marshal(gen)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func (g *Genesis) Validate() error {
	if _, err := g.AdminAddress(); err != nil {
		return err
	}
	if _, err := g.InitializeParams(); err != nil {
		return err
	}
	_, err := g.ResolvedAllocations()
	return err
}

func (g *Genesis) AdminAddress() (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(g.Admin))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: admin: %v", ErrInvalidGenesis, err)
	}
	return addr, nil
}

// InitializeParams converts the genesis parameters for the reward engine.
func (g *Genesis) InitializeParams() (rewards.InitializeParams, error) {
	mint, err := crypto.DecodeAddress(strings.TrimSpace(g.RewardMint))
	if err != nil {
		return rewards.InitializeParams{}, fmt.Errorf("%w: rewardMint: %v", ErrInvalidGenesis, err)
	}
	params := rewards.InitializeParams{
		RewardMint:          mint,
		TradeRewardRate:     g.Params.TradeRewardRate,
		StakeRewardRate:     g.Params.StakeRewardRate,
		TradeEpochDuration:  g.Params.TradeEpochDuration,
		PoolVolumeThreshold: g.Params.PoolVolumeThreshold,
		PoolBoostMultiplier: g.Params.PoolBoostMultiplier,
	}
	if err := params.Validate(); err != nil {
		return rewards.InitializeParams{}, fmt.Errorf("%w: %v", ErrInvalidGenesis, err)
	}
	return params, nil
}

func (g *Genesis) ResolvedAllocations() ([]ResolvedAllocation, error) {
	out := make([]ResolvedAllocation, 0, len(g.Allocations))
	for i, alloc := range g.Allocations {
		owner, err := crypto.DecodeAddress(strings.TrimSpace(alloc.Owner))
		if err != nil {
			return nil, fmt.Errorf("%w: allocations[%d]: %v", ErrInvalidGenesis, i, err)
		}
		out = append(out, ResolvedAllocation{Owner: owner, Amount: alloc.Amount})
	}
	return out, nil
}
