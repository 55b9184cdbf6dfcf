package rewards

import (
	"fmt"

	"latchain/crypto"
)

// InitializeParams carries the economic configuration fixed at initialisation.
type InitializeParams struct {
	RewardMint          crypto.Address
	TradeRewardRate     uint64
	StakeRewardRate     uint64
	TradeEpochDuration  int64
	PoolVolumeThreshold uint64
	PoolBoostMultiplier uint64
}

// Validate rejects configurations that could never mint.
func (p InitializeParams) Validate() error {
	if p.RewardMint.IsZero() {
		return fmt.Errorf("%w: reward mint required", ErrInvalidParams)
	}
	return nil
}

// ProgramState is the single global record: configuration plus the aggregate
// counters every trade updates.
type ProgramState struct {
	Admin               crypto.Address
	RewardMint          crypto.Address
	TradeRewardRate     uint64
	StakeRewardRate     uint64
	TotalTrades         uint64
	EpochTradeVolume    uint64
	TradeEpochDuration  int64
	PoolTradingVolume   uint64
	PoolVolumeThreshold uint64
	PoolBoostMultiplier uint64
	MintAuthBump        uint8
	VaultAuthBump       uint8
}

// Clone returns a deep copy.
func (s *ProgramState) Clone() *ProgramState {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

// TraderStats is the per-participant trade ledger.
type TraderStats struct {
	TradeCount          uint64
	TotalVolume         uint64
	PendingTradeRewards uint64
	// LastClaim is the first trade time until the first successful claim.
	LastClaim int64
}

func (s *TraderStats) Clone() *TraderStats {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

// StakeRecord is the per-participant staking ledger.
type StakeRecord struct {
	Amount uint64
	// StakeStart is fixed by the first stake and never re-armed.
	StakeStart  int64
	LastUpdated int64
}

func (r *StakeRecord) Clone() *StakeRecord {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// Authorities lists the identities derived for a program.
type Authorities struct {
	ProgramID      crypto.Address
	State          crypto.Address
	MintAuthority  crypto.Address
	MintAuthBump   uint8
	VaultAuthority crypto.Address
	VaultAuthBump  uint8
}
