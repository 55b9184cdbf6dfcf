package events

import (
	"strconv"

	"latchain/core/types"
	"latchain/crypto"
)

const (
	// TypeRewardsInitialized is emitted once when the program state is created.
	TypeRewardsInitialized = "lat.initialized"
	// TypeTradeRecorded captures a trade and the reward it accrued.
	TypeTradeRecorded = "lat.tradeRecorded"
	// TypeTradeRewardsClaimed is emitted when pending trade rewards are minted.
	TypeTradeRewardsClaimed = "lat.tradeRewardsClaimed"
	// TypeStaked captures tokens moving into the staking vault.
	TypeStaked = "lat.staked"
	// TypeStakeRewardsClaimed is emitted when staking rewards are minted.
	TypeStakeRewardsClaimed = "lat.stakeRewardsClaimed"
	// TypeStakeWithdrawn captures tokens leaving the staking vault.
	TypeStakeWithdrawn = "lat.stakeWithdrawn"
)

// RewardsInitialized records the configuration fixed at initialisation.
type RewardsInitialized struct {
	Admin               crypto.Address
	RewardMint          crypto.Address
	TradeRewardRate     uint64
	StakeRewardRate     uint64
	TradeEpochDuration  int64
	PoolVolumeThreshold uint64
	PoolBoostMultiplier uint64
}

// EventType satisfies the Event interface.
func (RewardsInitialized) EventType() string { return TypeRewardsInitialized }

// Event converts the structured payload into a broadcastable event.
func (e RewardsInitialized) Event() *types.Event {
	return &types.Event{Type: TypeRewardsInitialized, Attributes: map[string]string{
		"admin":               e.Admin.String(),
		"rewardMint":          e.RewardMint.String(),
		"tradeRewardRate":     formatAmount(e.TradeRewardRate),
		"stakeRewardRate":     formatAmount(e.StakeRewardRate),
		"tradeEpochDuration":  formatUnix(e.TradeEpochDuration),
		"poolVolumeThreshold": formatAmount(e.PoolVolumeThreshold),
		"poolBoostMultiplier": formatAmount(e.PoolBoostMultiplier),
	}}
}

// TradeRecorded captures a trade, the multiplier it observed and the accrued reward.
type TradeRecorded struct {
	Participant      crypto.Address
	Volume           uint64
	Reward           uint64
	Multiplier       uint64
	EpochTradeVolume uint64
	PendingRewards   uint64
}

// EventType satisfies the Event interface.
func (TradeRecorded) EventType() string { return TypeTradeRecorded }

// Event converts the structured payload into a broadcastable event.
func (e TradeRecorded) Event() *types.Event {
	return &types.Event{Type: TypeTradeRecorded, Attributes: map[string]string{
		"participant":      e.Participant.String(),
		"volume":           formatAmount(e.Volume),
		"reward":           formatAmount(e.Reward),
		"multiplier":       formatAmount(e.Multiplier),
		"epochTradeVolume": formatAmount(e.EpochTradeVolume),
		"pending":          formatAmount(e.PendingRewards),
	}}
}

// TradeRewardsClaimed captures a trade reward payout.
type TradeRewardsClaimed struct {
	Participant crypto.Address
	Amount      uint64
	ClaimedAt   int64
}

// EventType satisfies the Event interface.
func (TradeRewardsClaimed) EventType() string { return TypeTradeRewardsClaimed }

// Event converts the structured payload into a broadcastable event.
func (e TradeRewardsClaimed) Event() *types.Event {
	return &types.Event{Type: TypeTradeRewardsClaimed, Attributes: map[string]string{
		"participant": e.Participant.String(),
		"amount":      formatAmount(e.Amount),
		"claimedAt":   formatUnix(e.ClaimedAt),
	}}
}

// Staked captures a deposit into the staking vault.
type Staked struct {
	Participant crypto.Address
	Amount      uint64
	TotalStaked uint64
	StakeStart  int64
}

// EventType satisfies the Event interface.
func (Staked) EventType() string { return TypeStaked }

// Event converts the structured payload into a broadcastable event.
func (e Staked) Event() *types.Event {
	return &types.Event{Type: TypeStaked, Attributes: map[string]string{
		"participant": e.Participant.String(),
		"amount":      formatAmount(e.Amount),
		"totalStaked": formatAmount(e.TotalStaked),
		"stakeStart":  formatUnix(e.StakeStart),
	}}
}

// StakeRewardsClaimed captures a staking reward payout.
type StakeRewardsClaimed struct {
	Participant   crypto.Address
	Reward        uint64
	Duration      uint64
	EffectiveRate uint64
	Boosted       bool
}

// EventType satisfies the Event interface.
func (StakeRewardsClaimed) EventType() string { return TypeStakeRewardsClaimed }

// Event converts the structured payload into a broadcastable event.
func (e StakeRewardsClaimed) Event() *types.Event {
	return &types.Event{Type: TypeStakeRewardsClaimed, Attributes: map[string]string{
		"participant":   e.Participant.String(),
		"reward":        formatAmount(e.Reward),
		"duration":      formatAmount(e.Duration),
		"effectiveRate": formatAmount(e.EffectiveRate),
		"boosted":       strconv.FormatBool(e.Boosted),
	}}
}

// StakeWithdrawn captures tokens returned from the staking vault.
type StakeWithdrawn struct {
	Participant crypto.Address
	Amount      uint64
	Remaining   uint64
}

// EventType satisfies the Event interface.
func (StakeWithdrawn) EventType() string { return TypeStakeWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e StakeWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeStakeWithdrawn, Attributes: map[string]string{
		"participant": e.Participant.String(),
		"amount":      formatAmount(e.Amount),
		"remaining":   formatAmount(e.Remaining),
	}}
}
