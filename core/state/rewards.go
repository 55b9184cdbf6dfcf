package state

import (
	"fmt"

	"latchain/crypto"
	"latchain/native/rewards"
)

// Timestamps and durations are stored as two's-complement uint64 because RLP
// has no signed integers.
type storedProgramState struct {
	Admin               crypto.Address
	RewardMint          crypto.Address
	TradeRewardRate     uint64
	StakeRewardRate     uint64
	TotalTrades         uint64
	EpochTradeVolume    uint64
	TradeEpochDuration  uint64
	PoolTradingVolume   uint64
	PoolVolumeThreshold uint64
	PoolBoostMultiplier uint64
	MintAuthBump        uint8
	VaultAuthBump       uint8
}

func newStoredProgramState(ps *rewards.ProgramState) *storedProgramState {
	return &storedProgramState{
		Admin:               ps.Admin,
		RewardMint:          ps.RewardMint,
		TradeRewardRate:     ps.TradeRewardRate,
		StakeRewardRate:     ps.StakeRewardRate,
		TotalTrades:         ps.TotalTrades,
		EpochTradeVolume:    ps.EpochTradeVolume,
		TradeEpochDuration:  uint64(ps.TradeEpochDuration),
		PoolTradingVolume:   ps.PoolTradingVolume,
		PoolVolumeThreshold: ps.PoolVolumeThreshold,
		PoolBoostMultiplier: ps.PoolBoostMultiplier,
		MintAuthBump:        ps.MintAuthBump,
		VaultAuthBump:       ps.VaultAuthBump,
	}
}

func (s *storedProgramState) toProgramState() *rewards.ProgramState {
	return &rewards.ProgramState{
		Admin:               s.Admin,
		RewardMint:          s.RewardMint,
		TradeRewardRate:     s.TradeRewardRate,
		StakeRewardRate:     s.StakeRewardRate,
		TotalTrades:         s.TotalTrades,
		EpochTradeVolume:    s.EpochTradeVolume,
		TradeEpochDuration:  int64(s.TradeEpochDuration),
		PoolTradingVolume:   s.PoolTradingVolume,
		PoolVolumeThreshold: s.PoolVolumeThreshold,
		PoolBoostMultiplier: s.PoolBoostMultiplier,
		MintAuthBump:        s.MintAuthBump,
		VaultAuthBump:       s.VaultAuthBump,
	}
}

type storedTraderStats struct {
	TradeCount          uint64
	TotalVolume         uint64
	PendingTradeRewards uint64
	LastClaim           uint64
}

type storedStakeRecord struct {
	Amount      uint64
	StakeStart  uint64
	LastUpdated uint64
}

// RewardProgramState loads the global reward record.
func (m *Manager) RewardProgramState() (*rewards.ProgramState, bool, error) {
	var stored storedProgramState
	ok, err := m.KVGet(rewardsProgramStateKey, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.toProgramState(), true, nil
}

// CreateRewardProgramState writes ps only when no record exists yet. The
// boolean reports whether the write happened.
func (m *Manager) CreateRewardProgramState(ps *rewards.ProgramState) (bool, error) {
	if ps == nil {
		return false, fmt.Errorf("state: program state must not be nil")
	}
	exists, err := m.KVGet(rewardsProgramStateKey, nil)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := m.KVPut(rewardsProgramStateKey, newStoredProgramState(ps)); err != nil {
		return false, err
	}
	return true, nil
}

// PutRewardProgramState overwrites the global reward record.
func (m *Manager) PutRewardProgramState(ps *rewards.ProgramState) error {
	if ps == nil {
		return fmt.Errorf("state: program state must not be nil")
	}
	return m.KVPut(rewardsProgramStateKey, newStoredProgramState(ps))
}

// TraderStats loads addr's trade ledger.
func (m *Manager) TraderStats(addr crypto.Address) (*rewards.TraderStats, bool, error) {
	var stored storedTraderStats
	ok, err := m.KVGet(TraderStatsKey(addr), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &rewards.TraderStats{
		TradeCount:          stored.TradeCount,
		TotalVolume:         stored.TotalVolume,
		PendingTradeRewards: stored.PendingTradeRewards,
		LastClaim:           int64(stored.LastClaim),
	}, true, nil
}

// GetOrCreateTraderStats returns addr's trade ledger, or a zeroed one that is
// not persisted until PutTraderStats.
func (m *Manager) GetOrCreateTraderStats(addr crypto.Address) (*rewards.TraderStats, error) {
	stats, ok, err := m.TraderStats(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &rewards.TraderStats{}, nil
	}
	return stats, nil
}

// PutTraderStats persists addr's trade ledger.
func (m *Manager) PutTraderStats(addr crypto.Address, stats *rewards.TraderStats) error {
	if stats == nil {
		return fmt.Errorf("state: trader stats must not be nil")
	}
	stored := &storedTraderStats{
		TradeCount:          stats.TradeCount,
		TotalVolume:         stats.TotalVolume,
		PendingTradeRewards: stats.PendingTradeRewards,
		LastClaim:           uint64(stats.LastClaim),
	}
	if err := m.KVPut(TraderStatsKey(addr), stored); err != nil {
		return err
	}
	return m.registerParticipant(addr)
}

// StakeRecord loads addr's stake ledger.
func (m *Manager) StakeRecord(addr crypto.Address) (*rewards.StakeRecord, bool, error) {
	var stored storedStakeRecord
	ok, err := m.KVGet(StakeRecordKey(addr), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &rewards.StakeRecord{
		Amount:      stored.Amount,
		StakeStart:  int64(stored.StakeStart),
		LastUpdated: int64(stored.LastUpdated),
	}, true, nil
}

// GetOrCreateStakeRecord returns addr's stake ledger, or a zeroed one that is
// not persisted until PutStakeRecord.
func (m *Manager) GetOrCreateStakeRecord(addr crypto.Address) (*rewards.StakeRecord, error) {
	record, ok, err := m.StakeRecord(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &rewards.StakeRecord{}, nil
	}
	return record, nil
}

// PutStakeRecord persists addr's stake ledger.
func (m *Manager) PutStakeRecord(addr crypto.Address, record *rewards.StakeRecord) error {
	if record == nil {
		return fmt.Errorf("state: stake record must not be nil")
	}
	stored := &storedStakeRecord{
		Amount:      record.Amount,
		StakeStart:  uint64(record.StakeStart),
		LastUpdated: uint64(record.LastUpdated),
	}
	if err := m.KVPut(StakeRecordKey(addr), stored); err != nil {
		return err
	}
	return m.registerParticipant(addr)
}

// registerParticipant indexes addr the first time it holds a record. Known
// participants cost a single lookup.
func (m *Manager) registerParticipant(addr crypto.Address) error {
	known, err := m.KVGet(participantKey(addr), nil)
	if err != nil || known {
		return err
	}
	count, err := m.ParticipantCount()
	if err != nil {
		return err
	}
	if err := m.KVPut(participantIndexKey(count), addr); err != nil {
		return err
	}
	if err := m.KVPut(participantKey(addr), count); err != nil {
		return err
	}
	return m.KVPut(rewardsParticipantCount, count+1)
}

// ParticipantCount returns how many addresses hold a trade or stake record.
func (m *Manager) ParticipantCount() (uint64, error) {
	var count uint64
	if _, err := m.KVGet(rewardsParticipantCount, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// Participants lists every address holding a trade or stake record, in the
// order they first appeared.
func (m *Manager) Participants() ([]crypto.Address, error) {
	count, err := m.ParticipantCount()
	if err != nil {
		return nil, err
	}
	out := make([]crypto.Address, 0, count)
	for i := uint64(0); i < count; i++ {
		var addr crypto.Address
		ok, err := m.KVGet(participantIndexKey(i), &addr)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("state: participant index %d missing", i)
		}
		out = append(out, addr)
	}
	return out, nil
}
