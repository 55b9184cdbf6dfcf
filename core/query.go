package core

import (
	"latchain/core/events"
	chainstate "latchain/core/state"
	"latchain/crypto"
	"latchain/native/rewards"
	"latchain/observability/metrics"
)

// read runs fn against the committed state. Reads never mutate the trie.
func (n *Node) read(fn func(engine *rewards.Engine, manager *chainstate.Manager) error) error {
	if n == nil {
		return errNilNode
	}
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	manager := chainstate.NewManager(n.trie)
	engine, _ := n.engines(manager, &events.Buffer{}, n.clock.Now())
	return fn(engine, manager)
}

func (n *Node) ProgramState() (*rewards.ProgramState, error) {
	var out *rewards.ProgramState
	err := n.read(func(engine *rewards.Engine, _ *chainstate.Manager) error {
		var err error
		out, err = engine.ProgramState()
		return err
	})
	return out, err
}

// TraderStats returns addr's trade ledger; found is false for a participant
// that never traded.
func (n *Node) TraderStats(addr crypto.Address) (stats *rewards.TraderStats, found bool, err error) {
	err = n.read(func(engine *rewards.Engine, _ *chainstate.Manager) error {
		stats, found, err = engine.TraderStats(addr)
		return err
	})
	return stats, found, err
}

func (n *Node) StakeRecord(addr crypto.Address) (record *rewards.StakeRecord, found bool, err error) {
	err = n.read(func(engine *rewards.Engine, _ *chainstate.Manager) error {
		record, found, err = engine.StakeRecord(addr)
		return err
	})
	return record, found, err
}

// Balance returns owner's reward token balance.
func (n *Node) Balance(owner crypto.Address) (uint64, error) {
	var balance uint64
	err := n.read(func(engine *rewards.Engine, manager *chainstate.Manager) error {
		ps, err := engine.ProgramState()
		if err != nil {
			return err
		}
		balance, err = manager.TokenBalance(ps.RewardMint, owner)
		return err
	})
	return balance, err
}

func (n *Node) Authorities() (*rewards.Authorities, error) {
	return rewards.DeriveAuthorities(n.programID)
}

func (n *Node) ClaimSchedule(addr crypto.Address) (*rewards.Schedule, error) {
	var out *rewards.Schedule
	err := n.read(func(engine *rewards.Engine, _ *chainstate.Manager) error {
		var err error
		out, err = engine.ClaimSchedule(addr)
		return err
	})
	return out, err
}

func (n *Node) PreviewStakeReward(addr crypto.Address) (*rewards.StakeQuote, error) {
	var out *rewards.StakeQuote
	err := n.read(func(engine *rewards.Engine, _ *chainstate.Manager) error {
		var err error
		out, err = engine.PreviewStakeReward(addr)
		return err
	})
	return out, err
}

// Nonce returns the last accepted nonce for addr; the next instruction must
// carry Nonce+1.
func (n *Node) Nonce(addr crypto.Address) (uint64, error) {
	var nonce uint64
	err := n.read(func(_ *rewards.Engine, manager *chainstate.Manager) error {
		var err error
		nonce, err = manager.Nonce(addr)
		return err
	})
	return nonce, err
}

func (n *Node) Participants() ([]crypto.Address, error) {
	var out []crypto.Address
	err := n.read(func(_ *rewards.Engine, manager *chainstate.Manager) error {
		var err error
		out, err = manager.Participants()
		return err
	})
	return out, err
}

// Snapshot summarises program-wide counters for the metrics gauges.
func (n *Node) Snapshot() (metrics.Snapshot, error) {
	var snap metrics.Snapshot
	auths, err := n.Authorities()
	if err != nil {
		return snap, err
	}
	err = n.read(func(engine *rewards.Engine, manager *chainstate.Manager) error {
		ps, err := engine.ProgramState()
		if err != nil {
			return err
		}
		participants, err := manager.ParticipantCount()
		if err != nil {
			return err
		}
		vault, err := manager.TokenBalance(ps.RewardMint, auths.VaultAuthority)
		if err != nil {
			return err
		}
		snap = metrics.Snapshot{
			TotalTrades:       ps.TotalTrades,
			PoolTradingVolume: ps.PoolTradingVolume,
			EpochTradeVolume:  ps.EpochTradeVolume,
			Participants:      int(participants),
			VaultBalance:      vault,
		}
		return nil
	})
	return snap, err
}

// RefreshMetrics publishes the current snapshot to the gauges.
func (n *Node) RefreshMetrics() error {
	snap, err := n.Snapshot()
	if err != nil {
		return err
	}
	n.metrics.SetSnapshot(snap)
	return nil
}
