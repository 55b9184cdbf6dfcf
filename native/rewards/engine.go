package rewards

import (
	"fmt"
	"time"

	"latchain/core/events"
	"latchain/crypto"
	nativecommon "latchain/native/common"
	"latchain/native/token"
)

type engineState interface {
	RewardProgramState() (*ProgramState, bool, error)
	CreateRewardProgramState(state *ProgramState) (bool, error)
	PutRewardProgramState(state *ProgramState) error
	GetOrCreateTraderStats(addr crypto.Address) (*TraderStats, error)
	TraderStats(addr crypto.Address) (*TraderStats, bool, error)
	PutTraderStats(addr crypto.Address, stats *TraderStats) error
	GetOrCreateStakeRecord(addr crypto.Address) (*StakeRecord, error)
	StakeRecord(addr crypto.Address) (*StakeRecord, bool, error)
	PutStakeRecord(addr crypto.Address, record *StakeRecord) error
}

// TokenLedger moves reward tokens. Token accounts are addressed by owner.
type TokenLedger interface {
	Mint(mint crypto.Address, amount uint64, destination crypto.Address, authority token.Authority) error
	Transfer(mint crypto.Address, amount uint64, source, destination crypto.Address, authority token.Authority) error
}

// Clock reports trusted unix seconds.
type Clock interface {
	Now() int64
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() int64

func (f ClockFunc) Now() int64 { return f() }

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().Unix() }

// Engine applies the liquidity reward rules. It holds no locks: callers run
// each operation inside one atomic state transaction and discard it on error.
type Engine struct {
	state     engineState
	ledger    TokenLedger
	clock     Clock
	pauses    nativecommon.PauseView
	emitter   events.Emitter
	programID crypto.Address
}

// NewEngine constructs an engine signing on behalf of programID.
func NewEngine(programID crypto.Address) *Engine {
	return &Engine{
		programID: programID,
		clock:     SystemClock{},
		emitter:   events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) {
	if e == nil {
		return
	}
	e.state = state
}

// SetLedger wires the token ledger that holds and mints reward balances.
func (e *Engine) SetLedger(ledger TokenLedger) {
	if e == nil {
		return
	}
	e.ledger = ledger
}

// SetClock overrides the time source. A nil clock restores the wall clock.
func (e *Engine) SetClock(clock Clock) {
	if e == nil {
		return
	}
	if clock == nil {
		clock = SystemClock{}
	}
	e.clock = clock
}

// SetPauses wires the module pause switch consulted before every operation.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter routes engine events. A nil emitter discards them.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// ProgramID returns the identity derived authorities are scoped to.
func (e *Engine) ProgramID() crypto.Address { return e.programID }

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

func (e *Engine) loadProgramState() (*ProgramState, error) {
	ps, ok, err := e.state.RewardProgramState()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return ps, nil
}

// Initialize creates the program state with zeroed counters. It fails with
// ErrAlreadyInitialized when the record already exists.
func (e *Engine) Initialize(admin crypto.Address, params InitializeParams) (*ProgramState, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	auths, err := DeriveAuthorities(e.programID)
	if err != nil {
		return nil, err
	}
	ps := &ProgramState{
		Admin:               admin,
		RewardMint:          params.RewardMint,
		TradeRewardRate:     params.TradeRewardRate,
		StakeRewardRate:     params.StakeRewardRate,
		TradeEpochDuration:  params.TradeEpochDuration,
		PoolVolumeThreshold: params.PoolVolumeThreshold,
		PoolBoostMultiplier: params.PoolBoostMultiplier,
		MintAuthBump:        auths.MintAuthBump,
		VaultAuthBump:       auths.VaultAuthBump,
	}
	created, err := e.state.CreateRewardProgramState(ps)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, ErrAlreadyInitialized
	}
	e.emitter.Emit(events.RewardsInitialized{
		Admin:               admin,
		RewardMint:          ps.RewardMint,
		TradeRewardRate:     ps.TradeRewardRate,
		StakeRewardRate:     ps.StakeRewardRate,
		TradeEpochDuration:  ps.TradeEpochDuration,
		PoolVolumeThreshold: ps.PoolVolumeThreshold,
		PoolBoostMultiplier: ps.PoolBoostMultiplier,
	})
	return ps.Clone(), nil
}

// RecordTrade accrues the reward for a trade of volume. The multiplier is
// chosen after the trade has been added to the epoch volume. Nothing is
// minted; the reward joins the participant's pending balance.
func (e *Engine) RecordTrade(participant crypto.Address, volume uint64) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	ps, err := e.loadProgramState()
	if err != nil {
		return 0, err
	}
	if ps.TotalTrades, err = checkedAdd(ps.TotalTrades, 1); err != nil {
		return 0, err
	}
	if ps.EpochTradeVolume, err = checkedAdd(ps.EpochTradeVolume, volume); err != nil {
		return 0, err
	}
	if ps.PoolTradingVolume, err = checkedAdd(ps.PoolTradingVolume, volume); err != nil {
		return 0, err
	}

	stats, err := e.state.GetOrCreateTraderStats(participant)
	if err != nil {
		return 0, err
	}
	if stats.TradeCount, err = checkedAdd(stats.TradeCount, 1); err != nil {
		return 0, err
	}
	if stats.TotalVolume, err = checkedAdd(stats.TotalVolume, volume); err != nil {
		return 0, err
	}

	multiplier := Multiplier(ps.EpochTradeVolume, ps.PoolVolumeThreshold)
	reward, err := TradeReward(volume, ps.TradeRewardRate, multiplier)
	if err != nil {
		return 0, err
	}
	if stats.PendingTradeRewards, err = checkedAdd(stats.PendingTradeRewards, reward); err != nil {
		return 0, err
	}
	if stats.LastClaim == 0 {
		stats.LastClaim = e.clock.Now()
	}

	if err := e.state.PutRewardProgramState(ps); err != nil {
		return 0, err
	}
	if err := e.state.PutTraderStats(participant, stats); err != nil {
		return 0, err
	}
	e.emitter.Emit(events.TradeRecorded{
		Participant:      participant,
		Volume:           volume,
		Reward:           reward,
		Multiplier:       multiplier,
		EpochTradeVolume: ps.EpochTradeVolume,
		PendingRewards:   stats.PendingTradeRewards,
	})
	return reward, nil
}

// ClaimTradeRewards mints the participant's pending trade rewards once the
// epoch duration has elapsed since the last claim.
func (e *Engine) ClaimTradeRewards(participant crypto.Address) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if e.ledger == nil {
		return 0, errNilLedger
	}
	ps, err := e.loadProgramState()
	if err != nil {
		return 0, err
	}
	stats, ok, err := e.state.TraderStats(participant)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrTraderStatsNotFound
	}
	now := e.clock.Now()
	elapsed, err := checkedSubInt64(now, stats.LastClaim)
	if err != nil {
		return 0, err
	}
	if elapsed < ps.TradeEpochDuration {
		return 0, ErrEpochNotEnded
	}
	reward := stats.PendingTradeRewards
	if reward == 0 {
		return 0, ErrNoPendingRewards
	}
	stats.PendingTradeRewards = 0
	stats.LastClaim = now

	authority, _, err := e.signer(SeedMintAuthority, ps.MintAuthBump)
	if err != nil {
		return 0, err
	}
	if err := e.ledger.Mint(ps.RewardMint, reward, participant, authority); err != nil {
		return 0, fmt.Errorf("rewards: mint trade rewards: %w", err)
	}
	if err := e.state.PutTraderStats(participant, stats); err != nil {
		return 0, err
	}
	e.emitter.Emit(events.TradeRewardsClaimed{Participant: participant, Amount: reward, ClaimedAt: now})
	return reward, nil
}

// Stake moves amount from the participant's token account into the staking
// vault. The first stake anchors the vesting clock.
func (e *Engine) Stake(participant crypto.Address, amount uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.ledger == nil {
		return errNilLedger
	}
	ps, err := e.loadProgramState()
	if err != nil {
		return err
	}
	record, err := e.state.GetOrCreateStakeRecord(participant)
	if err != nil {
		return err
	}
	now := e.clock.Now()
	if record.StakeStart == 0 {
		record.StakeStart = now
	}
	if record.Amount, err = checkedAdd(record.Amount, amount); err != nil {
		return err
	}
	record.LastUpdated = now

	_, vault, err := e.signer(SeedVaultAuthority, ps.VaultAuthBump)
	if err != nil {
		return err
	}
	if err := e.ledger.Transfer(ps.RewardMint, amount, participant, vault, token.SignerAuthority(participant)); err != nil {
		return fmt.Errorf("rewards: stake transfer: %w", err)
	}
	if err := e.state.PutStakeRecord(participant, record); err != nil {
		return err
	}
	e.emitter.Emit(events.Staked{
		Participant: participant,
		Amount:      amount,
		TotalStaked: record.Amount,
		StakeStart:  record.StakeStart,
	})
	return nil
}

// StakeQuote is the outcome of evaluating a staking reward claim.
type StakeQuote struct {
	Reward        uint64
	Duration      uint64
	EffectiveRate uint64
	Boosted       bool
	ClaimedAt     int64
}

func quoteStakeReward(ps *ProgramState, record *StakeRecord, now int64) (*StakeQuote, error) {
	unlock, err := checkedAddInt64(record.StakeStart, VestingPeriodSeconds)
	if err != nil {
		return nil, err
	}
	if now < unlock {
		return nil, ErrVestingPeriodNotCompleted
	}
	duration, err := elapsedSeconds(now, record.LastUpdated)
	if err != nil {
		return nil, err
	}
	rate, err := EffectiveRate(ps.StakeRewardRate, ps.PoolTradingVolume, ps.PoolVolumeThreshold, ps.PoolBoostMultiplier)
	if err != nil {
		return nil, err
	}
	reward, err := StakeReward(record.Amount, rate, duration)
	if err != nil {
		return nil, err
	}
	return &StakeQuote{
		Reward:        reward,
		Duration:      duration,
		EffectiveRate: rate,
		Boosted:       ps.PoolTradingVolume > ps.PoolVolumeThreshold,
		ClaimedAt:     now,
	}, nil
}

// ClaimStakeRewards mints amount*effectiveRate*elapsed to the participant once
// the vesting period has passed. A zero reward is minted without error.
func (e *Engine) ClaimStakeRewards(participant crypto.Address) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if e.ledger == nil {
		return 0, errNilLedger
	}
	ps, err := e.loadProgramState()
	if err != nil {
		return 0, err
	}
	record, ok, err := e.state.StakeRecord(participant)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrStakeRecordNotFound
	}
	quote, err := quoteStakeReward(ps, record, e.clock.Now())
	if err != nil {
		return 0, err
	}
	record.LastUpdated = quote.ClaimedAt

	authority, _, err := e.signer(SeedMintAuthority, ps.MintAuthBump)
	if err != nil {
		return 0, err
	}
	if err := e.ledger.Mint(ps.RewardMint, quote.Reward, participant, authority); err != nil {
		return 0, fmt.Errorf("rewards: mint stake rewards: %w", err)
	}
	if err := e.state.PutStakeRecord(participant, record); err != nil {
		return 0, err
	}
	e.emitter.Emit(events.StakeRewardsClaimed{
		Participant:   participant,
		Reward:        quote.Reward,
		Duration:      quote.Duration,
		EffectiveRate: quote.EffectiveRate,
		Boosted:       quote.Boosted,
	})
	return quote.Reward, nil
}

// WithdrawStake returns amount from the staking vault to the participant. The
// vesting anchor and accrual timestamp are left untouched.
func (e *Engine) WithdrawStake(participant crypto.Address, amount uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.ledger == nil {
		return errNilLedger
	}
	ps, err := e.loadProgramState()
	if err != nil {
		return err
	}
	record, ok, err := e.state.StakeRecord(participant)
	if err != nil {
		return err
	}
	if !ok {
		return ErrStakeRecordNotFound
	}
	if amount > record.Amount {
		return ErrInsufficientStake
	}
	if record.Amount, err = checkedSub(record.Amount, amount); err != nil {
		return err
	}

	authority, vault, err := e.signer(SeedVaultAuthority, ps.VaultAuthBump)
	if err != nil {
		return err
	}
	if err := e.ledger.Transfer(ps.RewardMint, amount, vault, participant, authority); err != nil {
		return fmt.Errorf("rewards: withdraw transfer: %w", err)
	}
	if err := e.state.PutStakeRecord(participant, record); err != nil {
		return err
	}
	e.emitter.Emit(events.StakeWithdrawn{Participant: participant, Amount: amount, Remaining: record.Amount})
	return nil
}
