package rewards

import "latchain/crypto"

// ProgramState returns the global record.
func (e *Engine) ProgramState() (*ProgramState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadProgramState()
}

// TraderStats returns the participant's trade ledger or a zero record when
// the participant has never traded.
func (e *Engine) TraderStats(participant crypto.Address) (*TraderStats, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	stats, ok, err := e.state.TraderStats(participant)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return &TraderStats{}, false, nil
	}
	return stats, true, nil
}

// StakeRecord returns the participant's staking ledger or a zero record when
// the participant has never staked.
func (e *Engine) StakeRecord(participant crypto.Address) (*StakeRecord, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	record, ok, err := e.state.StakeRecord(participant)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return &StakeRecord{}, false, nil
	}
	return record, true, nil
}

// PreviewStakeReward evaluates a staking claim at the current time without
// mutating state or minting.
func (e *Engine) PreviewStakeReward(participant crypto.Address) (*StakeQuote, error) {
	ps, err := e.ProgramState()
	if err != nil {
		return nil, err
	}
	record, ok, err := e.state.StakeRecord(participant)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStakeRecordNotFound
	}
	return quoteStakeReward(ps, record, e.clock.Now())
}

// Schedule reports when a participant's next claims open.
type Schedule struct {
	TradeClaimAt int64
	VestingEndAt int64
}

// ClaimSchedule returns the earliest unix times at which trade and stake
// claims stop failing on their time gates. A zero field means the record does
// not exist yet.
func (e *Engine) ClaimSchedule(participant crypto.Address) (*Schedule, error) {
	ps, err := e.ProgramState()
	if err != nil {
		return nil, err
	}
	out := &Schedule{}
	if stats, ok, err := e.state.TraderStats(participant); err != nil {
		return nil, err
	} else if ok {
		if out.TradeClaimAt, err = checkedAddInt64(stats.LastClaim, ps.TradeEpochDuration); err != nil {
			return nil, err
		}
	}
	if record, ok, err := e.state.StakeRecord(participant); err != nil {
		return nil, err
	} else if ok {
		if out.VestingEndAt, err = checkedAddInt64(record.StakeStart, VestingPeriodSeconds); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Authorities derives the program's signing identities.
func (e *Engine) Authorities() (*Authorities, error) {
	return DeriveAuthorities(e.programID)
}
