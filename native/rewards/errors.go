package rewards

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable numeric identifier reported to callers.
type ErrorCode uint32

const (
	CodeCalculationError ErrorCode = 6000 + iota
	CodeInsufficientStake
	CodeEpochNotEnded
	CodeNoPendingRewards
	CodeVestingPeriodNotCompleted
	CodeAlreadyInitialized
)

// Error is a reward-rule failure. Every instance aborts the whole call.
type Error struct {
	Code    ErrorCode
	Name    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("rewards: %s: %s", e.Name, e.Message)
}

var (
	ErrCalculation               = &Error{Code: CodeCalculationError, Name: "CalculationError", Message: "calculation overflow error"}
	ErrInsufficientStake         = &Error{Code: CodeInsufficientStake, Name: "InsufficientStake", Message: "insufficient staked amount"}
	ErrEpochNotEnded             = &Error{Code: CodeEpochNotEnded, Name: "EpochNotEnded", Message: "epoch duration has not ended for claiming trade rewards"}
	ErrNoPendingRewards          = &Error{Code: CodeNoPendingRewards, Name: "NoPendingRewards", Message: "no pending rewards to claim"}
	ErrVestingPeriodNotCompleted = &Error{Code: CodeVestingPeriodNotCompleted, Name: "VestingPeriodNotCompleted", Message: "vesting period of 7 days has not been completed"}
	ErrAlreadyInitialized        = &Error{Code: CodeAlreadyInitialized, Name: "AlreadyInitialized", Message: "program state already initialized"}
)

// Errors lists the taxonomy in code order.
func Errors() []*Error {
	return []*Error{
		ErrCalculation,
		ErrInsufficientStake,
		ErrEpochNotEnded,
		ErrNoPendingRewards,
		ErrVestingPeriodNotCompleted,
		ErrAlreadyInitialized,
	}
}

// AsError extracts the reward error wrapped inside err.
func AsError(err error) (*Error, bool) {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr, true
	}
	return nil, false
}

// CodeOf returns the taxonomy code wrapped inside err, or zero.
func CodeOf(err error) ErrorCode {
	if rerr, ok := AsError(err); ok {
		return rerr.Code
	}
	return 0
}

var (
	ErrNotInitialized      = errors.New("rewards: program state not initialized")
	ErrTraderStatsNotFound = errors.New("rewards: participant has no trade record")
	ErrStakeRecordNotFound = errors.New("rewards: participant has no stake record")
	ErrInvalidParams       = errors.New("rewards: invalid program parameters")
	errNilState            = errors.New("rewards engine: state not configured")
	errNilLedger           = errors.New("rewards engine: token ledger not configured")
	errAuthorityDerivation = errors.New("rewards engine: authority derivation failed")
)
