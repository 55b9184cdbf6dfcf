package events

import (
	"latchain/core/types"
	"latchain/crypto"
)

const (
	// TypeTokenMinted is emitted when new supply is issued.
	TypeTokenMinted = "token.minted"
	// TypeTokenTransferred is emitted for balance movements between accounts.
	TypeTokenTransferred = "token.transferred"
)

type TokenMinted struct {
	Mint   crypto.Address
	To     crypto.Address
	Amount uint64
	Supply uint64
}

func (TokenMinted) EventType() string { return TypeTokenMinted }

func (e TokenMinted) Event() *types.Event {
	return &types.Event{Type: TypeTokenMinted, Attributes: map[string]string{
		"mint":   e.Mint.String(),
		"to":     e.To.String(),
		"amount": formatAmount(e.Amount),
		"supply": formatAmount(e.Supply),
	}}
}

type TokenTransferred struct {
	Mint   crypto.Address
	From   crypto.Address
	To     crypto.Address
	Amount uint64
}

func (TokenTransferred) EventType() string { return TypeTokenTransferred }

func (e TokenTransferred) Event() *types.Event {
	return &types.Event{Type: TypeTokenTransferred, Attributes: map[string]string{
		"mint":   e.Mint.String(),
		"from":   e.From.String(),
		"to":     e.To.String(),
		"amount": formatAmount(e.Amount),
	}}
}
