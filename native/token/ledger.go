package token

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"latchain/core/events"
	"latchain/crypto"
)

var (
	ErrMintNotFound      = errors.New("token: mint not found")
	ErrMintExists        = errors.New("token: mint already exists")
	ErrUnauthorized      = errors.New("token: authority does not match")
	ErrInvalidAuthority  = errors.New("token: invalid derived authority")
	ErrMissingAuthority  = errors.New("token: authority required")
	ErrInsufficientFunds = errors.New("token: insufficient funds")
	ErrOverflow          = errors.New("token: amount overflow")
	errNilState          = errors.New("token ledger: state not configured")
)

// Mint describes a fungible token and who may issue it.
type Mint struct {
	Authority crypto.Address
	Supply    uint64
	Decimals  uint8
}

// DerivedProof identifies a program-derived signer by its seeds. The ledger
// recomputes the address on every use.
type DerivedProof struct {
	Seed  string
	State crypto.Address
	Bump  uint8
}

// Authority is presented with every mint or transfer. Exactly one of Signer
// or Derived is meaningful; Derived wins when set.
type Authority struct {
	Signer  crypto.Address
	Derived *DerivedProof
}

func SignerAuthority(signer crypto.Address) Authority {
	return Authority{Signer: signer}
}

func DerivedAuthority(seed string, state crypto.Address, bump uint8) Authority {
	return Authority{Derived: &DerivedProof{Seed: seed, State: state, Bump: bump}}
}

type ledgerState interface {
	TokenMint(mint crypto.Address) (*Mint, bool, error)
	PutTokenMint(mint crypto.Address, m *Mint) error
	TokenBalance(mint, owner crypto.Address) (uint64, error)
	SetTokenBalance(mint, owner crypto.Address, amount uint64) error
}

// Ledger keeps token supply and balances. Token accounts are addressed by
// (mint, owner).
type Ledger struct {
	state     ledgerState
	programID crypto.Address
	emitter   events.Emitter
}

// NewLedger returns a ledger that honours derived authorities of programID.
func NewLedger(programID crypto.Address) *Ledger {
	return &Ledger{programID: programID, emitter: events.NoopEmitter{}}
}

// SetState wires the ledger to the external persistence layer.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if l == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

// Resolve returns the identity an authority proof speaks for.
func (l *Ledger) Resolve(auth Authority) (crypto.Address, error) {
	if auth.Derived == nil {
		if auth.Signer.IsZero() {
			return crypto.Address{}, ErrMissingAuthority
		}
		return auth.Signer, nil
	}
	proof := auth.Derived
	seeds := [][]byte{[]byte(proof.Seed), proof.State[:], {proof.Bump}}
	addr, err := crypto.CreateProgramAddress(seeds, l.programID)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %v", ErrInvalidAuthority, err)
	}
	return addr, nil
}

// CreateMint registers a new mint with a zero supply.
func (l *Ledger) CreateMint(mint, authority crypto.Address, decimals uint8) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if _, exists, err := l.state.TokenMint(mint); err != nil {
		return err
	} else if exists {
		return ErrMintExists
	}
	return l.state.PutTokenMint(mint, &Mint{Authority: authority, Decimals: decimals})
}

// MintInfo returns the mint metadata.
func (l *Ledger) MintInfo(mint crypto.Address) (*Mint, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	info, exists, err := l.state.TokenMint(mint)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrMintNotFound
	}
	return info, nil
}

// Balance returns the balance of owner's account for mint.
func (l *Ledger) Balance(mint, owner crypto.Address) (uint64, error) {
	if l == nil || l.state == nil {
		return 0, errNilState
	}
	return l.state.TokenBalance(mint, owner)
}

// Mint issues amount new tokens into destination's account. The authority
// must resolve to the mint's registered authority.
func (l *Ledger) Mint(mint crypto.Address, amount uint64, destination crypto.Address, authority Authority) error {
	info, err := l.MintInfo(mint)
	if err != nil {
		return err
	}
	signer, err := l.Resolve(authority)
	if err != nil {
		return err
	}
	if signer != info.Authority {
		return fmt.Errorf("%w: mint %s", ErrUnauthorized, mint)
	}
	supply, err := addAmount(info.Supply, amount)
	if err != nil {
		return err
	}
	balance, err := l.state.TokenBalance(mint, destination)
	if err != nil {
		return err
	}
	balance, err = addAmount(balance, amount)
	if err != nil {
		return err
	}
	info.Supply = supply
	if err := l.state.PutTokenMint(mint, info); err != nil {
		return err
	}
	if err := l.state.SetTokenBalance(mint, destination, balance); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenMinted{Mint: mint, To: destination, Amount: amount, Supply: supply})
	return nil
}

// Transfer moves amount from source's account to destination's account. The
// authority must resolve to the source owner.
func (l *Ledger) Transfer(mint crypto.Address, amount uint64, source, destination crypto.Address, authority Authority) error {
	if _, err := l.MintInfo(mint); err != nil {
		return err
	}
	signer, err := l.Resolve(authority)
	if err != nil {
		return err
	}
	if signer != source {
		return fmt.Errorf("%w: account %s", ErrUnauthorized, source)
	}
	fromBalance, err := l.state.TokenBalance(mint, source)
	if err != nil {
		return err
	}
	if fromBalance < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, fromBalance, amount)
	}
	if source != destination {
		toBalance, err := l.state.TokenBalance(mint, destination)
		if err != nil {
			return err
		}
		toBalance, err = addAmount(toBalance, amount)
		if err != nil {
			return err
		}
		if err := l.state.SetTokenBalance(mint, source, fromBalance-amount); err != nil {
			return err
		}
		if err := l.state.SetTokenBalance(mint, destination, toBalance); err != nil {
			return err
		}
	}
	l.emitter.Emit(events.TokenTransferred{Mint: mint, From: source, To: destination, Amount: amount})
	return nil
}

func addAmount(a, b uint64) (uint64, error) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !sum.IsUint64() {
		return 0, ErrOverflow
	}
	return sum.Uint64(), nil
}
