package types

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
	"lukechampine.com/blake3"

	"latchain/crypto"
)

// InstructionType selects the reward operation an instruction invokes.
type InstructionType byte

const (
	InstructionInitialize        InstructionType = 0x01
	InstructionRecordTrade       InstructionType = 0x02
	InstructionClaimTradeRewards InstructionType = 0x03
	InstructionStake             InstructionType = 0x04
	InstructionClaimStakeRewards InstructionType = 0x05
	InstructionWithdrawStake     InstructionType = 0x06
)

var instructionNames = map[InstructionType]string{
	InstructionInitialize:        "initialize",
	InstructionRecordTrade:       "recordTrade",
	InstructionClaimTradeRewards: "claimTradeRewards",
	InstructionStake:             "stake",
	InstructionClaimStakeRewards: "claimStakeRewards",
	InstructionWithdrawStake:     "withdrawStake",
}

func (t InstructionType) String() string {
	if name, ok := instructionNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02x)", byte(t))
}

// Valid reports whether t names a known operation.
func (t InstructionType) Valid() bool {
	_, ok := instructionNames[t]
	return ok
}

// ParseInstructionType resolves an operation name as rendered by String.
func ParseInstructionType(name string) (InstructionType, error) {
	trimmed := strings.TrimSpace(name)
	for t, candidate := range instructionNames {
		if strings.EqualFold(candidate, trimmed) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown instruction %q", name)
}

var (
	ErrMissingSignature = errors.New("instruction: signature required")
	ErrMissingInitArgs  = errors.New("instruction: initialize arguments required")
)

// InitializeArgs carries the program configuration for InstructionInitialize.
type InitializeArgs struct {
	RewardMint          crypto.Address `json:"rewardMint" yaml:"rewardMint"`
	TradeRewardRate     uint64         `json:"tradeRewardRate" yaml:"tradeRewardRate"`
	StakeRewardRate     uint64         `json:"stakeRewardRate" yaml:"stakeRewardRate"`
	TradeEpochDuration  int64          `json:"tradeEpochDuration" yaml:"tradeEpochDuration"`
	PoolVolumeThreshold uint64         `json:"poolVolumeThreshold" yaml:"poolVolumeThreshold"`
	PoolBoostMultiplier uint64         `json:"poolBoostMultiplier" yaml:"poolBoostMultiplier"`
}

// Instruction is a signed request to run one reward operation. Amount is the
// trade volume, stake amount or withdrawal amount depending on Type.
type Instruction struct {
	Network   string          `json:"network"`
	Type      InstructionType `json:"type"`
	Caller    crypto.Address  `json:"caller"`
	Nonce     uint64          `json:"nonce"`
	Amount    uint64          `json:"amount,omitempty"`
	Init      *InitializeArgs `json:"init,omitempty"`
	Signature []byte          `json:"signature,omitempty"`
}

type initPayload struct {
	RewardMint          [32]byte
	TradeRewardRate     uint64
	StakeRewardRate     uint64
	TradeEpochDuration  uint64
	PoolVolumeThreshold uint64
	PoolBoostMultiplier uint64
}

type signingPayload struct {
	Network string
	Type    uint8
	Caller  [32]byte
	Nonce   uint64
	Amount  uint64
	Init    initPayload
}

// SigningBytes returns the RLP encoding covered by the signature.
func (ix *Instruction) SigningBytes() ([]byte, error) {
	if ix == nil {
		return nil, errors.New("instruction: nil")
	}
	payload := signingPayload{
		Network: ix.Network,
		Type:    uint8(ix.Type),
		Caller:  ix.Caller,
		Nonce:   ix.Nonce,
		Amount:  ix.Amount,
	}
	if ix.Init != nil {
		payload.Init = initPayload{
			RewardMint:          ix.Init.RewardMint,
			TradeRewardRate:     ix.Init.TradeRewardRate,
			StakeRewardRate:     ix.Init.StakeRewardRate,
			TradeEpochDuration:  uint64(ix.Init.TradeEpochDuration),
			PoolVolumeThreshold: ix.Init.PoolVolumeThreshold,
			PoolBoostMultiplier: ix.Init.PoolBoostMultiplier,
		}
	}
	return rlp.EncodeToBytes(payload)
}

// Sign sets Caller to the key's identity and signs the instruction.
func (ix *Instruction) Sign(key *crypto.PrivateKey) error {
	if key == nil {
		return errors.New("instruction: nil signing key")
	}
	ix.Caller = key.PubKey().Address()
	msg, err := ix.SigningBytes()
	if err != nil {
		return err
	}
	ix.Signature = key.Sign(msg)
	return nil
}

// Verify checks the shape of the instruction and the caller's signature.
func (ix *Instruction) Verify() error {
	if ix == nil {
		return errors.New("instruction: nil")
	}
	if !ix.Type.Valid() {
		return fmt.Errorf("instruction: unknown type 0x%02x", byte(ix.Type))
	}
	if ix.Type == InstructionInitialize && ix.Init == nil {
		return ErrMissingInitArgs
	}
	if len(ix.Signature) == 0 {
		return ErrMissingSignature
	}
	msg, err := ix.SigningBytes()
	if err != nil {
		return err
	}
	return crypto.Verify(ix.Caller, msg, ix.Signature)
}

// Hash identifies a signed instruction. It covers the signature so two
// differently signed copies never collide.
func (ix *Instruction) Hash() ([32]byte, error) {
	msg, err := ix.SigningBytes()
	if err != nil {
		return [32]byte{}, err
	}
	hasher := blake3.New(32, nil)
	_, _ = hasher.Write(msg)
	_, _ = hasher.Write(ix.Signature)
	var out [32]byte
	copy(out[:], hasher.Sum(nil))
	return out, nil
}

// Receipt reports the outcome of a committed instruction. Reward is the amount
// accrued by a trade or minted by a claim.
type Receipt struct {
	ID        string          `json:"id"`
	Type      InstructionType `json:"type"`
	Operation string          `json:"operation"`
	Caller    crypto.Address  `json:"caller"`
	Nonce     uint64          `json:"nonce"`
	Amount    uint64          `json:"amount"`
	Reward    uint64          `json:"reward"`
	Sequence  uint64          `json:"sequence"`
	StateRoot string          `json:"stateRoot"`
	Timestamp int64           `json:"timestamp"`
	Events    []Event         `json:"events"`
}

// FormatID renders an instruction hash as a receipt identifier.
func FormatID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}
