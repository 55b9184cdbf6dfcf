package types

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"latchain/crypto"
)

func signedInstruction(t *testing.T) (*Instruction, *crypto.PrivateKey) {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	ix := &Instruction{Network: "latnet", Type: InstructionRecordTrade, Nonce: 1, Amount: 500}
	require.NoError(t, ix.Sign(key))
	return ix, key
}

func TestInstructionSignVerify(t *testing.T) {
	ix, key := signedInstruction(t)
	require.Equal(t, key.PubKey().Address(), ix.Caller)
	require.NoError(t, ix.Verify())

	tampered := *ix
	tampered.Amount = 501
	require.True(t, errors.Is(tampered.Verify(), crypto.ErrInvalidSignature))

	otherNet := *ix
	otherNet.Network = "other"
	require.Error(t, otherNet.Verify())
}

func TestInstructionVerifyShape(t *testing.T) {
	ix := &Instruction{Type: InstructionType(0x7f), Signature: []byte{1}}
	require.Error(t, ix.Verify())

	ix = &Instruction{Type: InstructionInitialize, Signature: []byte{1}}
	require.ErrorIs(t, ix.Verify(), ErrMissingInitArgs)

	ix = &Instruction{Type: InstructionStake}
	require.ErrorIs(t, ix.Verify(), ErrMissingSignature)
}

func TestInitializeArgsAreSigned(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	ix := &Instruction{
		Network: "latnet",
		Type:    InstructionInitialize,
		Nonce:   1,
		Init:    &InitializeArgs{TradeRewardRate: 10, TradeEpochDuration: -1},
	}
	require.NoError(t, ix.Sign(key))
	require.NoError(t, ix.Verify())
	ix.Init.TradeRewardRate = 11
	require.Error(t, ix.Verify())
}

func TestInstructionHashCoversSignature(t *testing.T) {
	ix, _ := signedInstruction(t)
	first, err := ix.Hash()
	require.NoError(t, err)
	again, err := ix.Hash()
	require.NoError(t, err)
	require.Equal(t, first, again)

	ix.Signature = append([]byte(nil), ix.Signature...)
	ix.Signature[0] ^= 0xff
	changed, err := ix.Hash()
	require.NoError(t, err)
	require.NotEqual(t, first, changed)
	require.Len(t, FormatID(first), 66)
}

func TestInstructionJSONRoundTrip(t *testing.T) {
	ix, _ := signedInstruction(t)
	raw, err := json.Marshal(ix)
	require.NoError(t, err)
	var decoded Instruction
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, *ix, decoded)
	require.NoError(t, decoded.Verify())
}

func TestParseInstructionType(t *testing.T) {
	for typ := InstructionInitialize; typ <= InstructionWithdrawStake; typ++ {
		parsed, err := ParseInstructionType(typ.String())
		require.NoError(t, err)
		require.Equal(t, typ, parsed)
	}
	_, err := ParseInstructionType("mint")
	require.Error(t, err)
	require.Equal(t, "unknown(0x09)", InstructionType(9).String())
}

func TestEventClone(t *testing.T) {
	evt := Event{Type: "x", Attributes: map[string]string{"a": "1"}}
	clone := evt.Clone()
	clone.Attributes["a"] = "2"
	require.Equal(t, "1", evt.Attributes["a"])
}
