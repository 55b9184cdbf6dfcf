package rewards

import (
	"fmt"

	"latchain/crypto"
	"latchain/native/token"
)

// StateAddress derives the identity of the program's global state record.
func StateAddress(programID crypto.Address) (crypto.Address, uint8, error) {
	return crypto.FindProgramAddress([][]byte{[]byte(SeedProgramState)}, programID)
}

// DeriveAuthority derives the signer for seedTag scoped to the global state
// identity and returns it together with its bump.
func DeriveAuthority(programID crypto.Address, seedTag string, stateID crypto.Address) (crypto.Address, uint8, error) {
	return crypto.FindProgramAddress([][]byte{[]byte(seedTag), stateID[:]}, programID)
}

// DeriveAuthorities derives every identity the program signs with.
func DeriveAuthorities(programID crypto.Address) (*Authorities, error) {
	stateID, _, err := StateAddress(programID)
	if err != nil {
		return nil, fmt.Errorf("%w: state: %v", errAuthorityDerivation, err)
	}
	mintAuth, mintBump, err := DeriveAuthority(programID, SeedMintAuthority, stateID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errAuthorityDerivation, SeedMintAuthority, err)
	}
	vaultAuth, vaultBump, err := DeriveAuthority(programID, SeedVaultAuthority, stateID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errAuthorityDerivation, SeedVaultAuthority, err)
	}
	return &Authorities{
		ProgramID:      programID,
		State:          stateID,
		MintAuthority:  mintAuth,
		MintAuthBump:   mintBump,
		VaultAuthority: vaultAuth,
		VaultAuthBump:  vaultBump,
	}, nil
}

// signer rebuilds the derived signing proof for seedTag from the stored bump.
// It runs on every signing call; nothing is cached between calls.
func (e *Engine) signer(seedTag string, bump uint8) (token.Authority, crypto.Address, error) {
	stateID, _, err := StateAddress(e.programID)
	if err != nil {
		return token.Authority{}, crypto.Address{}, fmt.Errorf("%w: state: %v", errAuthorityDerivation, err)
	}
	addr, err := crypto.CreateProgramAddress([][]byte{[]byte(seedTag), stateID[:], {bump}}, e.programID)
	if err != nil {
		return token.Authority{}, crypto.Address{}, fmt.Errorf("%w: %s: %v", errAuthorityDerivation, seedTag, err)
	}
	return token.DerivedAuthority(seedTag, stateID, bump), addr, nil
}
