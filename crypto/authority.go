package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

const (
	maxSeeds      = 16
	maxSeedLength = 32
)

var (
	ErrSeedTooLong      = errors.New("crypto: derivation seed too long")
	ErrTooManySeeds     = errors.New("crypto: too many derivation seeds")
	ErrOnCurve          = errors.New("crypto: derived address lies on the ed25519 curve")
	ErrNoViableBump     = errors.New("crypto: no viable bump seed")
	derivedAddressLabel = []byte("ProgramDerivedAddress")
)

// CreateProgramAddress hashes seeds with the program identity and returns the
// derived address. The result must not be a valid ed25519 point, which
// guarantees no private key exists for it.
func CreateProgramAddress(seeds [][]byte, programID Address) (Address, error) {
	if len(seeds) > maxSeeds {
		return Address{}, ErrTooManySeeds
	}
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return Address{}, fmt.Errorf("%w: %d bytes", ErrSeedTooLong, len(seed))
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write(derivedAddressLabel)
	var out Address
	copy(out[:], h.Sum(nil))
	if isOnCurve(out[:]) {
		return Address{}, ErrOnCurve
	}
	return out, nil
}

// FindProgramAddress searches bumps from 255 downwards and returns the first
// off-curve derivation together with its bump.
func FindProgramAddress(seeds [][]byte, programID Address) (Address, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return Address{}, 0, err
		}
	}
	return Address{}, 0, ErrNoViableBump
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
