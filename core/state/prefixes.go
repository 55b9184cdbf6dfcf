package state

import (
	"encoding/binary"

	"latchain/crypto"
)

var (
	rewardsProgramStateKey   = []byte("rewards/state")
	rewardsTraderPrefix      = []byte("rewards/stats/")
	rewardsStakePrefix       = []byte("rewards/stake/")
	rewardsParticipantPrefix = []byte("rewards/participant/")
	rewardsParticipantIndex  = []byte("rewards/participants/")
	rewardsParticipantCount  = []byte("rewards/participants/count")
	tokenMintPrefix          = []byte("token/mint/")
	tokenBalancePrefix       = []byte("token/balance/")
	nonceKeyPrefix           = []byte("nonce/")
)

func prefixed(prefix []byte, parts ...crypto.Address) []byte {
	buf := make([]byte, 0, len(prefix)+len(parts)*len(crypto.Address{}))
	buf = append(buf, prefix...)
	for _, part := range parts {
		buf = append(buf, part[:]...)
	}
	return buf
}

// TraderStatsKey returns the unhashed key of addr's trade ledger.
func TraderStatsKey(addr crypto.Address) []byte {
	return prefixed(rewardsTraderPrefix, addr)
}

// StakeRecordKey returns the unhashed key of addr's stake ledger.
func StakeRecordKey(addr crypto.Address) []byte {
	return prefixed(rewardsStakePrefix, addr)
}

// TokenBalanceKey returns the unhashed key of owner's account for mint.
func TokenBalanceKey(mint, owner crypto.Address) []byte {
	return prefixed(tokenBalancePrefix, mint, owner)
}

func tokenMintKey(mint crypto.Address) []byte {
	return prefixed(tokenMintPrefix, mint)
}

func participantKey(addr crypto.Address) []byte {
	return prefixed(rewardsParticipantPrefix, addr)
}

func participantIndexKey(position uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte(nil), rewardsParticipantIndex...), position)
}

func nonceKey(addr crypto.Address) []byte {
	return prefixed(nonceKeyPrefix, addr)
}
