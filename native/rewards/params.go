package rewards

const moduleName = "rewards"

const (
	// VestingPeriodSeconds gates the first staking reward claim after the
	// participant's first stake.
	VestingPeriodSeconds int64 = 7 * 24 * 60 * 60

	// HighRewardMultiplier applies while epoch volume stays below the pool
	// threshold.
	HighRewardMultiplier uint64 = 150
	// BaseMultiplier applies once epoch volume reaches the threshold.
	BaseMultiplier uint64 = 100

	percentDenominator uint64 = 100
)

// Derivation seeds for the program's signing authorities.
const (
	SeedProgramState   = "lat_state"
	SeedMintAuthority  = "lat_mint_auth"
	SeedVaultAuthority = "vault_auth"
)

// DefaultProgramID is the identity the reward program runs under unless the
// node is configured otherwise.
const DefaultProgramID = "DRjNVFEBb6NmJJmfFJgbQo64gYWCcsw2ibzvm7F9HXRQ"
