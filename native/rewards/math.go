package rewards

import (
	"math"

	"github.com/holiman/uint256"
)

func checkedAdd(a, b uint64) (uint64, error) {
	sum := new(uint256.Int).Add(uint256.NewInt(a), uint256.NewInt(b))
	if !sum.IsUint64() {
		return 0, ErrCalculation
	}
	return sum.Uint64(), nil
}

func checkedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrCalculation
	}
	return a - b, nil
}

func checkedMul(a, b uint64) (uint64, error) {
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	if !product.IsUint64() {
		return 0, ErrCalculation
	}
	return product.Uint64(), nil
}

func checkedAddInt64(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrCalculation
	}
	return a + b, nil
}

func checkedSubInt64(a, b int64) (int64, error) {
	if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
		return 0, ErrCalculation
	}
	return a - b, nil
}

// elapsedSeconds returns now-since. A clock that runs backwards is treated as
// an arithmetic failure rather than a negative interval.
func elapsedSeconds(now, since int64) (uint64, error) {
	diff, err := checkedSubInt64(now, since)
	if err != nil || diff < 0 {
		return 0, ErrCalculation
	}
	return uint64(diff), nil
}

// Multiplier returns the trade reward percentage for the epoch volume observed
// after the current trade has been accumulated.
func Multiplier(epochVolume, threshold uint64) uint64 {
	if epochVolume < threshold {
		return HighRewardMultiplier
	}
	return BaseMultiplier
}

// EffectiveRate applies the pool boost to the staking rate once pool volume
// strictly exceeds the threshold.
func EffectiveRate(baseRate, poolVolume, threshold, boost uint64) (uint64, error) {
	if poolVolume <= threshold {
		return baseRate, nil
	}
	boosted, err := checkedMul(baseRate, boost)
	if err != nil {
		return 0, err
	}
	return boosted / percentDenominator, nil
}

// TradeReward computes volume*rate*multiplier/100. Both products are checked
// before the division.
func TradeReward(volume, rate, multiplier uint64) (uint64, error) {
	scaled, err := checkedMul(volume, rate)
	if err != nil {
		return 0, err
	}
	scaled, err = checkedMul(scaled, multiplier)
	if err != nil {
		return 0, err
	}
	return scaled / percentDenominator, nil
}

// StakeReward computes amount*rate*duration.
func StakeReward(amount, rate, duration uint64) (uint64, error) {
	product, err := checkedMul(amount, rate)
	if err != nil {
		return 0, err
	}
	return checkedMul(product, duration)
}
