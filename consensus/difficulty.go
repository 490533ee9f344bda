package consensus

import "math/big"

// two256 is 2^256, computed once.
var two256 = new(big.Int).Lsh(big.NewInt(1), 256)

// two256Minus1 is 2^256 - 1, the numerator of the difficulty<->target
// conversion.
var two256Minus1 = new(big.Int).Sub(two256, big.NewInt(1))

// DifficultyAdjustmentConfig parameterizes AdjustDifficulty.
type DifficultyAdjustmentConfig struct {
	TargetBlockTimeSecs      int64
	AdjustmentIntervalBlocks int64
	DampeningFactor          int64
	MinDifficulty            Difficulty
	MaxDifficulty            Difficulty
}

// validate checks the configuration's internal consistency invariants.
func (c DifficultyAdjustmentConfig) validate() error {
	if c.TargetBlockTimeSecs <= 0 {
		return newErr(ErrInvalidArgument, "target_block_time_s must be > 0")
	}
	if c.AdjustmentIntervalBlocks <= 0 {
		return newErr(ErrInvalidArgument, "adjustment_interval_blocks must be > 0")
	}
	if c.DampeningFactor <= 0 {
		return newErr(ErrInvalidArgument, "dampening_factor must be > 0")
	}
	if c.MinDifficulty < 1 {
		return newErr(ErrInvalidArgument, "min_difficulty must be >= 1")
	}
	if c.MaxDifficulty < c.MinDifficulty {
		return newErr(ErrInvalidArgument, "max_difficulty must be >= min_difficulty")
	}
	return nil
}

// DifficultyToTarget encodes a positive difficulty as a 32-byte big-endian
// target: target = (2^256 - 1) / difficulty.
func DifficultyToTarget(difficulty Difficulty) (Hash32, error) {
	if difficulty <= 0 {
		return Hash32{}, newErr(ErrInvalidArgument, "difficulty must be > 0")
	}
	t := new(big.Int).Div(two256Minus1, big.NewInt(difficulty))
	return bigIntToHash32(t)
}

// TargetToDifficulty decodes a 32-byte big-endian target back into a
// difficulty value: difficulty = (2^256 - 1) / target. A zero target maps
// to math.MaxInt64; results exceeding math.MaxInt64 saturate.
func TargetToDifficulty(target Hash32) (Difficulty, error) {
	t := new(big.Int).SetBytes(target[:])
	if t.Sign() == 0 {
		return maxInt64, nil
	}
	d := new(big.Int).Div(two256Minus1, t)
	if !d.IsInt64() {
		return maxInt64, nil
	}
	v := d.Int64()
	if v < 0 || v > maxInt64 {
		return maxInt64, nil
	}
	return v, nil
}

const maxInt64 = int64(1<<63 - 1)

func bigIntToHash32(x *big.Int) (Hash32, error) {
	var out Hash32
	if x.Sign() < 0 {
		return out, newErr(ErrInvalidArgument, "target: negative")
	}
	b := x.Bytes()
	if len(b) > 32 {
		return out, newErr(ErrInvalidArgument, "target: overflow")
	}
	copy(out[32-len(b):], b)
	return out, nil
}

// AdjustDifficulty computes the next difficulty using a dampened retarget
// formula, given the elapsed wall-clock time across the interval
// [intervalStartTS, currentTS].
func AdjustDifficulty(cfg DifficultyAdjustmentConfig, currentDifficulty Difficulty, intervalStartTS, currentTS int64) (Difficulty, error) {
	if err := cfg.validate(); err != nil {
		return 0, err
	}
	if currentDifficulty <= 0 {
		return 0, newErr(ErrInvalidArgument, "current_difficulty must be > 0")
	}

	actual := currentTS - intervalStartTS
	if actual < 1 {
		actual = 1
	}
	targetTime := cfg.AdjustmentIntervalBlocks * cfg.TargetBlockTimeSecs

	// raw = current_difficulty * target_time / actual, done in rationals to
	// avoid premature truncation before dampening.
	raw := new(big.Rat).SetFrac(
		new(big.Int).Mul(big.NewInt(currentDifficulty), big.NewInt(targetTime)),
		big.NewInt(actual),
	)
	cur := new(big.Rat).SetInt64(currentDifficulty)
	delta := new(big.Rat).Sub(raw, cur)
	delta.Quo(delta, new(big.Rat).SetInt64(cfg.DampeningFactor))
	newVal := new(big.Rat).Add(cur, delta)

	rounded := roundHalfUp(newVal)

	if rounded < cfg.MinDifficulty {
		rounded = cfg.MinDifficulty
	}
	if rounded > cfg.MaxDifficulty {
		rounded = cfg.MaxDifficulty
	}
	return rounded, nil
}

// ShouldAdjust reports whether height is an adjustment boundary:
// height % interval == 0 and height > 0.
func ShouldAdjust(height Height, intervalBlocks int64) bool {
	return height > 0 && intervalBlocks > 0 && height%intervalBlocks == 0
}

// roundHalfUp rounds a rational to the nearest integer, ties away from zero
// for non-negative inputs (difficulty values stay >= 1 in practice).
func roundHalfUp(r *big.Rat) int64 {
	num := new(big.Int).Set(r.Num())
	den := new(big.Int).Set(r.Denom())
	two := big.NewInt(2)
	num.Mul(num, two)
	num.Add(num, den)
	den.Mul(den, two)
	q := new(big.Int).Div(num, den)
	return q.Int64()
}

// WorkFromDifficulty computes the per-block proof-of-work contribution
// work = floor(2^256 / target) for a given difficulty. Fork choice does not
// use it: chain.WorkCache sums raw block difficulties.
func WorkFromDifficulty(difficulty Difficulty) (*big.Int, error) {
	target, err := DifficultyToTarget(difficulty)
	if err != nil {
		return nil, err
	}
	t := new(big.Int).SetBytes(target[:])
	if t.Sign() <= 0 {
		return nil, newErr(ErrInvalidArgument, "work: target is zero")
	}
	return new(big.Int).Div(two256, t), nil
}
