package consensus

import "testing"

func TestDifficultyTarget_RoundTrip(t *testing.T) {
	for _, d := range []Difficulty{1, 2, 1000, 1_000_000, 1 << 40} {
		target, err := DifficultyToTarget(d)
		if err != nil {
			t.Fatalf("DifficultyToTarget(%d) error: %v", d, err)
		}
		got, err := TargetToDifficulty(target)
		if err != nil {
			t.Fatalf("TargetToDifficulty() error: %v", err)
		}
		if got != d {
			t.Errorf("round trip for difficulty %d: got %d", d, got)
		}
	}
}

func TestDifficultyToTarget_RejectsNonPositive(t *testing.T) {
	if _, err := DifficultyToTarget(0); err == nil {
		t.Error("DifficultyToTarget(0) should error")
	}
	if _, err := DifficultyToTarget(-5); err == nil {
		t.Error("DifficultyToTarget(-5) should error")
	}
}

func TestTargetToDifficulty_ZeroTargetSaturates(t *testing.T) {
	got, err := TargetToDifficulty(Hash32{})
	if err != nil {
		t.Fatalf("TargetToDifficulty(zero) error: %v", err)
	}
	if got != maxInt64 {
		t.Errorf("TargetToDifficulty(zero) = %d, want maxInt64", got)
	}
}

func TestAdjustDifficulty_ExactScenario(t *testing.T) {
	cfg := DifficultyAdjustmentConfig{
		TargetBlockTimeSecs:      10,
		AdjustmentIntervalBlocks: 100,
		DampeningFactor:          4,
		MinDifficulty:            1,
		MaxDifficulty:            maxInt64,
	}
	// actual=500s, target=1000s: raw = 1000*1000/500 = 2000,
	// dampened = 1000 + (2000-1000)/4 = 1250.
	got, err := AdjustDifficulty(cfg, 1000, 0, 500)
	if err != nil {
		t.Fatalf("AdjustDifficulty() error: %v", err)
	}
	if got != 1250 {
		t.Errorf("AdjustDifficulty() = %d, want 1250", got)
	}
}

func TestAdjustDifficulty_FasterThanTargetRaisesDifficulty(t *testing.T) {
	cfg := DifficultyAdjustmentConfig{
		TargetBlockTimeSecs:      10,
		AdjustmentIntervalBlocks: 100,
		DampeningFactor:          4,
		MinDifficulty:            1,
		MaxDifficulty:            maxInt64,
	}
	got, err := AdjustDifficulty(cfg, 1000, 0, 500) // actual < target
	if err != nil {
		t.Fatalf("AdjustDifficulty() error: %v", err)
	}
	if got < 1000 {
		t.Errorf("AdjustDifficulty() = %d, want >= current difficulty when blocks arrive faster than target", got)
	}
}

func TestAdjustDifficulty_SlowerThanTargetLowersDifficulty(t *testing.T) {
	cfg := DifficultyAdjustmentConfig{
		TargetBlockTimeSecs:      10,
		AdjustmentIntervalBlocks: 100,
		DampeningFactor:          4,
		MinDifficulty:            1,
		MaxDifficulty:            maxInt64,
	}
	got, err := AdjustDifficulty(cfg, 1000, 0, 2000) // actual > target
	if err != nil {
		t.Fatalf("AdjustDifficulty() error: %v", err)
	}
	if got > 1000 {
		t.Errorf("AdjustDifficulty() = %d, want <= current difficulty when blocks arrive slower than target", got)
	}
}

func TestAdjustDifficulty_ClampsToConfiguredBounds(t *testing.T) {
	cfg := DifficultyAdjustmentConfig{
		TargetBlockTimeSecs:      10,
		AdjustmentIntervalBlocks: 100,
		DampeningFactor:          1,
		MinDifficulty:            500,
		MaxDifficulty:            600,
	}
	got, err := AdjustDifficulty(cfg, 1000, 0, 1) // extreme speedup, would raise far past 600
	if err != nil {
		t.Fatalf("AdjustDifficulty() error: %v", err)
	}
	if got != 600 {
		t.Errorf("AdjustDifficulty() = %d, want clamped to max 600", got)
	}
}

func TestShouldAdjust(t *testing.T) {
	cases := []struct {
		height Height
		want   bool
	}{
		{0, false},
		{99, false},
		{100, true},
		{200, true},
		{150, false},
	}
	for _, c := range cases {
		if got := ShouldAdjust(c.height, 100); got != c.want {
			t.Errorf("ShouldAdjust(%d, 100) = %v, want %v", c.height, got, c.want)
		}
	}
}

func TestWorkFromDifficulty_IncreasesWithDifficulty(t *testing.T) {
	low, err := WorkFromDifficulty(1000)
	if err != nil {
		t.Fatalf("WorkFromDifficulty(1000) error: %v", err)
	}
	high, err := WorkFromDifficulty(2000)
	if err != nil {
		t.Fatalf("WorkFromDifficulty(2000) error: %v", err)
	}
	if high.Cmp(low) <= 0 {
		t.Error("work should increase with difficulty")
	}
}
