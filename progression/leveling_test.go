package progression_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/progression-engine/progression"
)

// =============================================================================
// CURVE COST TESTS
// =============================================================================

func TestLevelCurve_XPForLevel(t *testing.T) {
	curve := progression.DefaultCurve()

	// floor(100 * 1.5^(n-1))
	assert.Equal(t, int64(100), curve.XPForLevel(1))
	assert.Equal(t, int64(150), curve.XPForLevel(2))
	assert.Equal(t, int64(225), curve.XPForLevel(3))
	assert.Equal(t, int64(337), curve.XPForLevel(4)) // 337.5 floored
	assert.Equal(t, int64(506), curve.XPForLevel(5)) // 506.25 floored
}

func TestLevelCurve_XPForLevel_ClampsBelowOne(t *testing.T) {
	curve := progression.DefaultCurve()

	assert.Equal(t, curve.XPForLevel(1), curve.XPForLevel(0))
	assert.Equal(t, curve.XPForLevel(1), curve.XPForLevel(-3))
}

func TestLevelCurve_HighLevelPrecision(t *testing.T) {
	// 1.5^40 exceeds float64's mantissa; decimal arithmetic must stay exact.
	// floor(100 * 1.5^40) = 1103254192226564620
	curve := progression.DefaultCurve()
	assert.Equal(t, int64(1103254192226564620), curve.XPForLevel(41))
}

// =============================================================================
// ADVANCE TESTS
// =============================================================================

func TestLevelCurve_Advance_SingleGrantMultiLevel(t *testing.T) {
	// GIVEN: A fresh wallet at level 1 with 0 XP
	// WHEN: Granting 250 XP
	// THEN: Level 1 costs 100, level 2 costs 150, landing exactly on level 3

	curve := progression.DefaultCurve()

	level, xp, toNext, gained := curve.Advance(1, 0, 250)

	assert.Equal(t, 3, level)
	assert.Equal(t, int64(0), xp)
	assert.Equal(t, int64(225), toNext)
	assert.Equal(t, 2, gained)
}

func TestLevelCurve_Advance_NoLevelUp(t *testing.T) {
	curve := progression.DefaultCurve()

	level, xp, toNext, gained := curve.Advance(1, 0, 90)

	assert.Equal(t, 1, level)
	assert.Equal(t, int64(90), xp)
	assert.Equal(t, int64(100), toNext)
	assert.Equal(t, 0, gained)
}

func TestLevelCurve_Advance_ExactBoundary(t *testing.T) {
	// Exactly the level cost rolls over with 0 XP remaining.
	curve := progression.DefaultCurve()

	level, xp, toNext, gained := curve.Advance(1, 0, 100)

	assert.Equal(t, 2, level)
	assert.Equal(t, int64(0), xp)
	assert.Equal(t, int64(150), toNext)
	assert.Equal(t, 1, gained)
}

func TestLevelCurve_Advance_FromPartialProgress(t *testing.T) {
	curve := progression.DefaultCurve()

	level, xp, _, gained := curve.Advance(2, 100, 60)

	assert.Equal(t, 3, level)
	assert.Equal(t, int64(10), xp)
	assert.Equal(t, 1, gained)
}

// =============================================================================
// CONFIGURED CURVES
// =============================================================================

func TestNewCurve_ValidConfig(t *testing.T) {
	curve := progression.NewCurve(200, "2")

	assert.Equal(t, int64(200), curve.XPForLevel(1))
	assert.Equal(t, int64(400), curve.XPForLevel(2))
	assert.Equal(t, int64(800), curve.XPForLevel(3))
}

func TestNewCurve_InvalidConfigFallsBack(t *testing.T) {
	for _, tc := range []struct {
		name       string
		base       int64
		multiplier string
	}{
		{"garbage multiplier", 100, "fast"},
		{"zero base", 0, "1.5"},
		{"negative multiplier", 100, "-2"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			curve := progression.NewCurve(tc.base, tc.multiplier)
			assert.Equal(t, int64(100), curve.XPForLevel(1))
			assert.Equal(t, int64(150), curve.XPForLevel(2))
		})
	}
}

// =============================================================================
// SKILL LEVEL DERIVATION
// =============================================================================

func TestSkillLevel(t *testing.T) {
	assert.Equal(t, 0, progression.SkillLevel(0, 20, 0))
	assert.Equal(t, 0, progression.SkillLevel(19, 20, 0))
	assert.Equal(t, 1, progression.SkillLevel(20, 20, 0))
	assert.Equal(t, 2, progression.SkillLevel(45, 20, 0))

	// MaxLevel caps the derivation
	assert.Equal(t, 3, progression.SkillLevel(200, 20, 3))

	// Non-positive ratio falls back to the default
	assert.Equal(t, 1, progression.SkillLevel(progression.DefaultStarsPerLevel, 0, 0))
}
