/*
leveling.go - Pure XP-to-level curve

PURPOSE:
  Maps cumulative XP onto (level, remaining XP, XP-to-next-level). The curve
  is xpForLevel(n) = floor(base * multiplier^(n-1)); reference deployment
  uses base 100 and multiplier 1.5, both configurable.

  Advance handles multi-level jumps from one large grant in a single pass:
  it keeps subtracting xpForLevel(level) while the remainder covers it.

PRECISION:
  The multiplier is fractional, so the curve is computed with
  decimal arithmetic and floored once per level. float64 drifts at higher
  levels (1.5^40 already has more mantissa bits than float64 keeps).

SEE ALSO:
  - ledger.go: Applies the curve on every XP award
*/
package progression

import "github.com/shopspring/decimal"

// =============================================================================
// LEVEL CURVE
// =============================================================================

// LevelCurve defines the XP cost of each level.
type LevelCurve struct {
	Base       int64
	Multiplier decimal.Decimal
}

// DefaultCurve returns the reference curve: 100 XP for level 1, growing 1.5x
// per level.
func DefaultCurve() LevelCurve {
	return LevelCurve{
		Base:       100,
		Multiplier: decimal.NewFromFloat(1.5),
	}
}

// NewCurve builds a curve from configuration values. The multiplier is
// parsed as a decimal string (e.g. "1.5"); invalid input falls back to the
// reference curve.
func NewCurve(base int64, multiplier string) LevelCurve {
	m, err := decimal.NewFromString(multiplier)
	if err != nil || base <= 0 || !m.IsPositive() {
		return DefaultCurve()
	}
	return LevelCurve{Base: base, Multiplier: m}
}

// XPForLevel returns the XP required to complete the given level:
// floor(base * multiplier^(level-1)). Levels below 1 are clamped to 1.
func (c LevelCurve) XPForLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	cost := decimal.NewFromInt(c.Base).Mul(c.Multiplier.Pow(decimal.NewFromInt(int64(level - 1))))
	return cost.Floor().IntPart()
}

// Advance applies gained XP to a wallet position and absorbs overflow into
// level-ups. It returns the new level, the XP remaining within that level,
// the XP needed to complete it, and how many levels were gained.
func (c LevelCurve) Advance(level int, xp, gained int64) (newLevel int, newXP, xpToNext int64, levelsGained int) {
	if level < 1 {
		level = 1
	}
	newLevel = level
	newXP = xp + gained

	for newXP >= c.XPForLevel(newLevel) {
		newXP -= c.XPForLevel(newLevel)
		newLevel++
		levelsGained++
	}

	return newLevel, newXP, c.XPForLevel(newLevel), levelsGained
}
