// skills.go - Per-skill star progression.
//
// Skill level is a pure derivation: currentStars / starsPerLevel, where
// starsPerLevel comes from the skill's admin-configured definition. It is
// O(1), so it is recomputed on every star increment and again on read
// rather than maintaining a separate level-up event stream.
package progression

// DefaultStarsPerLevel applies when a skill definition is missing or leaves
// the ratio unset.
const DefaultStarsPerLevel = 20

// SkillLevel derives a skill level from a star total. MaxLevel of 0 means
// uncapped.
func SkillLevel(stars int64, starsPerLevel, maxLevel int) int {
	if starsPerLevel <= 0 {
		starsPerLevel = DefaultStarsPerLevel
	}
	level := int(stars / int64(starsPerLevel))
	if maxLevel > 0 && level > maxLevel {
		level = maxLevel
	}
	return level
}

// skillRatio looks up the stars-per-level ratio and level cap for a skill.
// Missing definitions fall back to the default ratio, uncapped.
func skillRatio(def *SkillDefinition) (starsPerLevel, maxLevel int) {
	if def == nil {
		return DefaultStarsPerLevel, 0
	}
	starsPerLevel = def.StarsPerLevel
	if starsPerLevel <= 0 {
		starsPerLevel = DefaultStarsPerLevel
	}
	return starsPerLevel, def.MaxLevel
}
