/*
Package catalog provides the built-in skill and achievement definitions.

PURPOSE:
  Ships a ready-to-use progression catalog so a fresh deployment rewards
  users from the first event. Admins can extend or override everything
  through the definition endpoints; seeding never overwrites an existing
  row, so edited definitions survive restarts.

BUILT-IN SKILLS:
  deep_work:    Focus sessions
  learning:     Lessons and courses
  fitness:      Workouts
  mindfulness:  Habits and daily practice

BUILT-IN ACHIEVEMENTS (by condition kind):
  first:     first_focus, first_quest
  count:     focus_5, focus_25, quest_10
  streak:    streak_3, streak_7, streak_30
  milestone: level_5, level_10, coin_collector

EXAMPLE:
  store, _ := sqlite.New("./data/progression.db")
  if err := catalog.Seed(ctx, store); err != nil {
      log.Fatal(err)
  }

SEE ALSO:
  - progression/achievements.go: Condition variants the catalog uses
  - cmd/server/main.go: Seeds on startup
*/
package catalog

import (
	"context"
	"time"

	"github.com/warp/progression-engine/progression"
)

// =============================================================================
// SKILLS
// =============================================================================

// Skills returns the built-in skill catalog.
func Skills() []progression.SkillDefinition {
	return []progression.SkillDefinition{
		{
			ID:            "deep_work",
			Name:          "Deep Work",
			Description:   "Sustained, distraction-free focus sessions",
			Category:      "productivity",
			StarsPerLevel: progression.DefaultStarsPerLevel,
			MaxLevel:      50,
			SortOrder:     1,
		},
		{
			ID:            "learning",
			Name:          "Learning",
			Description:   "Lessons, courses and reading",
			Category:      "growth",
			StarsPerLevel: progression.DefaultStarsPerLevel,
			MaxLevel:      50,
			SortOrder:     2,
		},
		{
			ID:            "fitness",
			Name:          "Fitness",
			Description:   "Workouts and physical activity",
			Category:      "health",
			StarsPerLevel: progression.DefaultStarsPerLevel,
			MaxLevel:      50,
			SortOrder:     3,
		},
		{
			ID:            "mindfulness",
			Name:          "Mindfulness",
			Description:   "Habits and daily practice",
			Category:      "health",
			StarsPerLevel: progression.DefaultStarsPerLevel,
			MaxLevel:      50,
			SortOrder:     4,
		},
	}
}

// =============================================================================
// ACHIEVEMENTS
// =============================================================================

// Achievements returns the built-in achievement catalog.
func Achievements() []progression.AchievementDefinition {
	return []progression.AchievementDefinition{
		{
			ID:          "first_focus",
			Name:        "First Focus",
			Description: "Complete your first focus session",
			Category:    "focus",
			Icon:        "🎯",
			Condition:   &progression.FirstCondition{EventType: progression.EventFocusComplete},
			RewardCoins: 10,
			RewardXP:    25,
			SortOrder:   1,
		},
		{
			ID:          "first_quest",
			Name:        "Adventurer",
			Description: "Complete your first quest",
			Category:    "quests",
			Icon:        "🗺️",
			Condition:   &progression.FirstCondition{EventType: progression.EventQuestComplete},
			RewardCoins: 10,
			RewardXP:    25,
			SortOrder:   2,
		},
		{
			ID:          "focus_5",
			Name:        "Getting Focused",
			Description: "Complete 5 focus sessions",
			Category:    "focus",
			Icon:        "🔍",
			Condition: &progression.CountCondition{
				EventType: progression.EventFocusComplete,
				Threshold: 5,
			},
			RewardCoins:      25,
			RewardXP:         50,
			RewardSkillStars: 5,
			RewardSkillID:    "deep_work",
			SortOrder:        3,
		},
		{
			ID:          "focus_25",
			Name:        "Deep Worker",
			Description: "Complete 25 focus sessions",
			Category:    "focus",
			Icon:        "🧠",
			Condition: &progression.CountCondition{
				EventType: progression.EventFocusComplete,
				Threshold: 25,
			},
			RewardCoins:      100,
			RewardXP:         200,
			RewardSkillStars: 15,
			RewardSkillID:    "deep_work",
			SortOrder:        4,
		},
		{
			ID:          "quest_10",
			Name:        "Quest Veteran",
			Description: "Complete 10 quests",
			Category:    "quests",
			Icon:        "⚔️",
			Condition: &progression.CountCondition{
				EventType: progression.EventQuestComplete,
				Threshold: 10,
			},
			RewardCoins: 75,
			RewardXP:    150,
			SortOrder:   5,
		},
		{
			ID:          "streak_3",
			Name:        "Warming Up",
			Description: "Stay active 3 days in a row",
			Category:    "streaks",
			Icon:        "🔥",
			Condition: &progression.StreakCondition{
				StreakType: progression.StreakDailyActivity,
				Days:       3,
			},
			RewardCoins: 15,
			RewardXP:    30,
			SortOrder:   6,
		},
		{
			ID:          "streak_7",
			Name:        "Week Warrior",
			Description: "Stay active 7 days in a row",
			Category:    "streaks",
			Icon:        "🗓️",
			Condition: &progression.StreakCondition{
				StreakType: progression.StreakDailyActivity,
				Days:       7,
			},
			RewardCoins:      50,
			RewardXP:         100,
			RewardSkillStars: 5,
			RewardSkillID:    "mindfulness",
			SortOrder:        7,
		},
		{
			ID:          "streak_30",
			Name:        "Unstoppable",
			Description: "Stay active 30 days in a row",
			Category:    "streaks",
			Icon:        "🏆",
			Condition: &progression.StreakCondition{
				StreakType: progression.StreakDailyActivity,
				Days:       30,
			},
			RewardCoins: 300,
			RewardXP:    500,
			SortOrder:   8,
		},
		{
			ID:          "level_5",
			Name:        "Rising Star",
			Description: "Reach level 5",
			Category:    "progression",
			Icon:        "⭐",
			Condition: &progression.MilestoneCondition{
				Metric:    progression.MetricLevel,
				Threshold: 5,
			},
			RewardCoins: 50,
			SortOrder:   9,
		},
		{
			ID:          "level_10",
			Name:        "Seasoned",
			Description: "Reach level 10",
			Category:    "progression",
			Icon:        "🌟",
			Condition: &progression.MilestoneCondition{
				Metric:    progression.MetricLevel,
				Threshold: 10,
			},
			RewardCoins: 150,
			SortOrder:   10,
		},
		{
			ID:          "coin_collector",
			Name:        "Coin Collector",
			Description: "Hold 1000 coins at once",
			Category:    "progression",
			Icon:        "💰",
			Condition: &progression.MilestoneCondition{
				Metric:    progression.MetricCoins,
				Threshold: 1000,
			},
			RewardXP:  250,
			IsHidden:  true,
			SortOrder: 11,
		},
	}
}

// =============================================================================
// SEEDING
// =============================================================================

// Seed inserts the built-in definitions that are not already present. Rows
// an admin has created or edited are left untouched.
func Seed(ctx context.Context, store progression.TxStore) error {
	return store.WithTx(ctx, func(s progression.Store) error {
		now := time.Now().UTC()

		existingSkills, err := s.SkillDefinitions(ctx)
		if err != nil {
			return err
		}
		haveSkill := make(map[progression.SkillID]bool, len(existingSkills))
		for _, def := range existingSkills {
			haveSkill[def.ID] = true
		}
		for _, def := range Skills() {
			if haveSkill[def.ID] {
				continue
			}
			def.CreatedAt = now
			if err := s.SaveSkillDefinition(ctx, def); err != nil {
				return err
			}
		}

		existing, err := s.AchievementDefinitions(ctx)
		if err != nil {
			return err
		}
		have := make(map[string]bool, len(existing))
		for _, def := range existing {
			have[def.ID] = true
		}
		for _, def := range Achievements() {
			if have[def.ID] {
				continue
			}
			def.CreatedAt = now
			if err := s.SaveAchievementDefinition(ctx, def); err != nil {
				return err
			}
		}

		return nil
	})
}
