/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Wallet & ledger:
    WalletDTO, LedgerEntryDTO, AwardRequest/AwardResultDTO,
    SpendRequest/SpendResultDTO

  Activity:
    ActivityRequest, ActivityResultDTO

  Streaks:
    StreakDTO

  Achievements:
    AchievementDTO, EarnedAchievementDTO, TeaserDTO, ConditionDTO,
    SaveAchievementRequest

  Skills:
    SkillDTO, SkillDefinitionDTO, SaveSkillRequest

  Aggregates:
    SummaryDTO

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - progression/types.go: The domain model these map from
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/warp/progression-engine/progression"
)

// =============================================================================
// WALLET & LEDGER
// =============================================================================

// WalletDTO represents a user's balances in API responses.
type WalletDTO struct {
	UserID          string `json:"user_id"`
	Coins           int64  `json:"coins"`
	XP              int64  `json:"xp"`
	Level           int    `json:"level"`
	XPToNextLevel   int64  `json:"xp_to_next_level"`
	TotalSkillStars int64  `json:"total_skill_stars"`
	TotalEarned     int64  `json:"total_earned"`
	TotalSpent      int64  `json:"total_spent"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

func toWalletDTO(w *progression.Wallet) WalletDTO {
	return WalletDTO{
		UserID:          string(w.UserID),
		Coins:           w.Coins,
		XP:              w.XP,
		Level:           w.Level,
		XPToNextLevel:   w.XPToNextLevel,
		TotalSkillStars: w.TotalSkillStars,
		TotalEarned:     w.TotalEarned,
		TotalSpent:      w.TotalSpent,
		UpdatedAt:       w.UpdatedAt.Format(time.RFC3339),
	}
}

// LedgerEntryDTO represents one currency movement.
type LedgerEntryDTO struct {
	ID         string `json:"id"`
	Currency   string `json:"currency"`
	Amount     int64  `json:"amount"`
	Reason     string `json:"reason,omitempty"`
	SourceType string `json:"source_type,omitempty"`
	SourceID   string `json:"source_id,omitempty"`
	SkillID    string `json:"skill_id,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// AwardRequest is the request body for a direct currency grant.
type AwardRequest struct {
	Currency   string `json:"currency"`
	Amount     int64  `json:"amount"`
	Reason     string `json:"reason"`
	SourceType string `json:"source_type"`
	SourceID   string `json:"source_id"`
	SkillID    string `json:"skill_id"`
}

// AwardResultDTO reports the outcome of an award.
type AwardResultDTO struct {
	AlreadyAwarded bool  `json:"already_awarded"`
	NewBalance     int64 `json:"new_balance"`
	LeveledUp      bool  `json:"leveled_up"`
	NewLevel       int   `json:"new_level"`
	LevelsGained   int   `json:"levels_gained"`
}

func toAwardResultDTO(r progression.AwardResult) AwardResultDTO {
	return AwardResultDTO{
		AlreadyAwarded: r.AlreadyAwarded,
		NewBalance:     r.NewBalance,
		LeveledUp:      r.LeveledUp,
		NewLevel:       r.NewLevel,
		LevelsGained:   r.LevelsGained,
	}
}

// SpendRequest is the request body for a coin deduction.
type SpendRequest struct {
	Amount     int64  `json:"amount"`
	Reason     string `json:"reason"`
	PurchaseID string `json:"purchase_id"`
}

// SpendResultDTO reports the outcome of a spend.
type SpendResultDTO struct {
	OK         bool  `json:"ok"`
	NewBalance int64 `json:"new_balance"`
}

// =============================================================================
// ACTIVITY
// =============================================================================

// ActivityRequest is the request body for recording a domain event.
type ActivityRequest struct {
	EventType  string            `json:"event_type"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Coins      int64             `json:"coins"`
	XP         int64             `json:"xp"`
	SkillStars int64             `json:"skill_stars"`
	SkillID    string            `json:"skill_id"`
	Reason     string            `json:"reason"`
	SourceType string            `json:"source_type"`
	SourceID   string            `json:"source_id"`
	Metadata   map[string]string `json:"metadata"`
}

// ActivityResultDTO reports everything one domain event produced.
type ActivityResultDTO struct {
	Replayed bool             `json:"replayed"`
	Coins    *AwardResultDTO  `json:"coins,omitempty"`
	XP       *AwardResultDTO  `json:"xp,omitempty"`
	Skill    *AwardResultDTO  `json:"skill,omitempty"`
	Streak   *StreakDTO       `json:"streak,omitempty"`
	Unlocked []AchievementDTO `json:"unlocked"`
}

// =============================================================================
// STREAKS
// =============================================================================

// StreakDTO represents one streak's state.
type StreakDTO struct {
	StreakType       string `json:"streak_type,omitempty"`
	CurrentStreak    int    `json:"current_streak"`
	LongestStreak    int    `json:"longest_streak"`
	LastActivityDate string `json:"last_activity_date,omitempty"`
	IsNewDay         bool   `json:"is_new_day,omitempty"`
	StreakBroken     bool   `json:"streak_broken,omitempty"`
}

// =============================================================================
// ACHIEVEMENTS
// =============================================================================

// ConditionDTO is the wire form of an achievement condition: a kind plus
// kind-specific parameters.
type ConditionDTO struct {
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params"`
}

// AchievementDTO represents a catalog entry.
type AchievementDTO struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Description      string        `json:"description,omitempty"`
	Category         string        `json:"category,omitempty"`
	Icon             string        `json:"icon,omitempty"`
	Condition        *ConditionDTO `json:"condition,omitempty"`
	RewardCoins      int64         `json:"reward_coins"`
	RewardXP         int64         `json:"reward_xp"`
	RewardSkillStars int64         `json:"reward_skill_stars,omitempty"`
	RewardSkillID    string        `json:"reward_skill_id,omitempty"`
	IsHidden         bool          `json:"is_hidden"`
	SortOrder        int           `json:"sort_order"`
}

func toAchievementDTO(def progression.AchievementDefinition) AchievementDTO {
	dto := AchievementDTO{
		ID:               def.ID,
		Name:             def.Name,
		Description:      def.Description,
		Category:         def.Category,
		Icon:             def.Icon,
		RewardCoins:      def.RewardCoins,
		RewardXP:         def.RewardXP,
		RewardSkillStars: def.RewardSkillStars,
		RewardSkillID:    string(def.RewardSkillID),
		IsHidden:         def.IsHidden,
		SortOrder:        def.SortOrder,
	}
	if kind, params, err := progression.EncodeCondition(def.Condition); err == nil {
		dto.Condition = &ConditionDTO{Kind: kind, Params: params}
	}
	return dto
}

// EarnedAchievementDTO is a catalog entry with the user's unlock state.
type EarnedAchievementDTO struct {
	AchievementDTO
	Earned   bool   `json:"earned"`
	EarnedAt string `json:"earned_at,omitempty"`
}

// TeaserDTO is the next unachieved achievement with progress.
type TeaserDTO struct {
	Achievement AchievementDTO `json:"achievement"`
	Progress    int64          `json:"progress"`
	ProgressMax int64          `json:"progress_max"`
	Label       string         `json:"label"`
}

// SaveAchievementRequest creates or replaces a catalog entry.
type SaveAchievementRequest struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Description      string       `json:"description"`
	Category         string       `json:"category"`
	Icon             string       `json:"icon"`
	Condition        ConditionDTO `json:"condition"`
	RewardCoins      int64        `json:"reward_coins"`
	RewardXP         int64        `json:"reward_xp"`
	RewardSkillStars int64        `json:"reward_skill_stars"`
	RewardSkillID    string       `json:"reward_skill_id"`
	IsHidden         bool         `json:"is_hidden"`
	SortOrder        int          `json:"sort_order"`
}

// =============================================================================
// SKILLS
// =============================================================================

// SkillDefinitionDTO represents a skill catalog entry.
type SkillDefinitionDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	Category      string `json:"category,omitempty"`
	MaxLevel      int    `json:"max_level"`
	StarsPerLevel int    `json:"stars_per_level"`
	SortOrder     int    `json:"sort_order"`
}

// SaveSkillRequest creates or replaces a skill catalog entry.
type SaveSkillRequest struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	MaxLevel      int    `json:"max_level"`
	StarsPerLevel int    `json:"stars_per_level"`
	SortOrder     int    `json:"sort_order"`
}

// SkillDTO represents a user's progress in one skill.
type SkillDTO struct {
	SkillID      string `json:"skill_id"`
	Name         string `json:"name,omitempty"`
	CurrentStars int64  `json:"current_stars"`
	CurrentLevel int    `json:"current_level"`
}

// =============================================================================
// AGGREGATES
// =============================================================================

// ActivityEventDTO represents one recorded domain event.
type ActivityEventDTO struct {
	ID          string            `json:"id"`
	EventType   string            `json:"event_type"`
	EntityType  string            `json:"entity_type,omitempty"`
	EntityID    string            `json:"entity_id,omitempty"`
	XPEarned    int64             `json:"xp_earned"`
	CoinsEarned int64             `json:"coins_earned"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   string            `json:"created_at"`
}

// SummaryDTO is the one-call dashboard view of a user's progression.
type SummaryDTO struct {
	Wallet             WalletDTO  `json:"wallet"`
	Skills             []SkillDTO `json:"skills"`
	CurrentStreak      int        `json:"current_streak"`
	LongestStreak      int        `json:"longest_streak"`
	AchievementsEarned int        `json:"achievements_earned"`
	AchievementsTotal  int        `json:"achievements_total"`
	NextAchievement    *TeaserDTO `json:"next_achievement,omitempty"`
}

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
