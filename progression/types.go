/*
Package progression provides the progression and rewards engine.

PURPOSE:
  This package converts heterogeneous user activity (completing a quest, a
  focus session, a lesson, a workout) into currency balances (coins, XP,
  per-skill stars), derives level state from XP, evaluates and unlocks
  achievements from declarative conditions, and tracks daily activity
  streaks.

KEY CONCEPTS IN THIS FILE (types.go):
  - Currency: A closed enumeration of the three balance kinds
  - Wallet: The materialized per-user balance snapshot
  - LedgerEntry: An immutable record of a single currency movement
  - AchievementDefinition: Admin-managed catalog entry with a typed condition
  - UserStreak: Consecutive-calendar-day activity counter

DESIGN PRINCIPLES:
  1. Append-only ledger: entries are never updated or deleted
  2. Idempotency: the (userID, currency, sourceType, sourceID) tuple makes
     awards safe to retry
  3. Derived state: level and skill level are always recomputed from the
     underlying totals, never trusted from a caller
  4. Type safety: strong typing for user/skill/entry identifiers

USAGE:
  ledger := &progression.Ledger{Store: store, Curve: progression.DefaultCurve()}
  res, err := ledger.Award(ctx, progression.AwardRequest{
      UserID:     "user-1",
      Currency:   progression.CurrencyXP,
      Amount:     50,
      Reason:     "focus session",
      SourceType: "focus_session",
      SourceID:   "fs-123",
  })

SEE ALSO:
  - ledger.go: Award/spend operations and balance projection
  - leveling.go: XP-to-level curve
  - achievements.go: Condition variants and the evaluator
  - dispatcher.go: Orchestration entry point for domain events
*/
package progression

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type SkillID string
type EntryID string

// =============================================================================
// CURRENCY - Closed enumeration of balance kinds
// =============================================================================

type Currency string

const (
	CurrencyCoins      Currency = "coins"
	CurrencyXP         Currency = "xp"
	CurrencySkillStars Currency = "skill_stars"
)

func (c Currency) Valid() bool {
	switch c {
	case CurrencyCoins, CurrencyXP, CurrencySkillStars:
		return true
	}
	return false
}

// =============================================================================
// EVENT & STREAK TYPES
// =============================================================================

// Well-known event types recorded by external collaborators. The engine
// accepts arbitrary event type strings; these constants cover the built-in
// catalog and the streak mapping.
const (
	EventQuestComplete     = "quest_complete"
	EventHabitComplete     = "habit_complete"
	EventFocusComplete     = "focus_complete"
	EventLessonComplete    = "lesson_complete"
	EventWorkoutComplete   = "workout_complete"
	EventLevelUp           = "level_up"
	EventAchievementEarned = "achievement_earned"
	EventSpend             = "spend"
)

// StreakDailyActivity is the default streak bucket: any qualifying domain
// event counts toward one consecutive-day chain.
const StreakDailyActivity = "daily_activity"

// Source types used as the first half of an idempotency key.
const (
	SourceAchievement = "achievement"
	SourcePurchase    = "purchase"
)

// DateLayout is the calendar-date format for streak bookkeeping (UTC).
const DateLayout = "2006-01-02"

// =============================================================================
// WALLET - Materialized balance snapshot (one per user)
// =============================================================================

// Wallet is the per-user balance projection. It is mutated only through the
// Ledger's award/spend operations; XP always satisfies XP < XPToNextLevel
// after any update (overflow is absorbed into level-ups).
type Wallet struct {
	UserID          UserID
	Coins           int64
	XP              int64 // XP within the current level
	Level           int
	XPToNextLevel   int64
	TotalSkillStars int64
	TotalEarned     int64 // lifetime coins earned
	TotalSpent      int64 // lifetime coins spent
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BalanceOf returns the wallet field backing the given currency.
func (w *Wallet) BalanceOf(c Currency) int64 {
	switch c {
	case CurrencyCoins:
		return w.Coins
	case CurrencyXP:
		return w.XP
	case CurrencySkillStars:
		return w.TotalSkillStars
	}
	return 0
}

// =============================================================================
// LEDGER ENTRY - Immutable currency movement
// =============================================================================

// LedgerEntry records one signed currency movement. Entries are append-only.
// When SourceType and SourceID are both set they form an idempotency key:
// at most one entry exists per (UserID, Currency, SourceType, SourceID).
type LedgerEntry struct {
	ID         EntryID
	UserID     UserID
	Currency   Currency
	Amount     int64 // signed; negative = spend
	Reason     string
	SourceType string
	SourceID   string
	SkillID    SkillID // required when Currency == CurrencySkillStars
	CreatedAt  time.Time
}

// HasSource reports whether the entry carries an idempotency key.
func (e *LedgerEntry) HasSource() bool {
	return e.SourceType != "" && e.SourceID != ""
}

// =============================================================================
// SKILLS
// =============================================================================

// SkillDefinition is an admin-managed catalog entry. StarsPerLevel controls
// the per-skill level derivation; MaxLevel of 0 means uncapped.
type SkillDefinition struct {
	ID            SkillID
	Name          string
	Description   string
	Category      string
	MaxLevel      int
	StarsPerLevel int
	SortOrder     int
	CreatedAt     time.Time
}

// UserSkill is the per-(user, skill) star total. CurrentLevel is derived:
// CurrentStars / StarsPerLevel, capped at the definition's MaxLevel.
type UserSkill struct {
	UserID       UserID
	SkillID      SkillID
	CurrentStars int64
	CurrentLevel int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// =============================================================================
// STREAKS
// =============================================================================

// UserStreak tracks consecutive calendar days (UTC) with qualifying activity.
// LastActivityDate is a calendar date, not a timestamp, so two touches within
// one day cannot double count.
type UserStreak struct {
	UserID           UserID
	StreakType       string
	CurrentStreak    int
	LongestStreak    int
	LastActivityDate string // DateLayout, empty until first activity
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// =============================================================================
// ACTIVITY EVENTS - Append-only domain event log
// =============================================================================

// ActivityEvent records what a domain event actually granted. Read by the
// achievement evaluator's count conditions and by analytics; never mutated.
type ActivityEvent struct {
	ID          EntryID
	UserID      UserID
	EventType   string
	EntityType  string
	EntityID    string
	XPEarned    int64
	CoinsEarned int64
	Metadata    map[string]string
	CreatedAt   time.Time
}

// =============================================================================
// ACHIEVEMENTS
// =============================================================================

// AchievementDefinition is an admin-managed catalog entry. Condition is
// parsed into a typed variant at load time; a nil Condition marks a
// malformed definition which the evaluator skips and logs.
type AchievementDefinition struct {
	ID               string
	Name             string
	Description      string
	Category         string
	Icon             string
	Condition        Condition
	RewardCoins      int64
	RewardXP         int64
	RewardSkillStars int64
	RewardSkillID    SkillID
	IsHidden         bool
	SortOrder        int
	CreatedAt        time.Time
}

// UserAchievement is the unlock record, created exactly once per
// (user, achievement). Presence is the "already unlocked" check.
type UserAchievement struct {
	UserID        UserID
	AchievementID string
	EarnedAt      time.Time
	Notified      bool
}

// =============================================================================
// REQUESTS & RESULTS
// =============================================================================

// AwardRequest grants a positive amount of one currency to a user.
type AwardRequest struct {
	UserID     UserID
	Currency   Currency
	Amount     int64
	Reason     string
	SourceType string
	SourceID   string
	SkillID    SkillID
}

// SpendRequest deducts coins. PurchaseID, when set, makes the spend
// idempotent under retries.
type SpendRequest struct {
	UserID     UserID
	Amount     int64
	Reason     string
	PurchaseID string
}

// AwardResult reports the outcome of one award.
type AwardResult struct {
	AlreadyAwarded bool
	NewBalance     int64
	LeveledUp      bool
	NewLevel       int
	LevelsGained   int
}

// SpendResult reports the outcome of a spend. OK is false when the balance
// was insufficient; NewBalance is the (unchanged) balance in that case.
type SpendResult struct {
	OK         bool
	NewBalance int64
}

// StreakResult reports the outcome of a streak touch.
type StreakResult struct {
	CurrentStreak int
	LongestStreak int
	IsNewDay      bool
	StreakBroken  bool
}

// ActivityInput is a domain event handed to the dispatcher by an external
// collaborator. SourceType/SourceID apply to every currency granted for the
// event (currency is part of the idempotency tuple).
type ActivityInput struct {
	UserID     UserID
	EventType  string
	EntityType string
	EntityID   string
	Coins      int64
	XP         int64
	SkillStars int64
	SkillID    SkillID
	Reason     string
	SourceType string
	SourceID   string
	Metadata   map[string]string
}

// ActivityResult is what one dispatched domain event produced.
type ActivityResult struct {
	Replayed bool // the event's idempotency key had already been processed
	Coins    AwardResult
	XP       AwardResult
	Skill    AwardResult
	Streak   *StreakResult
	Unlocked []AchievementDefinition
}
