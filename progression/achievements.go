/*
achievements.go - Declarative achievement conditions and the evaluator

PURPOSE:
  Achievement conditions are a closed set of variants, not free-form code:

    first     { eventType }            - first matching ActivityEvent
    count     { eventType, threshold } - cumulative matching ActivityEvents
    streak    { streakType, days }     - CurrentStreak reaches days
    milestone { metric, threshold }    - wallet/streak metric reaches value

  Conditions are parsed into typed values when a definition is loaded, so a
  malformed definition is caught once, logged, and skipped - it never aborts
  evaluation of the rest of the catalog.

UNLOCKING:
  Unlock re-checks presence before insert, so concurrent evaluation of the
  same achievement twice is safe. Rewards are granted through the ledger
  with (sourceType="achievement", sourceID=achievementID) as the
  idempotency key: the same mechanism that protects every other award, so
  an achievement's reward is granted exactly once even if the check runs
  redundantly. Rewards can themselves satisfy further conditions (an XP
  reward crossing a level milestone), so the sweep repeats inside the same
  transaction until a pass unlocks nothing.

SEE ALSO:
  - ledger.go: The award path achievement rewards re-enter
  - catalog/: Built-in definitions
*/
package progression

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"
)

// =============================================================================
// CONDITION VARIANTS
// =============================================================================

type ConditionKind string

const (
	ConditionFirst     ConditionKind = "first"
	ConditionCount     ConditionKind = "count"
	ConditionStreak    ConditionKind = "streak"
	ConditionMilestone ConditionKind = "milestone"
)

// Progress is a condition's position against its target, used both for
// unlock decisions and for the teaser's "almost there" hint.
type Progress struct {
	Current int64
	Target  int64
	Label   string
}

func (p Progress) Met() bool { return p.Current >= p.Target }

// Condition is one declarative unlock rule, evaluated against current state.
type Condition interface {
	Kind() ConditionKind
	Evaluate(ctx context.Context, s Store, userID UserID) (Progress, error)
}

// FirstCondition qualifies the first time an event of EventType is recorded.
type FirstCondition struct {
	EventType string `json:"event_type"`
}

func (c *FirstCondition) Kind() ConditionKind { return ConditionFirst }

func (c *FirstCondition) Evaluate(ctx context.Context, s Store, userID UserID) (Progress, error) {
	n, err := s.CountActivityEvents(ctx, userID, c.EventType)
	if err != nil {
		return Progress{}, err
	}
	p := Progress{Target: 1, Label: fmt.Sprintf("First %s", c.EventType)}
	if n > 0 {
		p.Current = 1
		p.Label = "Complete!"
	}
	return p, nil
}

// CountCondition qualifies when the cumulative count of matching events
// reaches Threshold.
type CountCondition struct {
	EventType string `json:"event_type"`
	Threshold int64  `json:"threshold"`
}

func (c *CountCondition) Kind() ConditionKind { return ConditionCount }

func (c *CountCondition) Evaluate(ctx context.Context, s Store, userID UserID) (Progress, error) {
	n, err := s.CountActivityEvents(ctx, userID, c.EventType)
	if err != nil {
		return Progress{}, err
	}
	return Progress{
		Current: n,
		Target:  c.Threshold,
		Label:   fmt.Sprintf("%d/%d %s", n, c.Threshold, c.EventType),
	}, nil
}

// StreakCondition qualifies when CurrentStreak for StreakType reaches Days.
type StreakCondition struct {
	StreakType string `json:"streak_type"`
	Days       int64  `json:"days"`
}

func (c *StreakCondition) Kind() ConditionKind { return ConditionStreak }

func (c *StreakCondition) Evaluate(ctx context.Context, s Store, userID UserID) (Progress, error) {
	row, err := s.GetStreak(ctx, userID, c.StreakType)
	if err != nil {
		return Progress{}, err
	}
	var current int64
	if row != nil {
		current = int64(row.CurrentStreak)
	}
	return Progress{
		Current: current,
		Target:  c.Days,
		Label:   fmt.Sprintf("%d/%d day streak", current, c.Days),
	}, nil
}

// Metrics a MilestoneCondition can target.
const (
	MetricLevel           = "level"
	MetricCoins           = "coins"
	MetricTotalSkillStars = "total_skill_stars"
	MetricLongestStreak   = "longest_streak"
)

// MilestoneCondition qualifies when a named wallet/streak metric reaches
// Threshold.
type MilestoneCondition struct {
	Metric    string `json:"metric"`
	Threshold int64  `json:"threshold"`
}

func (c *MilestoneCondition) Kind() ConditionKind { return ConditionMilestone }

func (c *MilestoneCondition) Evaluate(ctx context.Context, s Store, userID UserID) (Progress, error) {
	var current int64

	switch c.Metric {
	case MetricLongestStreak:
		n, err := s.MaxLongestStreak(ctx, userID)
		if err != nil {
			return Progress{}, err
		}
		current = int64(n)
	case MetricLevel, MetricCoins, MetricTotalSkillStars:
		w, err := s.GetWallet(ctx, userID)
		if err != nil {
			return Progress{}, err
		}
		if w != nil {
			switch c.Metric {
			case MetricLevel:
				current = int64(w.Level)
			case MetricCoins:
				current = w.Coins
			case MetricTotalSkillStars:
				current = w.TotalSkillStars
			}
		} else if c.Metric == MetricLevel {
			current = 1
		}
	default:
		return Progress{}, &UnknownConditionError{Kind: string(ConditionMilestone), Reason: fmt.Sprintf("unrecognized metric %q", c.Metric)}
	}

	label := fmt.Sprintf("%s %d/%d", c.Metric, current, c.Threshold)
	if c.Metric == MetricLevel {
		label = fmt.Sprintf("Level %d/%d", current, c.Threshold)
	}
	return Progress{Current: current, Target: c.Threshold, Label: label}, nil
}

// =============================================================================
// CONDITION PARSING - decided once at definition load time
// =============================================================================

// ParseCondition builds a typed condition from a kind and its JSON
// parameters. Malformed input yields an UnknownConditionError so that bad
// catalog rows are caught at load, not on every evaluation.
func ParseCondition(kind string, params []byte) (Condition, error) {
	fail := func(reason string) error {
		return &UnknownConditionError{Kind: kind, Reason: reason}
	}

	switch ConditionKind(kind) {
	case ConditionFirst:
		var c FirstCondition
		if err := json.Unmarshal(params, &c); err != nil {
			return nil, fail(err.Error())
		}
		if c.EventType == "" {
			return nil, fail("missing event_type")
		}
		return &c, nil

	case ConditionCount:
		var c CountCondition
		if err := json.Unmarshal(params, &c); err != nil {
			return nil, fail(err.Error())
		}
		if c.EventType == "" || c.Threshold <= 0 {
			return nil, fail("requires event_type and positive threshold")
		}
		return &c, nil

	case ConditionStreak:
		var c StreakCondition
		if err := json.Unmarshal(params, &c); err != nil {
			return nil, fail(err.Error())
		}
		if c.StreakType == "" || c.Days <= 0 {
			return nil, fail("requires streak_type and positive days")
		}
		return &c, nil

	case ConditionMilestone:
		var c MilestoneCondition
		if err := json.Unmarshal(params, &c); err != nil {
			return nil, fail(err.Error())
		}
		if c.Metric == "" || c.Threshold <= 0 {
			return nil, fail("requires metric and positive threshold")
		}
		return &c, nil
	}

	return nil, fail("unrecognized kind")
}

// EncodeCondition is the inverse of ParseCondition, used by stores and the
// admin API to persist a typed condition as (kind, params JSON).
func EncodeCondition(c Condition) (kind string, params []byte, err error) {
	if c == nil {
		return "", nil, &UnknownConditionError{Kind: "", Reason: "nil condition"}
	}
	params, err = json.Marshal(c)
	if err != nil {
		return "", nil, err
	}
	return string(c.Kind()), params, nil
}

// =============================================================================
// EVALUATOR
// =============================================================================

// Teaser is the next unachieved, non-hidden achievement with its progress,
// for UI "almost there" hints.
type Teaser struct {
	Achievement AchievementDefinition
	Progress    int64
	ProgressMax int64
	Label       string
}

// Evaluator decides which unfulfilled achievements now qualify and unlocks
// them. Logger receives skip notices for malformed definitions; nil uses
// the standard logger.
type Evaluator struct {
	Store  TxStore
	Ledger *Ledger
	Logger *log.Logger
}

func (e *Evaluator) logf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Check evaluates the whole catalog for the user and unlocks every
// qualifying achievement, granting its rewards. Returns the definitions
// unlocked by this call.
func (e *Evaluator) Check(ctx context.Context, userID UserID) ([]AchievementDefinition, error) {
	var unlocked []AchievementDefinition
	err := e.Store.WithTx(ctx, func(s Store) error {
		var err error
		unlocked, err = e.checkIn(ctx, s, userID)
		return err
	})
	return unlocked, err
}

// checkIn is the transaction-scoped sweep used by Check and the dispatcher.
// It loops because unlock rewards can satisfy further conditions; the loop
// is bounded by the catalog size since each pass must unlock something new.
func (e *Evaluator) checkIn(ctx context.Context, s Store, userID UserID) ([]AchievementDefinition, error) {
	defs, err := s.AchievementDefinitions(ctx)
	if err != nil {
		return nil, err
	}

	var unlocked []AchievementDefinition
	for pass := 0; pass <= len(defs); pass++ {
		n, err := e.sweep(ctx, s, userID, defs, &unlocked)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	return unlocked, nil
}

func (e *Evaluator) sweep(ctx context.Context, s Store, userID UserID, defs []AchievementDefinition, unlocked *[]AchievementDefinition) (int, error) {
	count := 0
	for _, def := range defs {
		if def.Condition == nil {
			e.logf("achievements: skipping %s: malformed condition", def.ID)
			continue
		}

		has, err := s.HasAchievement(ctx, userID, def.ID)
		if err != nil {
			return 0, err
		}
		if has {
			continue
		}

		p, err := def.Condition.Evaluate(ctx, s, userID)
		if err != nil {
			var uc *UnknownConditionError
			if errors.As(err, &uc) {
				e.logf("achievements: skipping %s: %v", def.ID, err)
				continue
			}
			return 0, err
		}
		if !p.Met() {
			continue
		}

		ok, err := e.unlockIn(ctx, s, userID, def)
		if err != nil {
			return 0, err
		}
		if ok {
			*unlocked = append(*unlocked, def)
			count++
		}
	}
	return count, nil
}

// unlockIn inserts the unlock record and grants the definition's rewards.
// Returns false without error when the achievement was already unlocked.
func (e *Evaluator) unlockIn(ctx context.Context, s Store, userID UserID, def AchievementDefinition) (bool, error) {
	has, err := s.HasAchievement(ctx, userID, def.ID)
	if err != nil {
		return false, err
	}
	if has {
		return false, nil
	}

	now := time.Now().UTC()
	if err := s.InsertUserAchievement(ctx, UserAchievement{
		UserID:        userID,
		AchievementID: def.ID,
		EarnedAt:      now,
	}); err != nil {
		return false, err
	}

	// Rewards re-enter the award path with the achievement as the
	// idempotency source: granted exactly once no matter how often the
	// check runs.
	rewards := []AwardRequest{
		{UserID: userID, Currency: CurrencyCoins, Amount: def.RewardCoins},
		{UserID: userID, Currency: CurrencyXP, Amount: def.RewardXP},
		{UserID: userID, Currency: CurrencySkillStars, Amount: def.RewardSkillStars, SkillID: def.RewardSkillID},
	}
	for _, r := range rewards {
		if r.Amount <= 0 {
			continue
		}
		r.Reason = fmt.Sprintf("achievement: %s", def.Name)
		r.SourceType = SourceAchievement
		r.SourceID = def.ID
		if _, err := e.Ledger.awardIn(ctx, s, r); err != nil {
			return false, err
		}
	}

	ev := ActivityEvent{
		ID:          newEntryID("ae"),
		UserID:      userID,
		EventType:   EventAchievementEarned,
		EntityType:  "achievement",
		EntityID:    def.ID,
		CoinsEarned: def.RewardCoins,
		XPEarned:    def.RewardXP,
		CreatedAt:   now,
	}
	if err := s.AppendActivityEvent(ctx, ev); err != nil {
		return false, err
	}

	return true, nil
}

// NextTeaser scans not-yet-unlocked, non-hidden achievements ordered by
// ascending coin reward and returns the first with its progress. Read-only;
// returns nil when everything visible is unlocked.
func (e *Evaluator) NextTeaser(ctx context.Context, userID UserID) (*Teaser, error) {
	defs, err := e.Store.AchievementDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	earned, err := e.Store.UserAchievements(ctx, userID)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(earned))
	for _, ua := range earned {
		have[ua.AchievementID] = true
	}

	sort.SliceStable(defs, func(i, j int) bool {
		return defs[i].RewardCoins < defs[j].RewardCoins
	})

	for _, def := range defs {
		if def.IsHidden || have[def.ID] || def.Condition == nil {
			continue
		}
		p, err := def.Condition.Evaluate(ctx, e.Store, userID)
		if err != nil {
			var uc *UnknownConditionError
			if errors.As(err, &uc) {
				e.logf("achievements: teaser skipping %s: %v", def.ID, err)
				continue
			}
			return nil, err
		}
		if p.Met() {
			continue
		}
		return &Teaser{
			Achievement: def,
			Progress:    p.Current,
			ProgressMax: p.Target,
			Label:       p.Label,
		}, nil
	}
	return nil, nil
}
