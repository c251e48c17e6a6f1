/*
dispatcher.go - Orchestration entry point for domain events

PURPOSE:
  External collaborators (quest completion, focus completion, lesson
  completion, market purchase) call RecordActivity with one domain event.
  The dispatcher composes the ledger, streak tracker and achievement
  evaluator into one logical unit of work:

    1. award each non-zero currency (idempotent per the event's source)
    2. append one ActivityEvent describing what was actually granted
    3. touch the streak for streak-relevant event types
    4. re-check achievements (which may itself award currency)

  All steps run inside a single store transaction; achievement rewards
  re-enter the award path on the same transaction-scoped store, so nothing
  nests.

REPLAY:
  When the event carries a source and every requested award comes back
  alreadyAwarded, the whole call is a replay of an event that was fully
  processed before: no ActivityEvent is appended (count conditions must not
  double count) and the streak is not touched again.

SEE ALSO:
  - ledger.go, streaks.go, achievements.go: The composed parts
  - api/handlers.go: HTTP surface over RecordActivity
*/
package progression

import (
	"context"
	"time"
)

// Dispatcher wires the engine's parts together. StreakEvents maps event
// types to the streak they maintain; event types absent from the map do not
// touch any streak.
type Dispatcher struct {
	Store        TxStore
	Ledger       *Ledger
	Evaluator    *Evaluator
	Streaks      *StreakTracker
	StreakEvents map[string]string
}

// DefaultStreakEvents maps the built-in completion events onto the daily
// activity streak.
func DefaultStreakEvents() map[string]string {
	return map[string]string{
		EventQuestComplete:   StreakDailyActivity,
		EventHabitComplete:   StreakDailyActivity,
		EventFocusComplete:   StreakDailyActivity,
		EventLessonComplete:  StreakDailyActivity,
		EventWorkoutComplete: StreakDailyActivity,
	}
}

// RecordActivity processes one domain event end to end.
func (d *Dispatcher) RecordActivity(ctx context.Context, in ActivityInput) (ActivityResult, error) {
	var res ActivityResult
	err := d.Store.WithTx(ctx, func(s Store) error {
		var err error
		res, err = d.recordIn(ctx, s, in)
		return err
	})
	return res, err
}

func (d *Dispatcher) recordIn(ctx context.Context, s Store, in ActivityInput) (ActivityResult, error) {
	var res ActivityResult

	base := AwardRequest{
		UserID:     in.UserID,
		Reason:     in.Reason,
		SourceType: in.SourceType,
		SourceID:   in.SourceID,
	}

	requested, replayed := 0, 0
	award := func(c Currency, amount int64, skillID SkillID) (AwardResult, error) {
		req := base
		req.Currency = c
		req.Amount = amount
		req.SkillID = skillID
		r, err := d.Ledger.awardIn(ctx, s, req)
		if err != nil {
			return AwardResult{}, err
		}
		requested++
		if r.AlreadyAwarded {
			replayed++
		}
		return r, nil
	}

	var err error
	if in.Coins > 0 {
		if res.Coins, err = award(CurrencyCoins, in.Coins, ""); err != nil {
			return res, err
		}
	}
	if in.XP > 0 {
		if res.XP, err = award(CurrencyXP, in.XP, ""); err != nil {
			return res, err
		}
	}
	if in.SkillStars > 0 {
		if res.Skill, err = award(CurrencySkillStars, in.SkillStars, in.SkillID); err != nil {
			return res, err
		}
	}

	// A sourced event whose awards were all duplicates has been fully
	// processed before.
	if requested > 0 && replayed == requested && in.SourceType != "" && in.SourceID != "" {
		res.Replayed = true
		return res, nil
	}

	granted := ActivityEvent{
		ID:          newEntryID("ae"),
		UserID:      in.UserID,
		EventType:   in.EventType,
		EntityType:  in.EntityType,
		EntityID:    in.EntityID,
		CoinsEarned: in.Coins,
		XPEarned:    in.XP,
		Metadata:    in.Metadata,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.AppendActivityEvent(ctx, granted); err != nil {
		return res, err
	}

	if streakType, ok := d.StreakEvents[in.EventType]; ok {
		sr, err := d.Streaks.touchIn(ctx, s, in.UserID, streakType)
		if err != nil {
			return res, err
		}
		res.Streak = &sr
	}

	unlocked, err := d.Evaluator.checkIn(ctx, s, in.UserID)
	if err != nil {
		return res, err
	}
	res.Unlocked = unlocked

	return res, nil
}
