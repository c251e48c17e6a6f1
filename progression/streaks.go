/*
streaks.go - Consecutive-day activity tracking

PURPOSE:
  Maintains a per-(user, streakType) counter of consecutive calendar days
  with at least one qualifying activity. Uses UTC calendar dates, not
  timestamps, so time-of-day and timezone cannot double count a day.

BRANCHES (per touch):
  - no row yet:            create with streak 1
  - last activity today:   no-op (idempotent within a day)
  - last activity yesterday: increment, update longest
  - gap of 2+ days:        reset to 1, streakBroken=true

  Touch is called once per qualifying domain event (the dispatcher decides
  which event types qualify), not on page views.

SEE ALSO:
  - dispatcher.go: Maps event types to streak types
  - achievements.go: StreakCondition reads CurrentStreak
*/
package progression

import (
	"context"
	"time"
)

// StreakTracker updates and reads streak rows. Now is injectable for tests;
// it defaults to the UTC wall clock.
type StreakTracker struct {
	Store TxStore
	Now   func() time.Time
}

func (st *StreakTracker) today() string {
	now := st.Now
	if now == nil {
		now = time.Now
	}
	return now().UTC().Format(DateLayout)
}

// Touch records qualifying activity for today and returns the updated
// streak state. Idempotent within a calendar day.
func (st *StreakTracker) Touch(ctx context.Context, userID UserID, streakType string) (StreakResult, error) {
	var res StreakResult
	err := st.Store.WithTx(ctx, func(s Store) error {
		var err error
		res, err = st.touchIn(ctx, s, userID, streakType)
		return err
	})
	return res, err
}

// touchIn is the transaction-scoped update used by Touch and the dispatcher.
func (st *StreakTracker) touchIn(ctx context.Context, s Store, userID UserID, streakType string) (StreakResult, error) {
	today := st.today()
	now := time.Now().UTC()

	row, err := s.GetStreak(ctx, userID, streakType)
	if err != nil {
		return StreakResult{}, err
	}

	if row == nil {
		row = &UserStreak{
			UserID:           userID,
			StreakType:       streakType,
			CurrentStreak:    1,
			LongestStreak:    1,
			LastActivityDate: today,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.SaveStreak(ctx, *row); err != nil {
			return StreakResult{}, err
		}
		return StreakResult{CurrentStreak: 1, LongestStreak: 1, IsNewDay: true}, nil
	}

	if row.LastActivityDate == today {
		return StreakResult{
			CurrentStreak: row.CurrentStreak,
			LongestStreak: row.LongestStreak,
			IsNewDay:      false,
		}, nil
	}

	day, err := time.Parse(DateLayout, today)
	if err != nil {
		return StreakResult{}, err
	}
	yesterday := day.AddDate(0, 0, -1).Format(DateLayout)

	broken := false
	if row.LastActivityDate == yesterday {
		row.CurrentStreak++
	} else {
		broken = row.LastActivityDate != ""
		row.CurrentStreak = 1
	}
	if row.CurrentStreak > row.LongestStreak {
		row.LongestStreak = row.CurrentStreak
	}
	row.LastActivityDate = today
	row.UpdatedAt = now

	if err := s.SaveStreak(ctx, *row); err != nil {
		return StreakResult{}, err
	}
	return StreakResult{
		CurrentStreak: row.CurrentStreak,
		LongestStreak: row.LongestStreak,
		IsNewDay:      true,
		StreakBroken:  broken,
	}, nil
}

// Get returns the streak row for a (user, type), or a zero-valued row if the
// user has no activity yet.
func (st *StreakTracker) Get(ctx context.Context, userID UserID, streakType string) (UserStreak, error) {
	row, err := st.Store.GetStreak(ctx, userID, streakType)
	if err != nil {
		return UserStreak{}, err
	}
	if row == nil {
		return UserStreak{UserID: userID, StreakType: streakType}, nil
	}
	return *row, nil
}
