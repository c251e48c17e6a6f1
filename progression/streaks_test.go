package progression_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/progression-engine/progression"
	"github.com/warp/progression-engine/progression/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// fakeClock lets tests walk the tracker through calendar days.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advanceDays(n int) { c.now = c.now.AddDate(0, 0, n) }

func newTestStreaks(t *testing.T) (*progression.StreakTracker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)}
	tracker := &progression.StreakTracker{
		Store: store.NewTxMemory(),
		Now:   clock.Now,
	}
	return tracker, clock
}

// =============================================================================
// BRANCH TESTS
// =============================================================================

func TestStreaks_FirstTouch_StartsAtOne(t *testing.T) {
	tracker, _ := newTestStreaks(t)
	ctx := context.Background()

	res, err := tracker.Touch(ctx, "user-1", progression.StreakDailyActivity)
	require.NoError(t, err)

	assert.Equal(t, 1, res.CurrentStreak)
	assert.Equal(t, 1, res.LongestStreak)
	assert.True(t, res.IsNewDay)
	assert.False(t, res.StreakBroken)
}

func TestStreaks_SameDay_NoOp(t *testing.T) {
	// GIVEN: Activity already recorded today
	// WHEN: A second qualifying event arrives the same day
	// THEN: The streak does not change

	tracker, _ := newTestStreaks(t)
	ctx := context.Background()

	_, err := tracker.Touch(ctx, "user-1", progression.StreakDailyActivity)
	require.NoError(t, err)

	res, err := tracker.Touch(ctx, "user-1", progression.StreakDailyActivity)
	require.NoError(t, err)

	assert.Equal(t, 1, res.CurrentStreak)
	assert.False(t, res.IsNewDay)
}

func TestStreaks_ConsecutiveDay_Increments(t *testing.T) {
	tracker, clock := newTestStreaks(t)
	ctx := context.Background()

	_, err := tracker.Touch(ctx, "user-1", progression.StreakDailyActivity)
	require.NoError(t, err)

	clock.advanceDays(1)
	res, err := tracker.Touch(ctx, "user-1", progression.StreakDailyActivity)
	require.NoError(t, err)

	assert.Equal(t, 2, res.CurrentStreak)
	assert.Equal(t, 2, res.LongestStreak)
	assert.True(t, res.IsNewDay)
	assert.False(t, res.StreakBroken)
}

func TestStreaks_Gap_ResetsToOne(t *testing.T) {
	// GIVEN: A 3-day streak, last activity on day N
	// WHEN: The next activity arrives on day N+3
	// THEN: The streak resets to 1 with streakBroken=true; longest is kept

	tracker, clock := newTestStreaks(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := tracker.Touch(ctx, "user-1", progression.StreakDailyActivity)
		require.NoError(t, err)
		clock.advanceDays(1)
	}
	// Already advanced 1 past the last touch; skip 2 more.
	clock.advanceDays(2)

	res, err := tracker.Touch(ctx, "user-1", progression.StreakDailyActivity)
	require.NoError(t, err)

	assert.Equal(t, 1, res.CurrentStreak)
	assert.Equal(t, 3, res.LongestStreak)
	assert.True(t, res.StreakBroken)
}

func TestStreaks_LongestTracksPeak(t *testing.T) {
	tracker, clock := newTestStreaks(t)
	ctx := context.Background()

	// 5-day run
	for i := 0; i < 5; i++ {
		_, err := tracker.Touch(ctx, "user-1", progression.StreakDailyActivity)
		require.NoError(t, err)
		clock.advanceDays(1)
	}
	// Break, then a 2-day run
	clock.advanceDays(3)
	for i := 0; i < 2; i++ {
		_, err := tracker.Touch(ctx, "user-1", progression.StreakDailyActivity)
		require.NoError(t, err)
		clock.advanceDays(1)
	}

	streak, err := tracker.Get(ctx, "user-1", progression.StreakDailyActivity)
	require.NoError(t, err)
	assert.Equal(t, 2, streak.CurrentStreak)
	assert.Equal(t, 5, streak.LongestStreak)
}

func TestStreaks_IndependentTypes(t *testing.T) {
	tracker, _ := newTestStreaks(t)
	ctx := context.Background()

	_, err := tracker.Touch(ctx, "user-1", progression.StreakDailyActivity)
	require.NoError(t, err)
	_, err = tracker.Touch(ctx, "user-1", "workout")
	require.NoError(t, err)
	_, err = tracker.Touch(ctx, "user-1", "workout")
	require.NoError(t, err)

	daily, err := tracker.Get(ctx, "user-1", progression.StreakDailyActivity)
	require.NoError(t, err)
	workout, err := tracker.Get(ctx, "user-1", "workout")
	require.NoError(t, err)

	assert.Equal(t, 1, daily.CurrentStreak)
	assert.Equal(t, 1, workout.CurrentStreak)
}

func TestStreaks_Get_NoActivityYet(t *testing.T) {
	tracker, _ := newTestStreaks(t)

	streak, err := tracker.Get(context.Background(), "user-1", progression.StreakDailyActivity)
	require.NoError(t, err)

	assert.Equal(t, 0, streak.CurrentStreak)
	assert.Equal(t, 0, streak.LongestStreak)
	assert.Empty(t, streak.LastActivityDate)
}
