package progression_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/progression-engine/progression"
	"github.com/warp/progression-engine/progression/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) (*progression.Ledger, *store.TxMemory) {
	t.Helper()
	mem := store.NewTxMemory()
	return &progression.Ledger{Store: mem, Curve: progression.DefaultCurve()}, mem
}

func coinAward(userID string, amount int64, sourceID string) progression.AwardRequest {
	return progression.AwardRequest{
		UserID:     progression.UserID(userID),
		Currency:   progression.CurrencyCoins,
		Amount:     amount,
		Reason:     "quest reward",
		SourceType: "quest",
		SourceID:   sourceID,
	}
}

// =============================================================================
// AWARD TESTS
// =============================================================================

func TestLedger_Award_CreatesWalletOnFirstTouch(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	res, err := ledger.Award(ctx, coinAward("user-1", 50, "q-1"))
	require.NoError(t, err)

	assert.False(t, res.AlreadyAwarded)
	assert.Equal(t, int64(50), res.NewBalance)

	w, err := ledger.GetWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), w.Coins)
	assert.Equal(t, 1, w.Level)
	assert.Equal(t, int64(50), w.TotalEarned)
}

func TestLedger_Award_Idempotent(t *testing.T) {
	// GIVEN: An award with a (sourceType, sourceID) pair already applied
	// WHEN: The identical award is retried
	// THEN: alreadyAwarded=true, the balance is unchanged, no new entry

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	first, err := ledger.Award(ctx, coinAward("user-1", 50, "q-1"))
	require.NoError(t, err)
	require.False(t, first.AlreadyAwarded)

	second, err := ledger.Award(ctx, coinAward("user-1", 50, "q-1"))
	require.NoError(t, err)
	assert.True(t, second.AlreadyAwarded)
	assert.Equal(t, int64(50), second.NewBalance)

	entries, err := ledger.Entries(ctx, "user-1", progression.CurrencyCoins)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLedger_Award_SameSourceDifferentCurrency_Independent(t *testing.T) {
	// Currency is part of the idempotency tuple: one quest may grant both
	// coins and XP under the same source pair.

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Award(ctx, coinAward("user-1", 50, "q-1"))
	require.NoError(t, err)

	res, err := ledger.Award(ctx, progression.AwardRequest{
		UserID:     "user-1",
		Currency:   progression.CurrencyXP,
		Amount:     25,
		SourceType: "quest",
		SourceID:   "q-1",
	})
	require.NoError(t, err)
	assert.False(t, res.AlreadyAwarded)
}

func TestLedger_Award_XPLevelsUp(t *testing.T) {
	// 250 XP from level 1: costs are 100 then 150, landing exactly on level 3.

	ledger, mem := newTestLedger(t)
	ctx := context.Background()

	res, err := ledger.Award(ctx, progression.AwardRequest{
		UserID:   "user-1",
		Currency: progression.CurrencyXP,
		Amount:   250,
		Reason:   "big grant",
	})
	require.NoError(t, err)

	assert.True(t, res.LeveledUp)
	assert.Equal(t, 3, res.NewLevel)
	assert.Equal(t, 2, res.LevelsGained)
	assert.Equal(t, int64(0), res.NewBalance)

	w, err := ledger.GetWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, w.Level)
	assert.Equal(t, int64(0), w.XP)
	assert.Equal(t, int64(225), w.XPToNextLevel)

	// One level_up event per level gained
	n, err := mem.CountActivityEvents(ctx, "user-1", progression.EventLevelUp)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestLedger_Award_XPWithoutLevelUp(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	res, err := ledger.Award(ctx, progression.AwardRequest{
		UserID:   "user-1",
		Currency: progression.CurrencyXP,
		Amount:   90,
	})
	require.NoError(t, err)

	assert.False(t, res.LeveledUp)
	assert.Equal(t, 1, res.NewLevel)
	assert.Equal(t, int64(90), res.NewBalance)
}

func TestLedger_Award_SkillStars(t *testing.T) {
	ledger, mem := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, mem.SaveSkillDefinition(ctx, progression.SkillDefinition{
		ID:            "deep_work",
		Name:          "Deep Work",
		StarsPerLevel: 10,
	}))

	for i := 0; i < 3; i++ {
		_, err := ledger.Award(ctx, progression.AwardRequest{
			UserID:     "user-1",
			Currency:   progression.CurrencySkillStars,
			Amount:     5,
			SkillID:    "deep_work",
			SourceType: "focus_session",
			SourceID:   fmt.Sprintf("fs-%d", i),
		})
		require.NoError(t, err)
	}

	skill, err := mem.GetSkill(ctx, "user-1", "deep_work")
	require.NoError(t, err)
	require.NotNil(t, skill)
	assert.Equal(t, int64(15), skill.CurrentStars)
	assert.Equal(t, 1, skill.CurrentLevel) // 15 stars / 10 per level

	w, err := ledger.GetWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(15), w.TotalSkillStars)
}

func TestLedger_Award_SkillStarsRequireSkillID(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, err := ledger.Award(context.Background(), progression.AwardRequest{
		UserID:   "user-1",
		Currency: progression.CurrencySkillStars,
		Amount:   5,
	})
	assert.ErrorIs(t, err, progression.ErrSkillIDRequired)
}

func TestLedger_Award_Validation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Award(ctx, progression.AwardRequest{
		UserID:   "user-1",
		Currency: progression.CurrencyCoins,
		Amount:   0,
	})
	assert.ErrorIs(t, err, progression.ErrInvalidAmount)

	_, err = ledger.Award(ctx, progression.AwardRequest{
		UserID:   "user-1",
		Currency: "gems",
		Amount:   5,
	})
	assert.ErrorIs(t, err, progression.ErrInvalidCurrency)
}

// =============================================================================
// SPEND TESTS
// =============================================================================

func TestLedger_Spend_Success(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Award(ctx, coinAward("user-1", 100, "q-1"))
	require.NoError(t, err)

	res, err := ledger.Spend(ctx, progression.SpendRequest{
		UserID: "user-1",
		Amount: 40,
		Reason: "market purchase",
	})
	require.NoError(t, err)

	assert.True(t, res.OK)
	assert.Equal(t, int64(60), res.NewBalance)

	w, err := ledger.GetWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(60), w.Coins)
	assert.Equal(t, int64(100), w.TotalEarned)
	assert.Equal(t, int64(40), w.TotalSpent)
}

func TestLedger_Spend_InsufficientFunds_WritesNothing(t *testing.T) {
	// GIVEN: A wallet holding 30 coins
	// WHEN: Spending 50
	// THEN: The typed error is returned, the balance and ledger are untouched

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Award(ctx, coinAward("user-1", 30, "q-1"))
	require.NoError(t, err)

	res, err := ledger.Spend(ctx, progression.SpendRequest{
		UserID: "user-1",
		Amount: 50,
	})

	assert.ErrorIs(t, err, progression.ErrInsufficientFunds)
	var insErr *progression.InsufficientFundsError
	require.ErrorAs(t, err, &insErr)
	assert.Equal(t, int64(30), insErr.Available)
	assert.Equal(t, int64(50), insErr.Requested)
	assert.False(t, res.OK)
	assert.Equal(t, int64(30), res.NewBalance)

	w, err := ledger.GetWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), w.Coins)
	assert.Equal(t, int64(0), w.TotalSpent)

	entries, err := ledger.Entries(ctx, "user-1", progression.CurrencyCoins)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the award entry should exist")
}

func TestLedger_Spend_IdempotentPurchase(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Award(ctx, coinAward("user-1", 100, "q-1"))
	require.NoError(t, err)

	spend := progression.SpendRequest{
		UserID:     "user-1",
		Amount:     40,
		PurchaseID: "order-7",
	}

	first, err := ledger.Spend(ctx, spend)
	require.NoError(t, err)
	assert.Equal(t, int64(60), first.NewBalance)

	// Retrying the same purchase is a no-op, not a double charge.
	second, err := ledger.Spend(ctx, spend)
	require.NoError(t, err)
	assert.True(t, second.OK)
	assert.Equal(t, int64(60), second.NewBalance)
}

// =============================================================================
// CONSERVATION
// =============================================================================

func TestLedger_Conservation(t *testing.T) {
	// The wallet balance must always equal the sum of ledger entries.

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Award(ctx, coinAward("user-1", 100, "q-1"))
	require.NoError(t, err)
	_, err = ledger.Award(ctx, coinAward("user-1", 75, "q-2"))
	require.NoError(t, err)
	_, err = ledger.Spend(ctx, progression.SpendRequest{UserID: "user-1", Amount: 30})
	require.NoError(t, err)

	sum, err := ledger.Balance(ctx, "user-1", progression.CurrencyCoins)
	require.NoError(t, err)

	w, err := ledger.GetWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, w.Coins, sum)
	assert.Equal(t, int64(145), sum)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestLedger_ConcurrentAwards_DistinctSources(t *testing.T) {
	// N concurrent awards with distinct sources must all land; the final
	// balance is the exact sum with no lost updates.

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.Award(ctx, coinAward("user-1", 10, fmt.Sprintf("q-%d", i)))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	w, err := ledger.GetWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10*n), w.Coins)
}

func TestLedger_ConcurrentAwards_SameSource_AppliedOnce(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Award(ctx, coinAward("user-1", 10, "q-1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	w, err := ledger.GetWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), w.Coins, "identical awards must apply exactly once")

	entries, err := ledger.Entries(ctx, "user-1", progression.CurrencyCoins)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
