/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Award, spend, and activity endpoints over an in-memory store
- Error status mapping (400 validation, 422 insufficient funds)
- Catalog admin endpoints and condition validation
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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

func newTestServer(t *testing.T) (http.Handler, *store.TxMemory) {
	t.Helper()
	mem := store.NewTxMemory()
	return NewRouter(NewHandler(mem)), mem
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// =============================================================================
// AWARD / SPEND
// =============================================================================

func TestAward_Success(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/users/user-1/award", AwardRequest{
		Currency: "coins",
		Amount:   50,
		Reason:   "quest: morning pages",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[AwardResultDTO](t, rec)
	assert.Equal(t, int64(50), res.NewBalance)
	assert.False(t, res.AlreadyAwarded)
}

func TestAward_Idempotent(t *testing.T) {
	router, _ := newTestServer(t)

	req := AwardRequest{
		Currency:   "coins",
		Amount:     50,
		SourceType: "quest",
		SourceID:   "quest-1",
	}

	rec := doJSON(t, router, http.MethodPost, "/api/users/user-1/award", req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/users/user-1/award", req)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[AwardResultDTO](t, rec)
	assert.True(t, res.AlreadyAwarded)
	assert.Equal(t, int64(50), res.NewBalance)
}

func TestAward_InvalidCurrency(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/users/user-1/award", AwardRequest{
		Currency: "gems",
		Amount:   50,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpend_InsufficientFunds(t *testing.T) {
	// GIVEN: A wallet with 30 coins
	// WHEN: Spending 100
	// THEN: 422 with an error envelope; the balance is untouched

	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/users/user-1/award", AwardRequest{
		Currency: "coins",
		Amount:   30,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/users/user-1/spend", SpendRequest{
		Amount: 100,
		Reason: "market: telescope",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	res := decode[ErrorResponse](t, rec)
	assert.Equal(t, "Insufficient funds", res.Error)

	rec = doJSON(t, router, http.MethodGet, "/api/users/user-1/wallet", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	wallet := decode[WalletDTO](t, rec)
	assert.Equal(t, int64(30), wallet.Coins)
}

func TestSpend_Success(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/users/user-1/award", AwardRequest{
		Currency: "coins",
		Amount:   100,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/users/user-1/spend", SpendRequest{
		Amount:     40,
		Reason:     "market: telescope",
		PurchaseID: "order-7",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[SpendResultDTO](t, rec)
	assert.True(t, res.OK)
	assert.Equal(t, int64(60), res.NewBalance)
}

// =============================================================================
// ACTIVITY
// =============================================================================

func TestRecordActivity_FullFlow(t *testing.T) {
	router, mem := newTestServer(t)

	cond, err := progression.ParseCondition("first", []byte(`{"event_type":"quest_complete"}`))
	require.NoError(t, err)
	require.NoError(t, mem.SaveAchievementDefinition(context.Background(), progression.AchievementDefinition{
		ID:          "first_quest",
		Name:        "First Steps",
		Condition:   cond,
		RewardCoins: 25,
		CreatedAt:   time.Now().UTC(),
	}))

	rec := doJSON(t, router, http.MethodPost, "/api/users/user-1/activity", ActivityRequest{
		EventType:  progression.EventQuestComplete,
		EntityType: "quest",
		EntityID:   "quest-1",
		Coins:      30,
		XP:         120,
		SourceType: "quest",
		SourceID:   "quest-1",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[ActivityResultDTO](t, rec)
	assert.False(t, res.Replayed)
	require.NotNil(t, res.Coins)
	assert.Equal(t, int64(30), res.Coins.NewBalance)
	require.NotNil(t, res.XP)
	assert.True(t, res.XP.LeveledUp)
	assert.Nil(t, res.Skill)
	require.NotNil(t, res.Streak)
	assert.Equal(t, 1, res.Streak.CurrentStreak)
	require.Len(t, res.Unlocked, 1)
	assert.Equal(t, "first_quest", res.Unlocked[0].ID)
}

func TestRecordActivity_Replay(t *testing.T) {
	router, _ := newTestServer(t)

	req := ActivityRequest{
		EventType:  progression.EventQuestComplete,
		Coins:      30,
		SourceType: "quest",
		SourceID:   "quest-1",
	}

	rec := doJSON(t, router, http.MethodPost, "/api/users/user-1/activity", req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/users/user-1/activity", req)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[ActivityResultDTO](t, rec)
	assert.True(t, res.Replayed)
	assert.Nil(t, res.Streak)
}

func TestRecordActivity_MissingEventType(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/users/user-1/activity", ActivityRequest{
		Coins: 10,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// READS
// =============================================================================

func TestGetWallet_LazyCreates(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/users/new-user/wallet", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	wallet := decode[WalletDTO](t, rec)
	assert.Equal(t, "new-user", wallet.UserID)
	assert.Equal(t, int64(0), wallet.Coins)
	assert.Equal(t, 1, wallet.Level)
}

func TestGetLedger_InvalidCurrency(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/users/user-1/ledger?currency=gems", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSummary(t *testing.T) {
	router, mem := newTestServer(t)

	cond, err := progression.ParseCondition("count", []byte(`{"event_type":"quest_complete","threshold":10}`))
	require.NoError(t, err)
	require.NoError(t, mem.SaveAchievementDefinition(context.Background(), progression.AchievementDefinition{
		ID:          "quest_10",
		Name:        "Quest Veteran",
		Condition:   cond,
		RewardCoins: 100,
		CreatedAt:   time.Now().UTC(),
	}))

	rec := doJSON(t, router, http.MethodPost, "/api/users/user-1/activity", ActivityRequest{
		EventType: progression.EventQuestComplete,
		Coins:     30,
		XP:        50,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/users/user-1/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[SummaryDTO](t, rec)

	assert.Equal(t, int64(30), summary.Wallet.Coins)
	assert.Equal(t, 1, summary.CurrentStreak)
	assert.Equal(t, 0, summary.AchievementsEarned)
	assert.Equal(t, 1, summary.AchievementsTotal)
	require.NotNil(t, summary.NextAchievement)
	assert.Equal(t, "quest_10", summary.NextAchievement.Achievement.ID)
}

func TestGetAchievements_HiddenUntilEarned(t *testing.T) {
	router, mem := newTestServer(t)

	cond, err := progression.ParseCondition("milestone", []byte(`{"metric":"coins","threshold":1000}`))
	require.NoError(t, err)
	require.NoError(t, mem.SaveAchievementDefinition(context.Background(), progression.AchievementDefinition{
		ID:        "secret",
		Name:      "Secret",
		Condition: cond,
		IsHidden:  true,
		CreatedAt: time.Now().UTC(),
	}))

	rec := doJSON(t, router, http.MethodGet, "/api/users/user-1/achievements", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]EarnedAchievementDTO](t, rec)
	assert.Empty(t, list)

	// The admin listing still shows it.
	rec = doJSON(t, router, http.MethodGet, "/api/achievements", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	admin := decode[[]AchievementDTO](t, rec)
	assert.Len(t, admin, 1)
}

// =============================================================================
// CATALOG (admin)
// =============================================================================

func TestSaveAchievementDefinition_Valid(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/achievements", SaveAchievementRequest{
		ID:   "focus_5",
		Name: "Focused",
		Condition: ConditionDTO{
			Kind:   "count",
			Params: json.RawMessage(`{"event_type":"focus_complete","threshold":5}`),
		},
		RewardCoins: 50,
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	res := decode[AchievementDTO](t, rec)
	assert.Equal(t, "focus_5", res.ID)
	require.NotNil(t, res.Condition)
	assert.Equal(t, "count", res.Condition.Kind)
}

func TestSaveAchievementDefinition_MalformedCondition(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/achievements", SaveAchievementRequest{
		ID:   "broken",
		Name: "Broken",
		Condition: ConditionDTO{
			Kind:   "count",
			Params: json.RawMessage(`{"event_type":""}`),
		},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveSkillDefinition(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/skills", SaveSkillRequest{
		ID:            "deep_work",
		Name:          "Deep Work",
		StarsPerLevel: 20,
		MaxLevel:      50,
		SortOrder:     1,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/skills", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]SkillDefinitionDTO](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "Deep Work", list[0].Name)
}

func TestSaveSkillDefinition_MissingID(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/skills", SaveSkillRequest{
		Name: "No ID",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
