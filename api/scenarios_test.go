/*
scenarios_test.go - Tests for the demo scenario loaders

Tests for:
- Loading each scenario end to end over the in-memory store
- Unknown scenario rejection
*/
package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T, router http.Handler, id string) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/scenarios/load", map[string]string{
		"scenario_id": id,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestLoadScenario_NewUser(t *testing.T) {
	router, _ := newTestServer(t)

	loadScenario(t, router, "new-user")

	rec := doJSON(t, router, http.MethodGet, "/api/users/demo-user/wallet", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	wallet := decode[WalletDTO](t, rec)
	assert.Greater(t, wallet.Coins, int64(0))

	rec = doJSON(t, router, http.MethodGet, "/api/users/demo-user/achievements", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]EarnedAchievementDTO](t, rec)

	earned := 0
	for _, a := range list {
		if a.Earned {
			earned++
		}
	}
	assert.Equal(t, 1, earned)
}

func TestLoadScenario_PowerUser(t *testing.T) {
	router, _ := newTestServer(t)

	loadScenario(t, router, "power-user")

	rec := doJSON(t, router, http.MethodGet, "/api/users/demo-user/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[SummaryDTO](t, rec)

	assert.Greater(t, summary.Wallet.Level, 1)
	assert.Greater(t, summary.Wallet.TotalSkillStars, int64(0))
	assert.Equal(t, 7, summary.CurrentStreak)
	assert.Equal(t, 14, summary.LongestStreak)
	assert.Greater(t, summary.AchievementsEarned, 0)
}

func TestLoadScenario_BigSpender(t *testing.T) {
	router, _ := newTestServer(t)

	loadScenario(t, router, "big-spender")

	rec := doJSON(t, router, http.MethodGet, "/api/users/demo-user/wallet", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	wallet := decode[WalletDTO](t, rec)
	assert.Equal(t, int64(2000), wallet.TotalEarned)
	assert.Equal(t, int64(550), wallet.TotalSpent)
	assert.Equal(t, int64(1450), wallet.Coins)
}

func TestLoadScenario_ResetsPreviousState(t *testing.T) {
	router, _ := newTestServer(t)

	loadScenario(t, router, "big-spender")
	loadScenario(t, router, "new-user")

	rec := doJSON(t, router, http.MethodGet, "/api/users/demo-user/wallet", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	wallet := decode[WalletDTO](t, rec)
	assert.Equal(t, int64(0), wallet.TotalSpent)

	rec = doJSON(t, router, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	current := decode[ScenarioDTO](t, rec)
	assert.Equal(t, "new-user", current.ID)
}

func TestLoadScenario_Unknown(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/scenarios/load", map[string]string{
		"scenario_id": "time-travel",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
