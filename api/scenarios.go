/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario resets the store, seeds the
	built-in catalog, and drives the engine through its public entry points
	so the resulting state is exactly what real usage would produce.

AVAILABLE SCENARIOS:

	new-user:     A single quest completion, first achievement unlocked
	power-user:   Weeks of quests and focus sessions, a live streak,
	              several levels and achievements
	big-spender:  Large coin balance with market purchases against it

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "power-user"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - catalog/: The seeded definitions scenarios build on
  - handlers.go: The endpoints scenarios drive
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/progression-engine/catalog"
	"github.com/warp/progression-engine/progression"
)

// DemoUserID is the user every scenario populates.
const DemoUserID progression.UserID = "demo-user"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "new-user",
		Name:        "New User",
		Description: "Fresh wallet with one quest completed and the first achievement unlocked",
	},
	{
		ID:          "power-user",
		Name:        "Power User",
		Description: "Weeks of quests and focus sessions: levels, skill stars, a live streak",
	},
	{
		ID:          "big-spender",
		Name:        "Big Spender",
		Description: "Large coin balance with market purchases spent against it",
	},
}

// resettable is satisfied by stores that can be wiped for a scenario load.
type resettable interface {
	Reset(ctx context.Context) error
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: h.currentScenario, Name: h.currentScenario})
}

// LoadScenario resets the store and loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	store, ok := h.Store.(resettable)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Store does not support scenario loading", nil)
		return
	}
	if err := store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	if err := catalog.Seed(ctx, h.Store); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to seed catalog", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "new-user":
		err = h.loadNewUserScenario(ctx)
	case "power-user":
		err = h.loadPowerUserScenario(ctx)
	case "big-spender":
		err = h.loadBigSpenderScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
		"user_id":  string(DemoUserID),
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadNewUserScenario(ctx context.Context) error {
	_, err := h.Dispatcher.RecordActivity(ctx, progression.ActivityInput{
		UserID:     DemoUserID,
		EventType:  progression.EventQuestComplete,
		EntityType: "quest",
		EntityID:   "quest-welcome",
		Coins:      20,
		XP:         50,
		Reason:     "quest: welcome aboard",
		SourceType: "quest",
		SourceID:   "quest-welcome",
	})
	return err
}

func (h *Handler) loadPowerUserScenario(ctx context.Context) error {
	// A streak history predating today; the dispatches below extend it.
	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format(progression.DateLayout)
	now := time.Now().UTC()
	if err := h.Store.SaveStreak(ctx, progression.UserStreak{
		UserID:           DemoUserID,
		StreakType:       progression.StreakDailyActivity,
		CurrentStreak:    6,
		LongestStreak:    14,
		LastActivityDate: yesterday,
		CreatedAt:        now.AddDate(0, 0, -21),
		UpdatedAt:        now.AddDate(0, 0, -1),
	}); err != nil {
		return err
	}

	for i := 1; i <= 12; i++ {
		if _, err := h.Dispatcher.RecordActivity(ctx, progression.ActivityInput{
			UserID:     DemoUserID,
			EventType:  progression.EventQuestComplete,
			EntityType: "quest",
			EntityID:   fmt.Sprintf("quest-%d", i),
			Coins:      30,
			XP:         60,
			Reason:     fmt.Sprintf("quest: daily goal %d", i),
			SourceType: "quest",
			SourceID:   fmt.Sprintf("quest-%d", i),
		}); err != nil {
			return err
		}
	}

	for i := 1; i <= 6; i++ {
		if _, err := h.Dispatcher.RecordActivity(ctx, progression.ActivityInput{
			UserID:     DemoUserID,
			EventType:  progression.EventFocusComplete,
			EntityType: "focus_session",
			EntityID:   fmt.Sprintf("focus-%d", i),
			XP:         25,
			SkillStars: 4,
			SkillID:    "deep_work",
			Reason:     fmt.Sprintf("focus: deep work block %d", i),
			SourceType: "focus_session",
			SourceID:   fmt.Sprintf("focus-%d", i),
		}); err != nil {
			return err
		}
	}

	return nil
}

func (h *Handler) loadBigSpenderScenario(ctx context.Context) error {
	for i := 1; i <= 5; i++ {
		if _, err := h.Ledger.Award(ctx, progression.AwardRequest{
			UserID:     DemoUserID,
			Currency:   progression.CurrencyCoins,
			Amount:     400,
			Reason:     fmt.Sprintf("quest: bounty %d", i),
			SourceType: "quest",
			SourceID:   fmt.Sprintf("bounty-%d", i),
		}); err != nil {
			return err
		}
	}

	purchases := []struct {
		id     string
		amount int64
		reason string
	}{
		{"order-1", 350, "market: telescope"},
		{"order-2", 120, "market: houseplant"},
		{"order-3", 80, "market: coffee beans"},
	}
	for _, p := range purchases {
		if _, err := h.Ledger.Spend(ctx, progression.SpendRequest{
			UserID:     DemoUserID,
			Amount:     p.amount,
			Reason:     p.reason,
			PurchaseID: p.id,
		}); err != nil {
			return err
		}
	}

	// Direct awards bypass the dispatcher, so sweep for milestone unlocks.
	_, err := h.Evaluator.Check(ctx, DemoUserID)
	return err
}
