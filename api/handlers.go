/*
handlers.go - HTTP API handlers for the progression engine

PURPOSE:
  Exposes the progression engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Users:
    POST   /api/users/{id}/award         Grant currency directly
    POST   /api/users/{id}/spend         Deduct coins
    POST   /api/users/{id}/activity      Record a domain event
    GET    /api/users/{id}/wallet        Balance snapshot
    GET    /api/users/{id}/ledger        Ledger history per currency
    GET    /api/users/{id}/skills        Per-skill progress
    GET    /api/users/{id}/streaks/{type} One streak's state
    GET    /api/users/{id}/achievements  Catalog with unlock state
    GET    /api/users/{id}/achievements/teaser  Next achievement hint
    GET    /api/users/{id}/events        Recent activity events
    GET    /api/users/{id}/summary       Dashboard aggregate

  Catalog (admin):
    GET    /api/achievements             List achievement definitions
    POST   /api/achievements             Create/replace a definition
    GET    /api/skills                   List skill definitions
    POST   /api/skills                   Create/replace a definition

  Demo (development only):
    GET    /api/scenarios                List demo scenarios
    GET    /api/scenarios/current        Currently loaded scenario
    POST   /api/scenarios/load           Reset and load a scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 422: Insufficient funds (balance check failed, nothing written)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/progression-engine/progression"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      progression.TxStore
	Ledger     *progression.Ledger
	Dispatcher *progression.Dispatcher
	Evaluator  *progression.Evaluator
	Streaks    *progression.StreakTracker

	currentScenario string // last demo scenario loaded, if any
}

// NewHandler wires the engine's parts over one store.
func NewHandler(store progression.TxStore) *Handler {
	ledger := &progression.Ledger{Store: store, Curve: progression.DefaultCurve()}
	evaluator := &progression.Evaluator{Store: store, Ledger: ledger}
	streaks := &progression.StreakTracker{Store: store}

	return &Handler{
		Store:  store,
		Ledger: ledger,
		Dispatcher: &progression.Dispatcher{
			Store:        store,
			Ledger:       ledger,
			Evaluator:    evaluator,
			Streaks:      streaks,
			StreakEvents: progression.DefaultStreakEvents(),
		},
		Evaluator: evaluator,
		Streaks:   streaks,
	}
}

// =============================================================================
// AWARD / SPEND
// =============================================================================

// Award grants a currency amount directly.
// POST /api/users/{id}/award
func (h *Handler) Award(w http.ResponseWriter, r *http.Request) {
	userID := progression.UserID(chi.URLParam(r, "id"))

	var req AwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Ledger.Award(r.Context(), progression.AwardRequest{
		UserID:     userID,
		Currency:   progression.Currency(req.Currency),
		Amount:     req.Amount,
		Reason:     req.Reason,
		SourceType: req.SourceType,
		SourceID:   req.SourceID,
		SkillID:    progression.SkillID(req.SkillID),
	})
	if err != nil {
		writeDomainError(w, "Failed to award", err)
		return
	}

	writeJSON(w, http.StatusOK, toAwardResultDTO(res))
}

// Spend deducts coins from a user's balance.
// POST /api/users/{id}/spend
func (h *Handler) Spend(w http.ResponseWriter, r *http.Request) {
	userID := progression.UserID(chi.URLParam(r, "id"))

	var req SpendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Ledger.Spend(r.Context(), progression.SpendRequest{
		UserID:     userID,
		Amount:     req.Amount,
		Reason:     req.Reason,
		PurchaseID: req.PurchaseID,
	})
	if err != nil {
		if errors.Is(err, progression.ErrInsufficientFunds) {
			// Nothing was charged; report the unchanged balance.
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
				Error:   "Insufficient funds",
				Details: err.Error(),
			})
			return
		}
		writeDomainError(w, "Failed to spend", err)
		return
	}

	writeJSON(w, http.StatusOK, SpendResultDTO{OK: res.OK, NewBalance: res.NewBalance})
}

// =============================================================================
// ACTIVITY
// =============================================================================

// RecordActivity processes one domain event: awards, streak, achievements.
// POST /api/users/{id}/activity
func (h *Handler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	userID := progression.UserID(chi.URLParam(r, "id"))

	var req ActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.EventType == "" {
		writeError(w, http.StatusBadRequest, "event_type is required", nil)
		return
	}

	res, err := h.Dispatcher.RecordActivity(r.Context(), progression.ActivityInput{
		UserID:     userID,
		EventType:  req.EventType,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Coins:      req.Coins,
		XP:         req.XP,
		SkillStars: req.SkillStars,
		SkillID:    progression.SkillID(req.SkillID),
		Reason:     req.Reason,
		SourceType: req.SourceType,
		SourceID:   req.SourceID,
		Metadata:   req.Metadata,
	})
	if err != nil {
		writeDomainError(w, "Failed to record activity", err)
		return
	}

	dto := ActivityResultDTO{
		Replayed: res.Replayed,
		Unlocked: make([]AchievementDTO, 0, len(res.Unlocked)),
	}
	if req.Coins > 0 {
		d := toAwardResultDTO(res.Coins)
		dto.Coins = &d
	}
	if req.XP > 0 {
		d := toAwardResultDTO(res.XP)
		dto.XP = &d
	}
	if req.SkillStars > 0 {
		d := toAwardResultDTO(res.Skill)
		dto.Skill = &d
	}
	if res.Streak != nil {
		dto.Streak = &StreakDTO{
			CurrentStreak: res.Streak.CurrentStreak,
			LongestStreak: res.Streak.LongestStreak,
			IsNewDay:      res.Streak.IsNewDay,
			StreakBroken:  res.Streak.StreakBroken,
		}
	}
	for _, def := range res.Unlocked {
		dto.Unlocked = append(dto.Unlocked, toAchievementDTO(def))
	}

	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// READS
// =============================================================================

// GetWallet returns the user's balance snapshot.
// GET /api/users/{id}/wallet
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID := progression.UserID(chi.URLParam(r, "id"))

	wallet, err := h.Ledger.GetWallet(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get wallet", err)
		return
	}

	writeJSON(w, http.StatusOK, toWalletDTO(wallet))
}

// GetLedger returns the user's ledger history for one currency.
// GET /api/users/{id}/ledger?currency=coins
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	userID := progression.UserID(chi.URLParam(r, "id"))

	currency := progression.Currency(r.URL.Query().Get("currency"))
	if currency == "" {
		currency = progression.CurrencyCoins
	}
	if !currency.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid currency", nil)
		return
	}

	entries, err := h.Ledger.Entries(r.Context(), userID, currency)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get ledger", err)
		return
	}

	dtos := make([]LedgerEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = LedgerEntryDTO{
			ID:         string(e.ID),
			Currency:   string(e.Currency),
			Amount:     e.Amount,
			Reason:     e.Reason,
			SourceType: e.SourceType,
			SourceID:   e.SourceID,
			SkillID:    string(e.SkillID),
			CreatedAt:  e.CreatedAt.Format(time.RFC3339),
		}
	}

	writeJSON(w, http.StatusOK, dtos)
}

// GetSkills returns the user's per-skill progress.
// GET /api/users/{id}/skills
func (h *Handler) GetSkills(w http.ResponseWriter, r *http.Request) {
	userID := progression.UserID(chi.URLParam(r, "id"))
	ctx := r.Context()

	userSkills, err := h.Store.Skills(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get skills", err)
		return
	}

	defs, err := h.Store.SkillDefinitions(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get skill definitions", err)
		return
	}
	names := make(map[progression.SkillID]string, len(defs))
	for _, def := range defs {
		names[def.ID] = def.Name
	}

	dtos := make([]SkillDTO, len(userSkills))
	for i, us := range userSkills {
		dtos[i] = SkillDTO{
			SkillID:      string(us.SkillID),
			Name:         names[us.SkillID],
			CurrentStars: us.CurrentStars,
			CurrentLevel: us.CurrentLevel,
		}
	}

	writeJSON(w, http.StatusOK, dtos)
}

// GetStreak returns one streak's state.
// GET /api/users/{id}/streaks/{type}
func (h *Handler) GetStreak(w http.ResponseWriter, r *http.Request) {
	userID := progression.UserID(chi.URLParam(r, "id"))
	streakType := chi.URLParam(r, "type")

	streak, err := h.Streaks.Get(r.Context(), userID, streakType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get streak", err)
		return
	}

	writeJSON(w, http.StatusOK, StreakDTO{
		StreakType:       streak.StreakType,
		CurrentStreak:    streak.CurrentStreak,
		LongestStreak:    streak.LongestStreak,
		LastActivityDate: streak.LastActivityDate,
	})
}

// GetAchievements returns the full catalog annotated with the user's unlocks.
// Hidden achievements are omitted until earned.
// GET /api/users/{id}/achievements
func (h *Handler) GetAchievements(w http.ResponseWriter, r *http.Request) {
	userID := progression.UserID(chi.URLParam(r, "id"))
	ctx := r.Context()

	defs, err := h.Store.AchievementDefinitions(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get achievements", err)
		return
	}

	earned, err := h.Store.UserAchievements(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get unlocks", err)
		return
	}
	earnedAt := make(map[string]time.Time, len(earned))
	for _, ua := range earned {
		earnedAt[ua.AchievementID] = ua.EarnedAt
	}

	dtos := make([]EarnedAchievementDTO, 0, len(defs))
	for _, def := range defs {
		at, ok := earnedAt[def.ID]
		if def.IsHidden && !ok {
			continue
		}
		dto := EarnedAchievementDTO{
			AchievementDTO: toAchievementDTO(def),
			Earned:         ok,
		}
		if ok {
			dto.EarnedAt = at.Format(time.RFC3339)
		}
		dtos = append(dtos, dto)
	}

	writeJSON(w, http.StatusOK, dtos)
}

// GetTeaser returns the next unachieved achievement with progress.
// GET /api/users/{id}/achievements/teaser
func (h *Handler) GetTeaser(w http.ResponseWriter, r *http.Request) {
	userID := progression.UserID(chi.URLParam(r, "id"))

	teaser, err := h.Evaluator.NextTeaser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get teaser", err)
		return
	}
	if teaser == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	writeJSON(w, http.StatusOK, TeaserDTO{
		Achievement: toAchievementDTO(teaser.Achievement),
		Progress:    teaser.Progress,
		ProgressMax: teaser.ProgressMax,
		Label:       teaser.Label,
	})
}

// GetEvents returns the user's most recent activity events.
// GET /api/users/{id}/events?limit=50
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	userID := progression.UserID(chi.URLParam(r, "id"))

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.Store.ActivityEvents(r.Context(), userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get events", err)
		return
	}

	dtos := make([]ActivityEventDTO, len(events))
	for i, ev := range events {
		dtos[i] = ActivityEventDTO{
			ID:          string(ev.ID),
			EventType:   ev.EventType,
			EntityType:  ev.EntityType,
			EntityID:    ev.EntityID,
			XPEarned:    ev.XPEarned,
			CoinsEarned: ev.CoinsEarned,
			Metadata:    ev.Metadata,
			CreatedAt:   ev.CreatedAt.Format(time.RFC3339),
		}
	}

	writeJSON(w, http.StatusOK, dtos)
}

// GetSummary returns the dashboard aggregate for one user.
// GET /api/users/{id}/summary
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID := progression.UserID(chi.URLParam(r, "id"))
	ctx := r.Context()

	wallet, err := h.Ledger.GetWallet(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get wallet", err)
		return
	}

	userSkills, err := h.Store.Skills(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get skills", err)
		return
	}

	currentStreak, err := h.Store.MaxCurrentStreak(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get streaks", err)
		return
	}
	longestStreak, err := h.Store.MaxLongestStreak(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get streaks", err)
		return
	}

	earned, err := h.Store.UserAchievements(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get unlocks", err)
		return
	}
	defs, err := h.Store.AchievementDefinitions(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get achievements", err)
		return
	}

	summary := SummaryDTO{
		Wallet:             toWalletDTO(wallet),
		Skills:             make([]SkillDTO, len(userSkills)),
		CurrentStreak:      currentStreak,
		LongestStreak:      longestStreak,
		AchievementsEarned: len(earned),
		AchievementsTotal:  len(defs),
	}
	for i, us := range userSkills {
		summary.Skills[i] = SkillDTO{
			SkillID:      string(us.SkillID),
			CurrentStars: us.CurrentStars,
			CurrentLevel: us.CurrentLevel,
		}
	}

	if teaser, err := h.Evaluator.NextTeaser(ctx, userID); err == nil && teaser != nil {
		summary.NextAchievement = &TeaserDTO{
			Achievement: toAchievementDTO(teaser.Achievement),
			Progress:    teaser.Progress,
			ProgressMax: teaser.ProgressMax,
			Label:       teaser.Label,
		}
	}

	writeJSON(w, http.StatusOK, summary)
}

// =============================================================================
// CATALOG (admin)
// =============================================================================

// ListAchievementDefinitions returns the raw catalog, hidden entries included.
// GET /api/achievements
func (h *Handler) ListAchievementDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := h.Store.AchievementDefinitions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list achievements", err)
		return
	}

	dtos := make([]AchievementDTO, len(defs))
	for i, def := range defs {
		dtos[i] = toAchievementDTO(def)
	}

	writeJSON(w, http.StatusOK, dtos)
}

// SaveAchievementDefinition creates or replaces a catalog entry. The
// condition is validated here so a malformed definition is rejected instead
// of silently skipped by the evaluator later.
// POST /api/achievements
func (h *Handler) SaveAchievementDefinition(w http.ResponseWriter, r *http.Request) {
	var req SaveAchievementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	cond, err := progression.ParseCondition(req.Condition.Kind, req.Condition.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid condition", err)
		return
	}

	def := progression.AchievementDefinition{
		ID:               req.ID,
		Name:             req.Name,
		Description:      req.Description,
		Category:         req.Category,
		Icon:             req.Icon,
		Condition:        cond,
		RewardCoins:      req.RewardCoins,
		RewardXP:         req.RewardXP,
		RewardSkillStars: req.RewardSkillStars,
		RewardSkillID:    progression.SkillID(req.RewardSkillID),
		IsHidden:         req.IsHidden,
		SortOrder:        req.SortOrder,
		CreatedAt:        time.Now().UTC(),
	}

	if err := h.Store.SaveAchievementDefinition(r.Context(), def); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save achievement", err)
		return
	}

	writeJSON(w, http.StatusCreated, toAchievementDTO(def))
}

// ListSkillDefinitions returns the skill catalog.
// GET /api/skills
func (h *Handler) ListSkillDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := h.Store.SkillDefinitions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list skills", err)
		return
	}

	dtos := make([]SkillDefinitionDTO, len(defs))
	for i, def := range defs {
		dtos[i] = SkillDefinitionDTO{
			ID:            string(def.ID),
			Name:          def.Name,
			Description:   def.Description,
			Category:      def.Category,
			MaxLevel:      def.MaxLevel,
			StarsPerLevel: def.StarsPerLevel,
			SortOrder:     def.SortOrder,
		}
	}

	writeJSON(w, http.StatusOK, dtos)
}

// SaveSkillDefinition creates or replaces a skill catalog entry.
// POST /api/skills
func (h *Handler) SaveSkillDefinition(w http.ResponseWriter, r *http.Request) {
	var req SaveSkillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}
	if req.StarsPerLevel < 0 || req.MaxLevel < 0 {
		writeError(w, http.StatusBadRequest, "stars_per_level and max_level must be non-negative", nil)
		return
	}

	def := progression.SkillDefinition{
		ID:            progression.SkillID(req.ID),
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		MaxLevel:      req.MaxLevel,
		StarsPerLevel: req.StarsPerLevel,
		SortOrder:     req.SortOrder,
		CreatedAt:     time.Now().UTC(),
	}

	if err := h.Store.SaveSkillDefinition(r.Context(), def); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save skill", err)
		return
	}

	writeJSON(w, http.StatusCreated, SkillDefinitionDTO{
		ID:            string(def.ID),
		Name:          def.Name,
		Description:   def.Description,
		Category:      def.Category,
		MaxLevel:      def.MaxLevel,
		StarsPerLevel: def.StarsPerLevel,
		SortOrder:     def.SortOrder,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, progression.ErrInsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	case progression.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
