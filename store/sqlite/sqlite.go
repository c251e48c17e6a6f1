/*
Package sqlite provides the SQLite-backed implementation of progression.TxStore.

PURPOSE:
  Persists the engine's state (wallets, ledger, skills, streaks, achievement
  catalog, unlocks, activity events) in a single SQLite database. In
  production the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

APPEND-ONLY ENFORCEMENT:
  The ledger, user achievement and activity event tables are insert-only:
  - No UPDATE statements exist for them
  - No DELETE statements exist for them (outside of Reset, a test helper)

KEY TABLES:
  points_ledger:           Immutable record of every currency movement
  user_wallet:             Materialized balance projection (one row per user)
  user_skills:             Per-(user, skill) star totals
  skill_definitions:       Admin-managed skill catalog
  user_streaks:            Per-(user, type) consecutive-day counters
  achievement_definitions: Admin-managed achievement catalog
  user_achievements:       Unlock records
  activity_events:         Append-only domain event log

INDEXES:
  - idx_ledger_source (UNIQUE, partial): the idempotency backstop on
    (user_id, currency, source_type, source_id) for sourced entries
  - idx_ledger_user_currency: conservation sums and history reads (hot path)
  - idx_events_user_type: count-condition evaluation (hot path)

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  whole transaction so the idempotency lookup and the insert cannot be
  separated by a concurrent writer. With PostgreSQL, database-level
  concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

USAGE:
  store, err := sqlite.New("./data/progression.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := &progression.Ledger{Store: store, Curve: progression.DefaultCurve()}

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - progression/store.go: Interface definition and append-only contract
  - progression/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/progression-engine/progression"
)

// Store implements progression.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Wallet projection (one row per user)
	CREATE TABLE IF NOT EXISTS user_wallet (
		user_id TEXT PRIMARY KEY,
		coins INTEGER NOT NULL DEFAULT 0,
		xp INTEGER NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 1,
		xp_to_next_level INTEGER NOT NULL DEFAULT 0,
		total_skill_stars INTEGER NOT NULL DEFAULT 0,
		total_earned INTEGER NOT NULL DEFAULT 0,
		total_spent INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Ledger (append-only)
	CREATE TABLE IF NOT EXISTS points_ledger (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		amount INTEGER NOT NULL,
		reason TEXT,
		source_type TEXT,
		source_id TEXT,
		skill_id TEXT,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: the idempotency backstop. At most one sourced entry per
	-- (user, currency, sourceType, sourceID); unsourced entries (NULL
	-- source) are exempt.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_source
		ON points_ledger(user_id, currency, source_type, source_id)
		WHERE source_type IS NOT NULL AND source_id IS NOT NULL;

	-- Conservation sums and history reads (hot path)
	CREATE INDEX IF NOT EXISTS idx_ledger_user_currency
		ON points_ledger(user_id, currency, created_at);

	-- Per-skill star totals
	CREATE TABLE IF NOT EXISTS user_skills (
		user_id TEXT NOT NULL,
		skill_id TEXT NOT NULL,
		current_stars INTEGER NOT NULL DEFAULT 0,
		current_level INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, skill_id)
	);

	-- Skill catalog
	CREATE TABLE IF NOT EXISTS skill_definitions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		category TEXT,
		max_level INTEGER NOT NULL DEFAULT 0,
		stars_per_level INTEGER NOT NULL DEFAULT 0,
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- Streak counters
	CREATE TABLE IF NOT EXISTS user_streaks (
		user_id TEXT NOT NULL,
		streak_type TEXT NOT NULL,
		current_streak INTEGER NOT NULL DEFAULT 0,
		longest_streak INTEGER NOT NULL DEFAULT 0,
		last_activity_date TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, streak_type)
	);

	-- Achievement catalog. condition_params is JSON, parsed at load time.
	CREATE TABLE IF NOT EXISTS achievement_definitions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		category TEXT,
		icon TEXT,
		condition_kind TEXT NOT NULL,
		condition_params TEXT NOT NULL,
		reward_coins INTEGER NOT NULL DEFAULT 0,
		reward_xp INTEGER NOT NULL DEFAULT 0,
		reward_skill_stars INTEGER NOT NULL DEFAULT 0,
		reward_skill_id TEXT,
		is_hidden BOOLEAN NOT NULL DEFAULT FALSE,
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- Unlock records (append-only)
	CREATE TABLE IF NOT EXISTS user_achievements (
		user_id TEXT NOT NULL,
		achievement_id TEXT NOT NULL,
		earned_at TEXT NOT NULL,
		notified BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (user_id, achievement_id)
	);

	-- Domain event log (append-only)
	CREATE TABLE IF NOT EXISTS activity_events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		entity_type TEXT,
		entity_id TEXT,
		xp_earned INTEGER NOT NULL DEFAULT 0,
		coins_earned INTEGER NOT NULL DEFAULT 0,
		metadata_json TEXT,
		created_at TEXT NOT NULL
	);

	-- Count-condition evaluation (hot path)
	CREATE INDEX IF NOT EXISTS idx_events_user_type
		ON activity_events(user_id, event_type);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is the subset of *sql.DB / *sql.Tx the queries need, so every
// statement can run either directly or inside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// WALLETS
// =============================================================================

func (s *Store) GetWallet(ctx context.Context, userID progression.UserID) (*progression.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getWallet(ctx, s.db, userID)
}

func getWallet(ctx context.Context, db dbtx, userID progression.UserID) (*progression.Wallet, error) {
	var w progression.Wallet
	var createdAt, updatedAt string

	err := db.QueryRowContext(ctx,
		`SELECT user_id, coins, xp, level, xp_to_next_level, total_skill_stars,
		        total_earned, total_spent, created_at, updated_at
		 FROM user_wallet WHERE user_id = ?`,
		userID,
	).Scan(&w.UserID, &w.Coins, &w.XP, &w.Level, &w.XPToNextLevel, &w.TotalSkillStars,
		&w.TotalEarned, &w.TotalSpent, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	w.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	w.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &w, nil
}

func (s *Store) SaveWallet(ctx context.Context, w progression.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveWallet(ctx, s.db, w)
}

func saveWallet(ctx context.Context, db dbtx, w progression.Wallet) error {
	query := `
		INSERT INTO user_wallet
		(user_id, coins, xp, level, xp_to_next_level, total_skill_stars,
		 total_earned, total_spent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			coins = excluded.coins,
			xp = excluded.xp,
			level = excluded.level,
			xp_to_next_level = excluded.xp_to_next_level,
			total_skill_stars = excluded.total_skill_stars,
			total_earned = excluded.total_earned,
			total_spent = excluded.total_spent,
			updated_at = excluded.updated_at
	`

	_, err := db.ExecContext(ctx, query,
		w.UserID, w.Coins, w.XP, w.Level, w.XPToNextLevel, w.TotalSkillStars,
		w.TotalEarned, w.TotalSpent,
		w.CreatedAt.Format(time.RFC3339),
		w.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

// =============================================================================
// LEDGER (append-only)
// =============================================================================

func (s *Store) AppendEntry(ctx context.Context, e progression.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEntry(ctx, s.db, e)
}

func appendEntry(ctx context.Context, db dbtx, e progression.LedgerEntry) error {
	query := `
		INSERT INTO points_ledger
		(id, user_id, currency, amount, reason, source_type, source_id, skill_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		e.ID, e.UserID, e.Currency, e.Amount, e.Reason,
		nullString(e.SourceType), nullString(e.SourceID), nullString(string(e.SkillID)),
		e.CreatedAt.Format(time.RFC3339),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return progression.ErrDuplicateSourceKey
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	return nil
}

func (s *Store) FindEntryBySource(ctx context.Context, userID progression.UserID, c progression.Currency, sourceType, sourceID string) (*progression.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findEntryBySource(ctx, s.db, userID, c, sourceType, sourceID)
}

func findEntryBySource(ctx context.Context, db dbtx, userID progression.UserID, c progression.Currency, sourceType, sourceID string) (*progression.LedgerEntry, error) {
	query := `
		SELECT id, user_id, currency, amount, reason, source_type, source_id, skill_id, created_at
		FROM points_ledger
		WHERE user_id = ? AND currency = ? AND source_type = ? AND source_id = ?
	`

	found, err := queryEntries(ctx, db, query, userID, c, sourceType, sourceID)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (s *Store) Entries(ctx context.Context, userID progression.UserID, c progression.Currency) ([]progression.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entries(ctx, s.db, userID, c)
}

func entries(ctx context.Context, db dbtx, userID progression.UserID, c progression.Currency) ([]progression.LedgerEntry, error) {
	query := `
		SELECT id, user_id, currency, amount, reason, source_type, source_id, skill_id, created_at
		FROM points_ledger
		WHERE user_id = ? AND currency = ?
		ORDER BY created_at ASC, id ASC
	`

	return queryEntries(ctx, db, query, userID, c)
}

func queryEntries(ctx context.Context, db dbtx, query string, args ...any) ([]progression.LedgerEntry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var out []progression.LedgerEntry
	for rows.Next() {
		var e progression.LedgerEntry
		var reason, sourceType, sourceID, skillID sql.NullString
		var createdAt string

		if err := rows.Scan(&e.ID, &e.UserID, &e.Currency, &e.Amount,
			&reason, &sourceType, &sourceID, &skillID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}

		e.Reason = reason.String
		e.SourceType = sourceType.String
		e.SourceID = sourceID.String
		e.SkillID = progression.SkillID(skillID.String)
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, e)
	}

	return out, rows.Err()
}

// =============================================================================
// SKILLS
// =============================================================================

func (s *Store) GetSkill(ctx context.Context, userID progression.UserID, skillID progression.SkillID) (*progression.UserSkill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSkill(ctx, s.db, userID, skillID)
}

func getSkill(ctx context.Context, db dbtx, userID progression.UserID, skillID progression.SkillID) (*progression.UserSkill, error) {
	var us progression.UserSkill
	var createdAt, updatedAt string

	err := db.QueryRowContext(ctx,
		`SELECT user_id, skill_id, current_stars, current_level, created_at, updated_at
		 FROM user_skills WHERE user_id = ? AND skill_id = ?`,
		userID, skillID,
	).Scan(&us.UserID, &us.SkillID, &us.CurrentStars, &us.CurrentLevel, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	us.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	us.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &us, nil
}

func (s *Store) SaveSkill(ctx context.Context, us progression.UserSkill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveSkill(ctx, s.db, us)
}

func saveSkill(ctx context.Context, db dbtx, us progression.UserSkill) error {
	query := `
		INSERT INTO user_skills (user_id, skill_id, current_stars, current_level, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, skill_id) DO UPDATE SET
			current_stars = excluded.current_stars,
			current_level = excluded.current_level,
			updated_at = excluded.updated_at
	`

	_, err := db.ExecContext(ctx, query,
		us.UserID, us.SkillID, us.CurrentStars, us.CurrentLevel,
		us.CreatedAt.Format(time.RFC3339),
		us.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) Skills(ctx context.Context, userID progression.UserID) ([]progression.UserSkill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return skills(ctx, s.db, userID)
}

func skills(ctx context.Context, db dbtx, userID progression.UserID) ([]progression.UserSkill, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT user_id, skill_id, current_stars, current_level, created_at, updated_at
		 FROM user_skills WHERE user_id = ? ORDER BY skill_id ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []progression.UserSkill
	for rows.Next() {
		var us progression.UserSkill
		var createdAt, updatedAt string
		if err := rows.Scan(&us.UserID, &us.SkillID, &us.CurrentStars, &us.CurrentLevel, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		us.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		us.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, us)
	}
	return out, rows.Err()
}

func (s *Store) GetSkillDefinition(ctx context.Context, skillID progression.SkillID) (*progression.SkillDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSkillDefinition(ctx, s.db, skillID)
}

func getSkillDefinition(ctx context.Context, db dbtx, skillID progression.SkillID) (*progression.SkillDefinition, error) {
	var def progression.SkillDefinition
	var description, category sql.NullString
	var createdAt string

	err := db.QueryRowContext(ctx,
		`SELECT id, name, description, category, max_level, stars_per_level, sort_order, created_at
		 FROM skill_definitions WHERE id = ?`,
		skillID,
	).Scan(&def.ID, &def.Name, &description, &category, &def.MaxLevel, &def.StarsPerLevel, &def.SortOrder, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	def.Description = description.String
	def.Category = category.String
	def.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &def, nil
}

func (s *Store) SaveSkillDefinition(ctx context.Context, def progression.SkillDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveSkillDefinition(ctx, s.db, def)
}

func saveSkillDefinition(ctx context.Context, db dbtx, def progression.SkillDefinition) error {
	query := `
		INSERT INTO skill_definitions
		(id, name, description, category, max_level, stars_per_level, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			category = excluded.category,
			max_level = excluded.max_level,
			stars_per_level = excluded.stars_per_level,
			sort_order = excluded.sort_order
	`

	_, err := db.ExecContext(ctx, query,
		def.ID, def.Name, def.Description, def.Category,
		def.MaxLevel, def.StarsPerLevel, def.SortOrder,
		def.CreatedAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) SkillDefinitions(ctx context.Context) ([]progression.SkillDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return skillDefinitions(ctx, s.db)
}

func skillDefinitions(ctx context.Context, db dbtx) ([]progression.SkillDefinition, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, description, category, max_level, stars_per_level, sort_order, created_at
		 FROM skill_definitions ORDER BY sort_order ASC, id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []progression.SkillDefinition
	for rows.Next() {
		var def progression.SkillDefinition
		var description, category sql.NullString
		var createdAt string
		if err := rows.Scan(&def.ID, &def.Name, &description, &category,
			&def.MaxLevel, &def.StarsPerLevel, &def.SortOrder, &createdAt); err != nil {
			return nil, err
		}
		def.Description = description.String
		def.Category = category.String
		def.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, def)
	}
	return out, rows.Err()
}

// =============================================================================
// STREAKS
// =============================================================================

func (s *Store) GetStreak(ctx context.Context, userID progression.UserID, streakType string) (*progression.UserStreak, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getStreak(ctx, s.db, userID, streakType)
}

func getStreak(ctx context.Context, db dbtx, userID progression.UserID, streakType string) (*progression.UserStreak, error) {
	var st progression.UserStreak
	var lastActivity sql.NullString
	var createdAt, updatedAt string

	err := db.QueryRowContext(ctx,
		`SELECT user_id, streak_type, current_streak, longest_streak, last_activity_date, created_at, updated_at
		 FROM user_streaks WHERE user_id = ? AND streak_type = ?`,
		userID, streakType,
	).Scan(&st.UserID, &st.StreakType, &st.CurrentStreak, &st.LongestStreak, &lastActivity, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	st.LastActivityDate = lastActivity.String
	st.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	st.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &st, nil
}

func (s *Store) SaveStreak(ctx context.Context, st progression.UserStreak) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveStreak(ctx, s.db, st)
}

func saveStreak(ctx context.Context, db dbtx, st progression.UserStreak) error {
	query := `
		INSERT INTO user_streaks
		(user_id, streak_type, current_streak, longest_streak, last_activity_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, streak_type) DO UPDATE SET
			current_streak = excluded.current_streak,
			longest_streak = excluded.longest_streak,
			last_activity_date = excluded.last_activity_date,
			updated_at = excluded.updated_at
	`

	_, err := db.ExecContext(ctx, query,
		st.UserID, st.StreakType, st.CurrentStreak, st.LongestStreak,
		nullString(st.LastActivityDate),
		st.CreatedAt.Format(time.RFC3339),
		st.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) MaxCurrentStreak(ctx context.Context, userID progression.UserID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maxStreak(ctx, s.db, userID, "current_streak")
}

func (s *Store) MaxLongestStreak(ctx context.Context, userID progression.UserID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maxStreak(ctx, s.db, userID, "longest_streak")
}

// maxStreak's column is one of two fixed identifiers, never user input.
func maxStreak(ctx context.Context, db dbtx, userID progression.UserID, column string) (int, error) {
	var max sql.NullInt64
	err := db.QueryRowContext(ctx,
		"SELECT MAX("+column+") FROM user_streaks WHERE user_id = ?",
		userID,
	).Scan(&max)
	if err != nil {
		return 0, err
	}
	return int(max.Int64), nil
}

// =============================================================================
// ACHIEVEMENT CATALOG & UNLOCKS
// =============================================================================

func (s *Store) AchievementDefinitions(ctx context.Context) ([]progression.AchievementDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return achievementDefinitions(ctx, s.db)
}

func achievementDefinitions(ctx context.Context, db dbtx) ([]progression.AchievementDefinition, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, description, category, icon, condition_kind, condition_params,
		        reward_coins, reward_xp, reward_skill_stars, reward_skill_id,
		        is_hidden, sort_order, created_at
		 FROM achievement_definitions
		 ORDER BY sort_order ASC, id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []progression.AchievementDefinition
	for rows.Next() {
		var def progression.AchievementDefinition
		var description, category, icon, rewardSkillID sql.NullString
		var kind, params, createdAt string

		if err := rows.Scan(&def.ID, &def.Name, &description, &category, &icon,
			&kind, &params,
			&def.RewardCoins, &def.RewardXP, &def.RewardSkillStars, &rewardSkillID,
			&def.IsHidden, &def.SortOrder, &createdAt); err != nil {
			return nil, err
		}

		def.Description = description.String
		def.Category = category.String
		def.Icon = icon.String
		def.RewardSkillID = progression.SkillID(rewardSkillID.String)
		def.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

		// A malformed row loads with a nil condition; the evaluator skips
		// and logs it rather than failing the whole catalog.
		if cond, err := progression.ParseCondition(kind, []byte(params)); err == nil {
			def.Condition = cond
		}

		out = append(out, def)
	}
	return out, rows.Err()
}

func (s *Store) SaveAchievementDefinition(ctx context.Context, def progression.AchievementDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveAchievementDefinition(ctx, s.db, def)
}

func saveAchievementDefinition(ctx context.Context, db dbtx, def progression.AchievementDefinition) error {
	kind, params, err := progression.EncodeCondition(def.Condition)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO achievement_definitions
		(id, name, description, category, icon, condition_kind, condition_params,
		 reward_coins, reward_xp, reward_skill_stars, reward_skill_id,
		 is_hidden, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			category = excluded.category,
			icon = excluded.icon,
			condition_kind = excluded.condition_kind,
			condition_params = excluded.condition_params,
			reward_coins = excluded.reward_coins,
			reward_xp = excluded.reward_xp,
			reward_skill_stars = excluded.reward_skill_stars,
			reward_skill_id = excluded.reward_skill_id,
			is_hidden = excluded.is_hidden,
			sort_order = excluded.sort_order
	`

	_, err = db.ExecContext(ctx, query,
		def.ID, def.Name, def.Description, def.Category, def.Icon,
		kind, string(params),
		def.RewardCoins, def.RewardXP, def.RewardSkillStars,
		nullString(string(def.RewardSkillID)),
		def.IsHidden, def.SortOrder,
		def.CreatedAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) HasAchievement(ctx context.Context, userID progression.UserID, achievementID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return hasAchievement(ctx, s.db, userID, achievementID)
}

func hasAchievement(ctx context.Context, db dbtx, userID progression.UserID, achievementID string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM user_achievements WHERE user_id = ? AND achievement_id = ?",
		userID, achievementID,
	).Scan(&count)
	return count > 0, err
}

func (s *Store) InsertUserAchievement(ctx context.Context, ua progression.UserAchievement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertUserAchievement(ctx, s.db, ua)
}

func insertUserAchievement(ctx context.Context, db dbtx, ua progression.UserAchievement) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO user_achievements (user_id, achievement_id, earned_at, notified)
		 VALUES (?, ?, ?, ?)`,
		ua.UserID, ua.AchievementID, ua.EarnedAt.Format(time.RFC3339), ua.Notified,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return progression.ErrDuplicateSourceKey
		}
		return fmt.Errorf("failed to insert user achievement: %w", err)
	}
	return nil
}

func (s *Store) UserAchievements(ctx context.Context, userID progression.UserID) ([]progression.UserAchievement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return userAchievements(ctx, s.db, userID)
}

func userAchievements(ctx context.Context, db dbtx, userID progression.UserID) ([]progression.UserAchievement, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT user_id, achievement_id, earned_at, notified
		 FROM user_achievements WHERE user_id = ? ORDER BY earned_at ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []progression.UserAchievement
	for rows.Next() {
		var ua progression.UserAchievement
		var earnedAt string
		if err := rows.Scan(&ua.UserID, &ua.AchievementID, &earnedAt, &ua.Notified); err != nil {
			return nil, err
		}
		ua.EarnedAt, _ = time.Parse(time.RFC3339, earnedAt)
		out = append(out, ua)
	}
	return out, rows.Err()
}

// =============================================================================
// ACTIVITY EVENTS (append-only)
// =============================================================================

func (s *Store) AppendActivityEvent(ctx context.Context, ev progression.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendActivityEvent(ctx, s.db, ev)
}

func appendActivityEvent(ctx context.Context, db dbtx, ev progression.ActivityEvent) error {
	metadataJSON, _ := json.Marshal(ev.Metadata)

	_, err := db.ExecContext(ctx,
		`INSERT INTO activity_events
		 (id, user_id, event_type, entity_type, entity_id, xp_earned, coins_earned, metadata_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.UserID, ev.EventType,
		nullString(ev.EntityType), nullString(ev.EntityID),
		ev.XPEarned, ev.CoinsEarned,
		string(metadataJSON),
		ev.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append activity event: %w", err)
	}
	return nil
}

func (s *Store) CountActivityEvents(ctx context.Context, userID progression.UserID, eventType string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countActivityEvents(ctx, s.db, userID, eventType)
}

func countActivityEvents(ctx context.Context, db dbtx, userID progression.UserID, eventType string) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM activity_events WHERE user_id = ? AND event_type = ?",
		userID, eventType,
	).Scan(&count)
	return count, err
}

func (s *Store) ActivityEvents(ctx context.Context, userID progression.UserID, limit int) ([]progression.ActivityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activityEvents(ctx, s.db, userID, limit)
}

func activityEvents(ctx context.Context, db dbtx, userID progression.UserID, limit int) ([]progression.ActivityEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, user_id, event_type, entity_type, entity_id, xp_earned, coins_earned, metadata_json, created_at
		 FROM activity_events WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []progression.ActivityEvent
	for rows.Next() {
		var ev progression.ActivityEvent
		var entityType, entityID, metadataJSON sql.NullString
		var createdAt string

		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.EventType, &entityType, &entityID,
			&ev.XPEarned, &ev.CoinsEarned, &metadataJSON, &createdAt); err != nil {
			return nil, err
		}

		ev.EntityType = entityType.String
		ev.EntityID = entityID.String
		ev.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if metadataJSON.Valid && metadataJSON.String != "" {
			json.Unmarshal([]byte(metadataJSON.String), &ev.Metadata)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTIONS (progression.TxStore interface)
// =============================================================================

// WithTx executes fn against a transaction-scoped store. The write lock is
// held for the whole transaction so the engine's read-then-write sequences
// are serialized.
func (s *Store) WithTx(ctx context.Context, fn func(progression.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes every Store method through the open *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetWallet(ctx context.Context, userID progression.UserID) (*progression.Wallet, error) {
	return getWallet(ctx, ts.tx, userID)
}

func (ts *txStore) SaveWallet(ctx context.Context, w progression.Wallet) error {
	return saveWallet(ctx, ts.tx, w)
}

func (ts *txStore) AppendEntry(ctx context.Context, e progression.LedgerEntry) error {
	return appendEntry(ctx, ts.tx, e)
}

func (ts *txStore) FindEntryBySource(ctx context.Context, userID progression.UserID, c progression.Currency, sourceType, sourceID string) (*progression.LedgerEntry, error) {
	return findEntryBySource(ctx, ts.tx, userID, c, sourceType, sourceID)
}

func (ts *txStore) Entries(ctx context.Context, userID progression.UserID, c progression.Currency) ([]progression.LedgerEntry, error) {
	return entries(ctx, ts.tx, userID, c)
}

func (ts *txStore) GetSkill(ctx context.Context, userID progression.UserID, skillID progression.SkillID) (*progression.UserSkill, error) {
	return getSkill(ctx, ts.tx, userID, skillID)
}

func (ts *txStore) SaveSkill(ctx context.Context, us progression.UserSkill) error {
	return saveSkill(ctx, ts.tx, us)
}

func (ts *txStore) Skills(ctx context.Context, userID progression.UserID) ([]progression.UserSkill, error) {
	return skills(ctx, ts.tx, userID)
}

func (ts *txStore) GetSkillDefinition(ctx context.Context, skillID progression.SkillID) (*progression.SkillDefinition, error) {
	return getSkillDefinition(ctx, ts.tx, skillID)
}

func (ts *txStore) SaveSkillDefinition(ctx context.Context, def progression.SkillDefinition) error {
	return saveSkillDefinition(ctx, ts.tx, def)
}

func (ts *txStore) SkillDefinitions(ctx context.Context) ([]progression.SkillDefinition, error) {
	return skillDefinitions(ctx, ts.tx)
}

func (ts *txStore) GetStreak(ctx context.Context, userID progression.UserID, streakType string) (*progression.UserStreak, error) {
	return getStreak(ctx, ts.tx, userID, streakType)
}

func (ts *txStore) SaveStreak(ctx context.Context, st progression.UserStreak) error {
	return saveStreak(ctx, ts.tx, st)
}

func (ts *txStore) MaxCurrentStreak(ctx context.Context, userID progression.UserID) (int, error) {
	return maxStreak(ctx, ts.tx, userID, "current_streak")
}

func (ts *txStore) MaxLongestStreak(ctx context.Context, userID progression.UserID) (int, error) {
	return maxStreak(ctx, ts.tx, userID, "longest_streak")
}

func (ts *txStore) AchievementDefinitions(ctx context.Context) ([]progression.AchievementDefinition, error) {
	return achievementDefinitions(ctx, ts.tx)
}

func (ts *txStore) SaveAchievementDefinition(ctx context.Context, def progression.AchievementDefinition) error {
	return saveAchievementDefinition(ctx, ts.tx, def)
}

func (ts *txStore) HasAchievement(ctx context.Context, userID progression.UserID, achievementID string) (bool, error) {
	return hasAchievement(ctx, ts.tx, userID, achievementID)
}

func (ts *txStore) InsertUserAchievement(ctx context.Context, ua progression.UserAchievement) error {
	return insertUserAchievement(ctx, ts.tx, ua)
}

func (ts *txStore) UserAchievements(ctx context.Context, userID progression.UserID) ([]progression.UserAchievement, error) {
	return userAchievements(ctx, ts.tx, userID)
}

func (ts *txStore) AppendActivityEvent(ctx context.Context, ev progression.ActivityEvent) error {
	return appendActivityEvent(ctx, ts.tx, ev)
}

func (ts *txStore) CountActivityEvents(ctx context.Context, userID progression.UserID, eventType string) (int64, error) {
	return countActivityEvents(ctx, ts.tx, userID, eventType)
}

func (ts *txStore) ActivityEvents(ctx context.Context, userID progression.UserID, limit int) ([]progression.ActivityEvent, error) {
	return activityEvents(ctx, ts.tx, userID, limit)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"points_ledger", "user_wallet", "user_skills", "skill_definitions",
		"user_streaks", "achievement_definitions", "user_achievements", "activity_events",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
