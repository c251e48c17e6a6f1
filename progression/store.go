/*
store.go - Persistence interface for the progression engine

PURPOSE:
  Defines the interface between the engine and the database. Append-only
  tables (ledger, user achievements, activity events) expose insert and
  read operations only; mutable per-user rows (wallet, skills, streaks)
  are upserted whole inside a transaction.

APPEND-ONLY CONTRACT:
  - AppendEntry / InsertUserAchievement / AppendActivityEvent: insert only,
    NO Update() or Delete() methods exist for these tables.
  - AppendEntry returns ErrDuplicateSourceKey when the idempotency tuple
    (user, currency, sourceType, sourceID) already exists.

ATOMICITY:
  TxStore.WithTx executes a function against a transaction-scoped Store.
  Every award, spend, streak touch and dispatcher invocation runs inside
  one WithTx so that the idempotency lookup and the balance update cannot
  be separated by a concurrent writer. Reads (GetWallet, teaser) may use
  the Store directly.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store
  - progression/store: in-memory store for tests

SEE ALSO:
  - ledger.go: Award/spend on top of this interface
  - dispatcher.go: One WithTx per domain event
*/
package progression

import "context"

// Store is the full persistence surface. Implementations scope the methods
// to a transaction when obtained through TxStore.WithTx.
type Store interface {
	// Wallets (one row per user, lazily created by the engine).
	GetWallet(ctx context.Context, userID UserID) (*Wallet, error)
	SaveWallet(ctx context.Context, w Wallet) error

	// Ledger (append-only).
	AppendEntry(ctx context.Context, e LedgerEntry) error
	FindEntryBySource(ctx context.Context, userID UserID, c Currency, sourceType, sourceID string) (*LedgerEntry, error)
	Entries(ctx context.Context, userID UserID, c Currency) ([]LedgerEntry, error)

	// Skills.
	GetSkill(ctx context.Context, userID UserID, skillID SkillID) (*UserSkill, error)
	SaveSkill(ctx context.Context, s UserSkill) error
	Skills(ctx context.Context, userID UserID) ([]UserSkill, error)
	GetSkillDefinition(ctx context.Context, skillID SkillID) (*SkillDefinition, error)
	SaveSkillDefinition(ctx context.Context, def SkillDefinition) error
	SkillDefinitions(ctx context.Context) ([]SkillDefinition, error)

	// Streaks.
	GetStreak(ctx context.Context, userID UserID, streakType string) (*UserStreak, error)
	SaveStreak(ctx context.Context, s UserStreak) error
	MaxCurrentStreak(ctx context.Context, userID UserID) (int, error)
	MaxLongestStreak(ctx context.Context, userID UserID) (int, error)

	// Achievement catalog (admin-managed, read-only from the engine).
	AchievementDefinitions(ctx context.Context) ([]AchievementDefinition, error)
	SaveAchievementDefinition(ctx context.Context, def AchievementDefinition) error

	// Unlock records (append-only).
	HasAchievement(ctx context.Context, userID UserID, achievementID string) (bool, error)
	InsertUserAchievement(ctx context.Context, ua UserAchievement) error
	UserAchievements(ctx context.Context, userID UserID) ([]UserAchievement, error)

	// Activity events (append-only).
	AppendActivityEvent(ctx context.Context, ev ActivityEvent) error
	CountActivityEvents(ctx context.Context, userID UserID, eventType string) (int64, error)
	ActivityEvents(ctx context.Context, userID UserID, limit int) ([]ActivityEvent, error)
}

// TxStore wraps Store with transaction support.
// If fn returns an error the transaction is rolled back, otherwise committed.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
