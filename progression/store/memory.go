// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/progression-engine/progression"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type sourceKey struct {
	UserID     progression.UserID
	Currency   progression.Currency
	SourceType string
	SourceID   string
}

type skillKey struct {
	UserID  progression.UserID
	SkillID progression.SkillID
}

type streakKey struct {
	UserID     progression.UserID
	StreakType string
}

type unlockKey struct {
	UserID        progression.UserID
	AchievementID string
}

type Memory struct {
	mu        sync.RWMutex
	wallets   map[progression.UserID]progression.Wallet
	entries   []progression.LedgerEntry
	sources   map[sourceKey]int // index into entries
	skills    map[skillKey]progression.UserSkill
	skillDefs map[progression.SkillID]progression.SkillDefinition
	streaks   map[streakKey]progression.UserStreak
	achDefs   map[string]progression.AchievementDefinition
	unlocks   map[unlockKey]progression.UserAchievement
	events    []progression.ActivityEvent
}

func NewMemory() *Memory {
	return &Memory{
		wallets:   make(map[progression.UserID]progression.Wallet),
		sources:   make(map[sourceKey]int),
		skills:    make(map[skillKey]progression.UserSkill),
		skillDefs: make(map[progression.SkillID]progression.SkillDefinition),
		streaks:   make(map[streakKey]progression.UserStreak),
		achDefs:   make(map[string]progression.AchievementDefinition),
		unlocks:   make(map[unlockKey]progression.UserAchievement),
	}
}

// Reset wipes all data. Used by the demo scenario loader.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets = make(map[progression.UserID]progression.Wallet)
	m.entries = nil
	m.sources = make(map[sourceKey]int)
	m.skills = make(map[skillKey]progression.UserSkill)
	m.skillDefs = make(map[progression.SkillID]progression.SkillDefinition)
	m.streaks = make(map[streakKey]progression.UserStreak)
	m.achDefs = make(map[string]progression.AchievementDefinition)
	m.unlocks = make(map[unlockKey]progression.UserAchievement)
	m.events = nil
	return nil
}

// -----------------------------------------------------------------------------
// Wallets
// -----------------------------------------------------------------------------

func (m *Memory) GetWallet(_ context.Context, userID progression.UserID) (*progression.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getWalletLocked(userID), nil
}

func (m *Memory) getWalletLocked(userID progression.UserID) *progression.Wallet {
	if w, ok := m.wallets[userID]; ok {
		cp := w
		return &cp
	}
	return nil
}

func (m *Memory) SaveWallet(_ context.Context, w progression.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[w.UserID] = w
	return nil
}

// -----------------------------------------------------------------------------
// Ledger (append-only)
// -----------------------------------------------------------------------------

func (m *Memory) AppendEntry(_ context.Context, e progression.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendEntryLocked(e)
}

func (m *Memory) appendEntryLocked(e progression.LedgerEntry) error {
	if e.HasSource() {
		k := sourceKey{e.UserID, e.Currency, e.SourceType, e.SourceID}
		if _, exists := m.sources[k]; exists {
			return progression.ErrDuplicateSourceKey
		}
		m.sources[k] = len(m.entries)
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *Memory) FindEntryBySource(_ context.Context, userID progression.UserID, c progression.Currency, sourceType, sourceID string) (*progression.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findEntryLocked(userID, c, sourceType, sourceID), nil
}

func (m *Memory) findEntryLocked(userID progression.UserID, c progression.Currency, sourceType, sourceID string) *progression.LedgerEntry {
	if i, ok := m.sources[sourceKey{userID, c, sourceType, sourceID}]; ok {
		cp := m.entries[i]
		return &cp
	}
	return nil
}

func (m *Memory) Entries(_ context.Context, userID progression.UserID, c progression.Currency) ([]progression.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entriesLocked(userID, c), nil
}

func (m *Memory) entriesLocked(userID progression.UserID, c progression.Currency) []progression.LedgerEntry {
	var out []progression.LedgerEntry
	for _, e := range m.entries {
		if e.UserID == userID && e.Currency == c {
			out = append(out, e)
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Skills
// -----------------------------------------------------------------------------

func (m *Memory) GetSkill(_ context.Context, userID progression.UserID, skillID progression.SkillID) (*progression.UserSkill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.skills[skillKey{userID, skillID}]; ok {
		cp := s
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) SaveSkill(_ context.Context, s progression.UserSkill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skills[skillKey{s.UserID, s.SkillID}] = s
	return nil
}

func (m *Memory) Skills(_ context.Context, userID progression.UserID) ([]progression.UserSkill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []progression.UserSkill
	for k, s := range m.skills {
		if k.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SkillID < out[j].SkillID })
	return out, nil
}

func (m *Memory) GetSkillDefinition(_ context.Context, skillID progression.SkillID) (*progression.SkillDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.skillDefs[skillID]; ok {
		cp := d
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) SaveSkillDefinition(_ context.Context, def progression.SkillDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skillDefs[def.ID] = def
	return nil
}

func (m *Memory) SkillDefinitions(_ context.Context) ([]progression.SkillDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]progression.SkillDefinition, 0, len(m.skillDefs))
	for _, d := range m.skillDefs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// -----------------------------------------------------------------------------
// Streaks
// -----------------------------------------------------------------------------

func (m *Memory) GetStreak(_ context.Context, userID progression.UserID, streakType string) (*progression.UserStreak, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.streaks[streakKey{userID, streakType}]; ok {
		cp := s
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) SaveStreak(_ context.Context, s progression.UserStreak) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streaks[streakKey{s.UserID, s.StreakType}] = s
	return nil
}

func (m *Memory) MaxCurrentStreak(_ context.Context, userID progression.UserID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	max := 0
	for k, s := range m.streaks {
		if k.UserID == userID && s.CurrentStreak > max {
			max = s.CurrentStreak
		}
	}
	return max, nil
}

func (m *Memory) MaxLongestStreak(_ context.Context, userID progression.UserID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	max := 0
	for k, s := range m.streaks {
		if k.UserID == userID && s.LongestStreak > max {
			max = s.LongestStreak
		}
	}
	return max, nil
}

// -----------------------------------------------------------------------------
// Achievement catalog and unlocks
// -----------------------------------------------------------------------------

func (m *Memory) AchievementDefinitions(_ context.Context) ([]progression.AchievementDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]progression.AchievementDefinition, 0, len(m.achDefs))
	for _, d := range m.achDefs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) SaveAchievementDefinition(_ context.Context, def progression.AchievementDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.achDefs[def.ID] = def
	return nil
}

func (m *Memory) HasAchievement(_ context.Context, userID progression.UserID, achievementID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.unlocks[unlockKey{userID, achievementID}]
	return ok, nil
}

func (m *Memory) InsertUserAchievement(_ context.Context, ua progression.UserAchievement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := unlockKey{ua.UserID, ua.AchievementID}
	if _, exists := m.unlocks[k]; exists {
		return progression.ErrDuplicateSourceKey
	}
	m.unlocks[k] = ua
	return nil
}

func (m *Memory) UserAchievements(_ context.Context, userID progression.UserID) ([]progression.UserAchievement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []progression.UserAchievement
	for k, ua := range m.unlocks {
		if k.UserID == userID {
			out = append(out, ua)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EarnedAt.Before(out[j].EarnedAt) })
	return out, nil
}

// -----------------------------------------------------------------------------
// Activity events (append-only)
// -----------------------------------------------------------------------------

func (m *Memory) AppendActivityEvent(_ context.Context, ev progression.ActivityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *Memory) CountActivityEvents(_ context.Context, userID progression.UserID, eventType string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, ev := range m.events {
		if ev.UserID == userID && ev.EventType == eventType {
			n++
		}
	}
	return n, nil
}

func (m *Memory) ActivityEvents(_ context.Context, userID progression.UserID, limit int) ([]progression.ActivityEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []progression.ActivityEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].UserID == userID {
			out = append(out, m.events[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction. For the memory store this is
// simulated with a snapshot + restore on error, holding the write lock for
// the duration so concurrent transactions serialize.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(progression.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snap := tm.snapshot()
	view := &txMemoryView{parent: tm.Memory}
	if err := fn(view); err != nil {
		tm.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	wallets   map[progression.UserID]progression.Wallet
	entries   []progression.LedgerEntry
	sources   map[sourceKey]int
	skills    map[skillKey]progression.UserSkill
	skillDefs map[progression.SkillID]progression.SkillDefinition
	streaks   map[streakKey]progression.UserStreak
	achDefs   map[string]progression.AchievementDefinition
	unlocks   map[unlockKey]progression.UserAchievement
	events    []progression.ActivityEvent
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		wallets:   make(map[progression.UserID]progression.Wallet, len(tm.wallets)),
		entries:   append([]progression.LedgerEntry{}, tm.entries...),
		sources:   make(map[sourceKey]int, len(tm.sources)),
		skills:    make(map[skillKey]progression.UserSkill, len(tm.skills)),
		skillDefs: make(map[progression.SkillID]progression.SkillDefinition, len(tm.skillDefs)),
		streaks:   make(map[streakKey]progression.UserStreak, len(tm.streaks)),
		achDefs:   make(map[string]progression.AchievementDefinition, len(tm.achDefs)),
		unlocks:   make(map[unlockKey]progression.UserAchievement, len(tm.unlocks)),
		events:    append([]progression.ActivityEvent{}, tm.events...),
	}
	for k, v := range tm.wallets {
		s.wallets[k] = v
	}
	for k, v := range tm.sources {
		s.sources[k] = v
	}
	for k, v := range tm.skills {
		s.skills[k] = v
	}
	for k, v := range tm.skillDefs {
		s.skillDefs[k] = v
	}
	for k, v := range tm.streaks {
		s.streaks[k] = v
	}
	for k, v := range tm.achDefs {
		s.achDefs[k] = v
	}
	for k, v := range tm.unlocks {
		s.unlocks[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.wallets = s.wallets
	tm.entries = s.entries
	tm.sources = s.sources
	tm.skills = s.skills
	tm.skillDefs = s.skillDefs
	tm.streaks = s.streaks
	tm.achDefs = s.achDefs
	tm.unlocks = s.unlocks
	tm.events = s.events
}

// txMemoryView operates on the parent maps directly; the WithTx caller holds
// the write lock for the whole transaction.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) GetWallet(_ context.Context, userID progression.UserID) (*progression.Wallet, error) {
	return tv.parent.getWalletLocked(userID), nil
}

func (tv *txMemoryView) SaveWallet(_ context.Context, w progression.Wallet) error {
	tv.parent.wallets[w.UserID] = w
	return nil
}

func (tv *txMemoryView) AppendEntry(_ context.Context, e progression.LedgerEntry) error {
	return tv.parent.appendEntryLocked(e)
}

func (tv *txMemoryView) FindEntryBySource(_ context.Context, userID progression.UserID, c progression.Currency, sourceType, sourceID string) (*progression.LedgerEntry, error) {
	return tv.parent.findEntryLocked(userID, c, sourceType, sourceID), nil
}

func (tv *txMemoryView) Entries(_ context.Context, userID progression.UserID, c progression.Currency) ([]progression.LedgerEntry, error) {
	return tv.parent.entriesLocked(userID, c), nil
}

func (tv *txMemoryView) GetSkill(_ context.Context, userID progression.UserID, skillID progression.SkillID) (*progression.UserSkill, error) {
	if s, ok := tv.parent.skills[skillKey{userID, skillID}]; ok {
		cp := s
		return &cp, nil
	}
	return nil, nil
}

func (tv *txMemoryView) SaveSkill(_ context.Context, s progression.UserSkill) error {
	tv.parent.skills[skillKey{s.UserID, s.SkillID}] = s
	return nil
}

func (tv *txMemoryView) Skills(ctx context.Context, userID progression.UserID) ([]progression.UserSkill, error) {
	var out []progression.UserSkill
	for k, s := range tv.parent.skills {
		if k.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SkillID < out[j].SkillID })
	return out, nil
}

func (tv *txMemoryView) GetSkillDefinition(_ context.Context, skillID progression.SkillID) (*progression.SkillDefinition, error) {
	if d, ok := tv.parent.skillDefs[skillID]; ok {
		cp := d
		return &cp, nil
	}
	return nil, nil
}

func (tv *txMemoryView) SaveSkillDefinition(_ context.Context, def progression.SkillDefinition) error {
	tv.parent.skillDefs[def.ID] = def
	return nil
}

func (tv *txMemoryView) SkillDefinitions(_ context.Context) ([]progression.SkillDefinition, error) {
	out := make([]progression.SkillDefinition, 0, len(tv.parent.skillDefs))
	for _, d := range tv.parent.skillDefs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (tv *txMemoryView) GetStreak(_ context.Context, userID progression.UserID, streakType string) (*progression.UserStreak, error) {
	if s, ok := tv.parent.streaks[streakKey{userID, streakType}]; ok {
		cp := s
		return &cp, nil
	}
	return nil, nil
}

func (tv *txMemoryView) SaveStreak(_ context.Context, s progression.UserStreak) error {
	tv.parent.streaks[streakKey{s.UserID, s.StreakType}] = s
	return nil
}

func (tv *txMemoryView) MaxCurrentStreak(_ context.Context, userID progression.UserID) (int, error) {
	max := 0
	for k, s := range tv.parent.streaks {
		if k.UserID == userID && s.CurrentStreak > max {
			max = s.CurrentStreak
		}
	}
	return max, nil
}

func (tv *txMemoryView) MaxLongestStreak(_ context.Context, userID progression.UserID) (int, error) {
	max := 0
	for k, s := range tv.parent.streaks {
		if k.UserID == userID && s.LongestStreak > max {
			max = s.LongestStreak
		}
	}
	return max, nil
}

func (tv *txMemoryView) AchievementDefinitions(_ context.Context) ([]progression.AchievementDefinition, error) {
	out := make([]progression.AchievementDefinition, 0, len(tv.parent.achDefs))
	for _, d := range tv.parent.achDefs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (tv *txMemoryView) SaveAchievementDefinition(_ context.Context, def progression.AchievementDefinition) error {
	tv.parent.achDefs[def.ID] = def
	return nil
}

func (tv *txMemoryView) HasAchievement(_ context.Context, userID progression.UserID, achievementID string) (bool, error) {
	_, ok := tv.parent.unlocks[unlockKey{userID, achievementID}]
	return ok, nil
}

func (tv *txMemoryView) InsertUserAchievement(_ context.Context, ua progression.UserAchievement) error {
	k := unlockKey{ua.UserID, ua.AchievementID}
	if _, exists := tv.parent.unlocks[k]; exists {
		return progression.ErrDuplicateSourceKey
	}
	tv.parent.unlocks[k] = ua
	return nil
}

func (tv *txMemoryView) UserAchievements(_ context.Context, userID progression.UserID) ([]progression.UserAchievement, error) {
	var out []progression.UserAchievement
	for k, ua := range tv.parent.unlocks {
		if k.UserID == userID {
			out = append(out, ua)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EarnedAt.Before(out[j].EarnedAt) })
	return out, nil
}

func (tv *txMemoryView) AppendActivityEvent(_ context.Context, ev progression.ActivityEvent) error {
	tv.parent.events = append(tv.parent.events, ev)
	return nil
}

func (tv *txMemoryView) CountActivityEvents(_ context.Context, userID progression.UserID, eventType string) (int64, error) {
	var n int64
	for _, ev := range tv.parent.events {
		if ev.UserID == userID && ev.EventType == eventType {
			n++
		}
	}
	return n, nil
}

func (tv *txMemoryView) ActivityEvents(_ context.Context, userID progression.UserID, limit int) ([]progression.ActivityEvent, error) {
	var out []progression.ActivityEvent
	for i := len(tv.parent.events) - 1; i >= 0; i-- {
		if tv.parent.events[i].UserID == userID {
			out = append(out, tv.parent.events[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
