/*
ledger.go - Award/spend operations over the append-only ledger

PURPOSE:
  The Ledger is the only writer of wallet balances. Every movement is
  recorded as an immutable LedgerEntry first; the Wallet row is a projection
  updated in the same transaction. Balance for any currency always equals
  the sum of that user's entries for it.

IDEMPOTENCY:
  Awards carrying a (sourceType, sourceID) pair are idempotent: if an entry
  with the same (user, currency, sourceType, sourceID) tuple exists, the
  call returns alreadyAwarded=true with the current balance and writes
  nothing. The lookup and the insert happen inside one transaction, and a
  unique index on the tuple backstops the race where two transactions pass
  the lookup concurrently.

LEVELING:
  XP awards run the level curve before returning. Each level gained is
  recorded as one level_up ActivityEvent carrying the new level and the
  levels-gained count of the grant; level-ups do not themselves grant
  currency.

SEE ALSO:
  - store.go: Persistence interface and transaction contract
  - leveling.go: The XP curve
  - dispatcher.go: Flattens awards into one transaction per domain event
*/
package progression

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"
)

// Ledger performs all balance mutations. Curve drives XP level-ups.
type Ledger struct {
	Store TxStore
	Curve LevelCurve
}

// entrySeq disambiguates IDs generated within the same nanosecond.
var entrySeq uint64

func newEntryID(prefix string) EntryID {
	return EntryID(fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), atomic.AddUint64(&entrySeq, 1)))
}

// =============================================================================
// AWARD
// =============================================================================

// Award grants a positive amount of one currency, idempotently when the
// request carries a source pair. The entire operation (idempotency lookup,
// entry insert, wallet update, level-up events) is one transaction.
func (l *Ledger) Award(ctx context.Context, req AwardRequest) (AwardResult, error) {
	var res AwardResult
	err := l.Store.WithTx(ctx, func(s Store) error {
		var err error
		res, err = l.awardIn(ctx, s, req)
		return err
	})
	return res, err
}

// awardIn is the transaction-scoped award used by Award, the dispatcher and
// the achievement evaluator, so that cascading awards share one transaction.
func (l *Ledger) awardIn(ctx context.Context, s Store, req AwardRequest) (AwardResult, error) {
	if req.Amount <= 0 {
		return AwardResult{}, fmt.Errorf("award %s for %s: %w", req.Currency, req.UserID, ErrInvalidAmount)
	}
	if !req.Currency.Valid() {
		return AwardResult{}, fmt.Errorf("award for %s: %q: %w", req.UserID, req.Currency, ErrInvalidCurrency)
	}
	if req.Currency == CurrencySkillStars && req.SkillID == "" {
		return AwardResult{}, ErrSkillIDRequired
	}

	w, err := l.getOrCreateWallet(ctx, s, req.UserID)
	if err != nil {
		return AwardResult{}, err
	}

	// Idempotency: same source tuple means the award already happened.
	if req.SourceType != "" && req.SourceID != "" {
		existing, err := s.FindEntryBySource(ctx, req.UserID, req.Currency, req.SourceType, req.SourceID)
		if err != nil {
			return AwardResult{}, err
		}
		if existing != nil {
			return AwardResult{
				AlreadyAwarded: true,
				NewBalance:     w.BalanceOf(req.Currency),
				NewLevel:       w.Level,
			}, nil
		}
	}

	entry := LedgerEntry{
		ID:         newEntryID("le"),
		UserID:     req.UserID,
		Currency:   req.Currency,
		Amount:     req.Amount,
		Reason:     req.Reason,
		SourceType: req.SourceType,
		SourceID:   req.SourceID,
		SkillID:    req.SkillID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.AppendEntry(ctx, entry); err != nil {
		if errors.Is(err, ErrDuplicateSourceKey) {
			// Lost a race with an identical award; the balance already
			// includes it.
			return AwardResult{
				AlreadyAwarded: true,
				NewBalance:     w.BalanceOf(req.Currency),
				NewLevel:       w.Level,
			}, nil
		}
		return AwardResult{}, err
	}

	res := AwardResult{NewLevel: w.Level}

	switch req.Currency {
	case CurrencyCoins:
		w.Coins += req.Amount
		w.TotalEarned += req.Amount

	case CurrencyXP:
		level, xp, toNext, gained := l.Curve.Advance(w.Level, w.XP, req.Amount)
		w.Level, w.XP, w.XPToNextLevel = level, xp, toNext
		res.NewLevel = level
		res.LevelsGained = gained
		res.LeveledUp = gained > 0
		if err := l.recordLevelUps(ctx, s, req.UserID, level, gained); err != nil {
			return AwardResult{}, err
		}

	case CurrencySkillStars:
		w.TotalSkillStars += req.Amount
		if err := l.bumpSkill(ctx, s, req.UserID, req.SkillID, req.Amount); err != nil {
			return AwardResult{}, err
		}
	}

	w.UpdatedAt = time.Now().UTC()
	if err := s.SaveWallet(ctx, *w); err != nil {
		return AwardResult{}, err
	}

	res.NewBalance = w.BalanceOf(req.Currency)
	return res, nil
}

// recordLevelUps appends one level_up activity event per level gained,
// each carrying the level reached and the grant's total levels gained.
func (l *Ledger) recordLevelUps(ctx context.Context, s Store, userID UserID, newLevel, gained int) error {
	for i := gained; i > 0; i-- {
		ev := ActivityEvent{
			ID:        newEntryID("ae"),
			UserID:    userID,
			EventType: EventLevelUp,
			Metadata: map[string]string{
				"level":         strconv.Itoa(newLevel - i + 1),
				"levels_gained": strconv.Itoa(gained),
			},
			CreatedAt: time.Now().UTC(),
		}
		if err := s.AppendActivityEvent(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// bumpSkill upserts the per-skill star row and rederives its level from the
// catalog ratio.
func (l *Ledger) bumpSkill(ctx context.Context, s Store, userID UserID, skillID SkillID, stars int64) error {
	def, err := s.GetSkillDefinition(ctx, skillID)
	if err != nil {
		return err
	}
	perLevel, maxLevel := skillRatio(def)

	now := time.Now().UTC()
	us, err := s.GetSkill(ctx, userID, skillID)
	if err != nil {
		return err
	}
	if us == nil {
		us = &UserSkill{UserID: userID, SkillID: skillID, CreatedAt: now}
	}
	us.CurrentStars += stars
	us.CurrentLevel = SkillLevel(us.CurrentStars, perLevel, maxLevel)
	us.UpdatedAt = now
	return s.SaveSkill(ctx, *us)
}

// =============================================================================
// SPEND
// =============================================================================

// Spend deducts coins after a balance check. The check, the negative ledger
// entry and the wallet decrement are one transaction; on insufficient funds
// nothing is written and the typed error is returned alongside the
// unchanged balance.
func (l *Ledger) Spend(ctx context.Context, req SpendRequest) (SpendResult, error) {
	var res SpendResult
	err := l.Store.WithTx(ctx, func(s Store) error {
		var err error
		res, err = l.spendIn(ctx, s, req)
		return err
	})
	return res, err
}

func (l *Ledger) spendIn(ctx context.Context, s Store, req SpendRequest) (SpendResult, error) {
	if req.Amount <= 0 {
		return SpendResult{}, fmt.Errorf("spend for %s: %w", req.UserID, ErrInvalidAmount)
	}

	w, err := l.getOrCreateWallet(ctx, s, req.UserID)
	if err != nil {
		return SpendResult{}, err
	}

	// A retried purchase is a no-op, not a double charge.
	if req.PurchaseID != "" {
		existing, err := s.FindEntryBySource(ctx, req.UserID, CurrencyCoins, SourcePurchase, req.PurchaseID)
		if err != nil {
			return SpendResult{}, err
		}
		if existing != nil {
			return SpendResult{OK: true, NewBalance: w.Coins}, nil
		}
	}

	if w.Coins < req.Amount {
		return SpendResult{OK: false, NewBalance: w.Coins}, &InsufficientFundsError{
			UserID:    req.UserID,
			Available: w.Coins,
			Requested: req.Amount,
		}
	}

	entry := LedgerEntry{
		ID:        newEntryID("le"),
		UserID:    req.UserID,
		Currency:  CurrencyCoins,
		Amount:    -req.Amount,
		Reason:    req.Reason,
		CreatedAt: time.Now().UTC(),
	}
	if req.PurchaseID != "" {
		entry.SourceType = SourcePurchase
		entry.SourceID = req.PurchaseID
	}
	if err := s.AppendEntry(ctx, entry); err != nil {
		if errors.Is(err, ErrDuplicateSourceKey) {
			return SpendResult{OK: true, NewBalance: w.Coins}, nil
		}
		return SpendResult{}, err
	}

	w.Coins -= req.Amount
	w.TotalSpent += req.Amount
	w.UpdatedAt = time.Now().UTC()
	if err := s.SaveWallet(ctx, *w); err != nil {
		return SpendResult{}, err
	}

	return SpendResult{OK: true, NewBalance: w.Coins}, nil
}

// =============================================================================
// READS
// =============================================================================

// GetWallet returns the user's wallet, creating the default one on first
// touch (coins=0, xp=0, level=1). Reads require no locking.
func (l *Ledger) GetWallet(ctx context.Context, userID UserID) (*Wallet, error) {
	w, err := l.Store.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if w != nil {
		return w, nil
	}

	var created *Wallet
	err = l.Store.WithTx(ctx, func(s Store) error {
		var err error
		created, err = l.getOrCreateWallet(ctx, s, userID)
		return err
	})
	return created, err
}

// Entries returns a user's ledger for one currency, oldest first.
func (l *Ledger) Entries(ctx context.Context, userID UserID, c Currency) ([]LedgerEntry, error) {
	return l.Store.Entries(ctx, userID, c)
}

// Balance sums the ledger for one currency. This is the conservation view:
// it must always equal the projected wallet field.
func (l *Ledger) Balance(ctx context.Context, userID UserID, c Currency) (int64, error) {
	entries, err := l.Store.Entries(ctx, userID, c)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.Amount
	}
	return total, nil
}

func (l *Ledger) getOrCreateWallet(ctx context.Context, s Store, userID UserID) (*Wallet, error) {
	w, err := s.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if w != nil {
		return w, nil
	}

	now := time.Now().UTC()
	w = &Wallet{
		UserID:        userID,
		Level:         1,
		XPToNextLevel: l.Curve.XPForLevel(1),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.SaveWallet(ctx, *w); err != nil {
		return nil, err
	}
	return w, nil
}
