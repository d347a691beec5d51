package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/devitachiui22/aotravel-sub002/internal/apperrors"
	"github.com/devitachiui22/aotravel-sub002/internal/database"
	"github.com/devitachiui22/aotravel-sub002/internal/models"
	"github.com/devitachiui22/aotravel-sub002/internal/observability"
)

// Ledger is the durable account-balance store. Every balance mutation is
// paired with exactly one immutable LedgerEntry written in the same
// transaction, so the running sum of an account's entries always equals
// its stored balance.
type Ledger struct {
	db   *gorm.DB
	feed EventFeed
	log  *slog.Logger
}

func NewLedger(db *gorm.DB, feed EventFeed, log *slog.Logger) *Ledger {
	return &Ledger{db: db, feed: feed, log: log}
}

// AccountFor fetches the user's account, creating an empty active one on
// first touch.
func (l *Ledger) AccountFor(ctx context.Context, userID uint) (*models.Account, error) {
	var acct models.Account
	err := l.db.WithContext(ctx).
		Where(models.Account{UserID: userID}).
		Attrs(models.Account{Status: models.AccountStatusActive}).
		FirstOrCreate(&acct).Error
	if err != nil {
		return nil, unavailable(err)
	}
	return &acct, nil
}

// Entries lists an account's ledger, newest first.
func (l *Ledger) Entries(ctx context.Context, userID uint, page, limit int) ([]models.LedgerEntry, int64, error) {
	acct, err := l.AccountFor(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	var entries []models.LedgerEntry
	if err := l.db.WithContext(ctx).
		Where("account_id = ?", acct.ID).
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, 0, unavailable(err)
	}

	var total int64
	if err := l.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Where("account_id = ?", acct.ID).
		Count(&total).Error; err != nil {
		return nil, 0, unavailable(err)
	}
	return entries, total, nil
}

// Adjust is the administrative-only entry point for moving a balance
// outside ride settlement. It deliberately bypasses the non-negative
// balance rule; the acting admin and reason are recorded on the entry
// and logged.
func (l *Ledger) Adjust(ctx context.Context, actorID, targetUserID uint, amount decimal.Decimal, category, note string) (*models.LedgerEntry, error) {
	if amount.IsZero() {
		return nil, apperrors.E(apperrors.KindValidation, "adjustment amount must be non-zero")
	}
	if category != models.LedgerCategoryAdjustment && category != models.LedgerCategoryRefund {
		return nil, apperrors.E(apperrors.KindValidation, "category must be adjustment or refund")
	}
	if strings.TrimSpace(note) == "" {
		return nil, apperrors.E(apperrors.KindValidation, "adjustments require a reason")
	}

	var entry models.LedgerEntry
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acct, err := lockAccount(tx, targetUserID)
		if err != nil {
			return err
		}
		entry, err = applyEntry(tx, acct, amount, newReferenceID(), category, note, &actorID)
		return err
	})
	if err != nil {
		return nil, err
	}

	observability.LedgerEntries.WithLabelValues(category).Inc()
	l.log.Warn("administrative balance adjustment",
		"actor_id", actorID,
		"user_id", targetUserID,
		"amount", amount.String(),
		"balance_after", entry.BalanceAfter.String(),
		"note", note,
	)
	l.feed.PublishEntry(entry)
	return &entry, nil
}

// Reconcile sums an account's signed entries and compares the result to
// its stored balance.
func (l *Ledger) Reconcile(ctx context.Context, userID uint) (decimal.Decimal, bool, error) {
	acct, err := l.AccountFor(ctx, userID)
	if err != nil {
		return decimal.Zero, false, err
	}

	var entries []models.LedgerEntry
	if err := l.db.WithContext(ctx).
		Where("account_id = ?", acct.ID).
		Find(&entries).Error; err != nil {
		return decimal.Zero, false, unavailable(err)
	}

	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	return sum, sum.Equal(acct.Balance), nil
}

// newReferenceID generates the id shared by all legs of one settlement
// or adjustment.
func newReferenceID() string {
	return uuid.NewString()
}

// lockAccount fetches the user's account under an exclusive row lock,
// creating it first if the user has never had one.
func lockAccount(tx *gorm.DB, userID uint) (*models.Account, error) {
	var acct models.Account
	err := tx.Where(models.Account{UserID: userID}).
		Attrs(models.Account{Status: models.AccountStatusActive}).
		FirstOrCreate(&acct).Error
	if err != nil {
		return nil, unavailable(err)
	}
	if err := database.LockForUpdate(tx).First(&acct, acct.ID).Error; err != nil {
		return nil, unavailable(err)
	}
	return &acct, nil
}

// applyEntry mutates the account balance and appends the paired entry in
// the caller's transaction. The account row must already be locked.
func applyEntry(tx *gorm.DB, acct *models.Account, amount decimal.Decimal, referenceID, category, note string, actorID *uint) (models.LedgerEntry, error) {
	acct.Balance = acct.Balance.Add(amount)
	if err := tx.Save(acct).Error; err != nil {
		return models.LedgerEntry{}, unavailable(err)
	}

	entry := models.LedgerEntry{
		ReferenceID:  referenceID,
		AccountID:    acct.ID,
		Amount:       amount,
		Category:     category,
		BalanceAfter: acct.Balance,
		ActorID:      actorID,
		Note:         note,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return models.LedgerEntry{}, unavailable(err)
	}
	return entry, nil
}
