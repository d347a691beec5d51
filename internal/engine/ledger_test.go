package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/devitachiui22/aotravel-sub002/internal/apperrors"
	"github.com/devitachiui22/aotravel-sub002/internal/models"
)

func newLedger(t *testing.T) (*Ledger, *fakeFeed) {
	t.Helper()
	feed := &fakeFeed{}
	return NewLedger(testDB(t), feed, testLogger()), feed
}

func TestAccountForCreatesOnFirstTouch(t *testing.T) {
	l, _ := newLedger(t)
	user := createUser(t, l.db, models.UserTypePassenger)

	acct, err := l.AccountFor(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("AccountFor: %v", err)
	}
	if acct.Status != models.AccountStatusActive {
		t.Errorf("status = %q, want active", acct.Status)
	}
	if !acct.Balance.IsZero() {
		t.Errorf("balance = %s, want zero", acct.Balance)
	}

	again, err := l.AccountFor(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("second AccountFor: %v", err)
	}
	if again.ID != acct.ID {
		t.Errorf("second call created a new account: %d != %d", again.ID, acct.ID)
	}
}

func TestAdjustValidation(t *testing.T) {
	l, _ := newLedger(t)
	admin := createUser(t, l.db, models.UserTypeAdmin)
	user := createUser(t, l.db, models.UserTypePassenger)

	tests := []struct {
		name     string
		amount   decimal.Decimal
		category string
		note     string
	}{
		{"zero amount", decimal.Zero, models.LedgerCategoryAdjustment, "correction"},
		{"settlement category", decimal.NewFromInt(100), models.LedgerCategorySettlement, "correction"},
		{"unknown category", decimal.NewFromInt(100), "bonus", "correction"},
		{"blank note", decimal.NewFromInt(100), models.LedgerCategoryAdjustment, "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Adjust(context.Background(), admin.ID, user.ID, tt.amount, tt.category, tt.note)
			if apperrors.KindOf(err) != apperrors.KindValidation {
				t.Errorf("kind = %v, want validation_error (err: %v)", apperrors.KindOf(err), err)
			}
		})
	}
}

func TestAdjustRecordsActorAndBalance(t *testing.T) {
	l, feed := newLedger(t)
	admin := createUser(t, l.db, models.UserTypeAdmin)
	user := createUser(t, l.db, models.UserTypePassenger)

	entry, err := l.Adjust(context.Background(), admin.ID, user.ID,
		decimal.NewFromInt(2500), models.LedgerCategoryAdjustment, "promo credit")
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if entry.ActorID == nil || *entry.ActorID != admin.ID {
		t.Errorf("actor id = %v, want admin %d", entry.ActorID, admin.ID)
	}
	if !entry.BalanceAfter.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("balance after = %s, want 2500", entry.BalanceAfter)
	}
	if entry.Note != "promo credit" {
		t.Errorf("note = %q, want recorded reason", entry.Note)
	}
	if len(feed.entries) != 1 {
		t.Errorf("published entries = %d, want 1", len(feed.entries))
	}

	acct, err := l.AccountFor(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("AccountFor: %v", err)
	}
	if !acct.Balance.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("balance = %s, want 2500", acct.Balance)
	}
}

func TestAdjustMayGoNegative(t *testing.T) {
	l, _ := newLedger(t)
	admin := createUser(t, l.db, models.UserTypeAdmin)
	user := createUser(t, l.db, models.UserTypePassenger)

	entry, err := l.Adjust(context.Background(), admin.ID, user.ID,
		decimal.NewFromInt(-300), models.LedgerCategoryAdjustment, "chargeback")
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if !entry.BalanceAfter.Equal(decimal.NewFromInt(-300)) {
		t.Errorf("balance after = %s, want -300", entry.BalanceAfter)
	}
}

func TestReconcileMatchesEntrySum(t *testing.T) {
	l, _ := newLedger(t)
	admin := createUser(t, l.db, models.UserTypeAdmin)
	user := createUser(t, l.db, models.UserTypePassenger)

	amounts := []int64{2500, -700, 1200}
	for _, a := range amounts {
		if _, err := l.Adjust(context.Background(), admin.ID, user.ID,
			decimal.NewFromInt(a), models.LedgerCategoryAdjustment, "movement"); err != nil {
			t.Fatalf("Adjust %d: %v", a, err)
		}
	}

	sum, ok, err := l.Reconcile(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !ok {
		t.Error("entry sum does not match stored balance")
	}
	if !sum.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("sum = %s, want 3000", sum)
	}
}

func TestReconcileDetectsDrift(t *testing.T) {
	l, _ := newLedger(t)
	admin := createUser(t, l.db, models.UserTypeAdmin)
	user := createUser(t, l.db, models.UserTypePassenger)

	if _, err := l.Adjust(context.Background(), admin.ID, user.ID,
		decimal.NewFromInt(1000), models.LedgerCategoryRefund, "refund"); err != nil {
		t.Fatalf("Adjust: %v", err)
	}

	// Corrupt the stored balance behind the ledger's back.
	if err := l.db.Model(&models.Account{}).
		Where("user_id = ?", user.ID).
		Update("balance", decimal.NewFromInt(999)).Error; err != nil {
		t.Fatalf("corrupt balance: %v", err)
	}

	_, ok, err := l.Reconcile(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if ok {
		t.Error("drifted balance reported as reconciled")
	}
}

func TestEntriesNewestFirstAndPaginated(t *testing.T) {
	l, _ := newLedger(t)
	admin := createUser(t, l.db, models.UserTypeAdmin)
	user := createUser(t, l.db, models.UserTypePassenger)

	for i := int64(1); i <= 5; i++ {
		if _, err := l.Adjust(context.Background(), admin.ID, user.ID,
			decimal.NewFromInt(i*100), models.LedgerCategoryAdjustment, "movement"); err != nil {
			t.Fatalf("Adjust %d: %v", i, err)
		}
	}

	entries, total, err := l.Entries(context.Background(), user.ID, 1, 2)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(entries) != 2 {
		t.Fatalf("page size = %d, want 2", len(entries))
	}
	if !entries[0].Amount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("first entry = %s, want newest 500", entries[0].Amount)
	}

	last, _, err := l.Entries(context.Background(), user.ID, 3, 2)
	if err != nil {
		t.Fatalf("last page: %v", err)
	}
	if len(last) != 1 {
		t.Fatalf("last page size = %d, want 1", len(last))
	}
	if !last[0].Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("last entry = %s, want oldest 100", last[0].Amount)
	}
}
