package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Account is a user's wallet. Balance never goes negative through ride
// settlement; administrative adjustments may push it below zero and are
// always logged with the acting admin.
type Account struct {
	gorm.Model
	UserID         uint            `json:"userId" gorm:"not null;uniqueIndex"`
	Balance        decimal.Decimal `json:"balance" gorm:"type:numeric(14,2);not null;default:0"`
	DailyLimit     decimal.Decimal `json:"dailyLimit" gorm:"type:numeric(14,2);not null;default:0"` // 0 means unlimited
	DailyLimitUsed decimal.Decimal `json:"dailyLimitUsed" gorm:"type:numeric(14,2);not null;default:0"`
	Status         string          `json:"status" gorm:"not null;default:'active'"`
	User           *User           `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// TableName specifies the table name
func (Account) TableName() string {
	return "accounts"
}

// AccountStatus constants
const (
	AccountStatusActive    = "active"
	AccountStatusFrozen    = "frozen"
	AccountStatusSuspended = "suspended"
)

// LedgerEntry is an immutable record of a balance-affecting event. Entries
// are appended, never updated or deleted; the two legs of a settlement
// share one reference id.
type LedgerEntry struct {
	gorm.Model
	ReferenceID  string          `json:"referenceId" gorm:"not null;index"`
	AccountID    uint            `json:"accountId" gorm:"not null;index"`
	Amount       decimal.Decimal `json:"amount" gorm:"type:numeric(14,2);not null"` // negative for debit, positive for credit
	Category     string          `json:"category" gorm:"not null"`
	BalanceAfter decimal.Decimal `json:"balanceAfter" gorm:"type:numeric(14,2);not null"`
	ActorID      *uint           `json:"actorId,omitempty"` // admin behind an adjustment
	Note         string          `json:"note,omitempty"`
}

// TableName specifies the table name
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// LedgerCategory constants
const (
	LedgerCategorySettlement = "ride_settlement"
	LedgerCategoryAdjustment = "adjustment"
	LedgerCategoryRefund     = "refund"
)
