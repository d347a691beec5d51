package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockForUpdate applies a row-level exclusive lock to the query. Every
// read-check-write sequence on a ride or account must re-read the row
// through this inside the same transaction it writes with. On dialects
// without SELECT ... FOR UPDATE (sqlite in tests) the single-writer
// transaction serializes writes instead.
func LockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// BoundLockWait caps how long this transaction may block on a contended
// row before the statement fails. The resulting failure is surfaced to
// the caller as a retryable error rather than an indefinite hang.
func BoundLockWait(tx *gorm.DB, timeout time.Duration) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	ms := timeout.Milliseconds()
	if ms <= 0 {
		return nil
	}
	// SET does not take bind parameters.
	return tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", ms)).Error
}

// SerializeOnUser takes a transaction-scoped advisory lock keyed by user
// id. Used to serialize check-then-create sequences, like the one ride
// per passenger rule, where "non-terminal" is a computed predicate no
// unique constraint can express.
func SerializeOnUser(tx *gorm.DB, userID uint) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(?)", int64(userID)).Error
}
