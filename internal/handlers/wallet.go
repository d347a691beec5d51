package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/devitachiui22/aotravel-sub002/internal/engine"
)

// GetWallet returns the caller's account balance and status
func GetWallet(ledger *engine.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userId")

		acct, err := ledger.AccountFor(c.Request.Context(), userID)
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(200, gin.H{
			"balance":        acct.Balance,
			"dailyLimit":     acct.DailyLimit,
			"dailyLimitUsed": acct.DailyLimitUsed,
			"status":         acct.Status,
		})
	}
}

// GetWalletEntries lists the caller's ledger entries, paginated
func GetWalletEntries(ledger *engine.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userId")
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

		entries, total, err := ledger.Entries(c.Request.Context(), userID, page, limit)
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(200, gin.H{
			"entries": entries,
			"total":   total,
		})
	}
}

// ReconcileAccount compares the sum of a user's ledger entries against
// the stored balance
func ReconcileAccount(ledger *engine.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseUint(c.Param("userId"), 10, 32)
		if err != nil {
			c.JSON(400, gin.H{"error": "Invalid user ID"})
			return
		}

		sum, ok, err := ledger.Reconcile(c.Request.Context(), uint(userID))
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(200, gin.H{
			"entrySum":   sum,
			"reconciled": ok,
		})
	}
}

// AdjustBalance is the administrative entry point for moving a balance
// outside ride settlement
func AdjustBalance(ledger *engine.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := c.GetUint("userId")

		var input struct {
			UserID   uint   `json:"userId" binding:"required"`
			Amount   string `json:"amount" binding:"required"`
			Category string `json:"category" binding:"required"`
			Note     string `json:"note" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		amount, err := decimal.NewFromString(input.Amount)
		if err != nil {
			c.JSON(400, gin.H{"error": "Invalid amount"})
			return
		}

		entry, err := ledger.Adjust(c.Request.Context(), actorID, input.UserID, amount, input.Category, input.Note)
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(201, gin.H{
			"message": "Adjustment applied",
			"entry":   entry,
		})
	}
}
