package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/devitachiui22/aotravel-sub002/internal/engine"
	"github.com/devitachiui22/aotravel-sub002/internal/models"
)

// ProposePrice lets the assigned driver open a price proposal
func ProposePrice(negotiation *engine.Negotiation) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.GetUint("userId")
		userType := c.GetString("userType")

		if userType != string(models.UserTypeDriver) {
			c.JSON(403, gin.H{"error": "Only drivers can propose prices"})
			return
		}

		rideID, err := parseRideID(c)
		if err != nil {
			return
		}

		var input struct {
			Price  float64 `json:"price" binding:"required"`
			Reason string  `json:"reason" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		proposal, err := negotiation.Propose(c.Request.Context(), driverID, rideID, input.Price, input.Reason)
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(201, gin.H{
			"message":  "Price proposal sent to passenger",
			"proposal": proposal,
		})
	}
}

// RespondToProposal lets the passenger accept or reject the pending
// proposal
func RespondToProposal(negotiation *engine.Negotiation) gin.HandlerFunc {
	return func(c *gin.Context) {
		passengerID := c.GetUint("userId")
		userType := c.GetString("userType")

		if userType != string(models.UserTypePassenger) {
			c.JSON(403, gin.H{"error": "Only passengers can respond to proposals"})
			return
		}

		rideID, err := parseRideID(c)
		if err != nil {
			return
		}

		var input struct {
			Accept *bool  `json:"accept" binding:"required"`
			Reason string `json:"reason"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		proposal, err := negotiation.Respond(c.Request.Context(), passengerID, rideID, *input.Accept, input.Reason)
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(200, gin.H{
			"message":  "Proposal resolved",
			"proposal": proposal,
		})
	}
}

// GetNegotiationHistory returns the ride's full proposal record
func GetNegotiationHistory(negotiation *engine.Negotiation) gin.HandlerFunc {
	return func(c *gin.Context) {
		rideID, err := parseRideID(c)
		if err != nil {
			return
		}

		proposals, err := negotiation.History(c.Request.Context(), actorFrom(c), rideID)
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(200, gin.H{"proposals": proposals})
	}
}
