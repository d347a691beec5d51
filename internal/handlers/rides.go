package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/devitachiui22/aotravel-sub002/internal/engine"
	"github.com/devitachiui22/aotravel-sub002/internal/models"
)

// RequestRide handles ride requests from passengers
func RequestRide(dispatch *engine.Dispatch) gin.HandlerFunc {
	return func(c *gin.Context) {
		passengerID := c.GetUint("userId")
		userType := c.GetString("userType")

		if userType != string(models.UserTypePassenger) {
			c.JSON(403, gin.H{"error": "Only passengers can request rides"})
			return
		}

		var input struct {
			Pickup struct {
				Lat     float64 `json:"lat" binding:"required"`
				Lng     float64 `json:"lng" binding:"required"`
				Address string  `json:"address" binding:"required"`
			} `json:"pickup" binding:"required"`
			Destination struct {
				Lat     float64 `json:"lat" binding:"required"`
				Lng     float64 `json:"lng" binding:"required"`
				Address string  `json:"address" binding:"required"`
			} `json:"destination" binding:"required"`
			PriceOffer    float64 `json:"priceOffer"`
			Distance      float64 `json:"distance"`
			PaymentMethod string  `json:"paymentMethod"`
		}

		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		ride, err := dispatch.RequestRide(c.Request.Context(), passengerID, engine.RideRequestInput{
			PickupLat:     input.Pickup.Lat,
			PickupLng:     input.Pickup.Lng,
			PickupAddr:    input.Pickup.Address,
			DestLat:       input.Destination.Lat,
			DestLng:       input.Destination.Lng,
			DestAddr:      input.Destination.Address,
			PriceOffer:    input.PriceOffer,
			Distance:      input.Distance,
			PaymentMethod: input.PaymentMethod,
		})
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(201, gin.H{
			"message":  "Ride request created. Waiting for a driver.",
			"rideId":   ride.ID,
			"status":   ride.Status,
			"price":    ride.RequestedPrice,
			"distance": ride.Distance,
		})
	}
}

// AcceptRide lets a driver claim a searching ride
func AcceptRide(dispatch *engine.Dispatch) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.GetUint("userId")
		userType := c.GetString("userType")

		if userType != string(models.UserTypeDriver) {
			c.JSON(403, gin.H{"error": "Only drivers can accept rides"})
			return
		}

		rideID, err := parseRideID(c)
		if err != nil {
			return
		}

		ride, err := dispatch.AcceptRide(c.Request.Context(), driverID, rideID)
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(200, gin.H{
			"message": "Ride accepted successfully",
			"rideId":  ride.ID,
			"status":  ride.Status,
			"price":   ride.SettlementPrice(),
		})
	}
}

// UpdateRideStatus advances the ride state machine (arrived, started,
// cancelled)
func UpdateRideStatus(dispatch *engine.Dispatch) gin.HandlerFunc {
	return func(c *gin.Context) {
		rideID, err := parseRideID(c)
		if err != nil {
			return
		}

		var input struct {
			Status string `json:"status" binding:"required"`
			Reason string `json:"reason"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		ride, err := dispatch.UpdateStatus(c.Request.Context(), actorFrom(c), rideID, input.Status, input.Reason)
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(200, gin.H{
			"message": "Ride status updated successfully",
			"rideId":  ride.ID,
			"status":  ride.Status,
		})
	}
}

// CompleteRide settles a started ride
func CompleteRide(settlement *engine.Settlement) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.GetUint("userId")
		userType := c.GetString("userType")

		if userType != string(models.UserTypeDriver) {
			c.JSON(403, gin.H{"error": "Only drivers can complete rides"})
			return
		}

		rideID, err := parseRideID(c)
		if err != nil {
			return
		}

		var input struct {
			FinalPrice    float64 `json:"finalPrice" binding:"required"`
			PaymentMethod string  `json:"paymentMethod" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		result, err := settlement.Complete(c.Request.Context(), driverID, rideID, input.FinalPrice, input.PaymentMethod)
		if err != nil {
			fail(c, err)
			return
		}

		c.JSON(200, gin.H{
			"message":       "Ride completed successfully",
			"rideId":        result.Ride.ID,
			"status":        result.Ride.Status,
			"finalPrice":    result.Ride.FinalPrice,
			"paymentStatus": result.Ride.PaymentStatus,
		})
	}
}

// GetActiveRides lists the caller's non-terminal rides
func GetActiveRides(dispatch *engine.Dispatch) gin.HandlerFunc {
	return func(c *gin.Context) {
		rides, err := dispatch.ActiveRides(c.Request.Context(), actorFrom(c))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(200, gin.H{"rides": rides})
	}
}

// GetRideHistory lists the caller's finished rides, paginated
func GetRideHistory(dispatch *engine.Dispatch) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

		rides, total, err := dispatch.History(c.Request.Context(), actorFrom(c), page, limit)
		if err != nil {
			fail(c, err)
			return
		}

		if page < 1 {
			page = 1
		}
		if limit < 1 || limit > 100 {
			limit = 10
		}
		c.JSON(200, gin.H{
			"rides": rides,
			"pagination": gin.H{
				"page":       page,
				"limit":      limit,
				"total":      total,
				"totalPages": (total + int64(limit) - 1) / int64(limit),
			},
		})
	}
}

func parseRideID(c *gin.Context) (uint, error) {
	rideID, err := strconv.ParseUint(c.Param("rideId"), 10, 32)
	if err != nil {
		c.JSON(400, gin.H{"error": "Invalid ride ID"})
		return 0, err
	}
	return uint(rideID), nil
}
