package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/devitachiui22/aotravel-sub002/internal/models"
	"github.com/devitachiui22/aotravel-sub002/internal/services"
)

// UpdateDriverLocation records the driver's position and heading
func UpdateDriverLocation(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.GetUint("userId")
		userType := c.GetString("userType")

		if userType != string(models.UserTypeDriver) {
			c.JSON(403, gin.H{"error": "Only drivers can update location"})
			return
		}

		var input struct {
			Lat     float64 `json:"lat" binding:"required"`
			Lng     float64 `json:"lng" binding:"required"`
			Heading float64 `json:"heading"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		if input.Lat < -90 || input.Lat > 90 || input.Lng < -180 || input.Lng > 180 {
			c.JSON(400, gin.H{"error": "Invalid coordinates"})
			return
		}

		presence := models.DriverPresence{
			DriverID:  driverID,
			Latitude:  input.Lat,
			Longitude: input.Lng,
			Heading:   input.Heading,
			IsOnline:  true,
			LastSeen:  time.Now(),
		}

		err := db.Where("driver_id = ?", driverID).
			Assign(map[string]any{
				"latitude":  input.Lat,
				"longitude": input.Lng,
				"heading":   input.Heading,
				"is_online": true,
				"last_seen": time.Now(),
			}).
			FirstOrCreate(&presence).Error
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to update location"})
			return
		}

		services.SetDriverLocation(context.Background(), driverID, input.Lat, input.Lng, input.Heading)

		c.JSON(200, gin.H{"message": "Location updated"})
	}
}

// UpdateDriverAvailability flips the driver in or out of the dispatch pool
func UpdateDriverAvailability(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.GetUint("userId")
		userType := c.GetString("userType")

		if userType != string(models.UserTypeDriver) {
			c.JSON(403, gin.H{"error": "Only drivers can update availability"})
			return
		}

		var input struct {
			IsAvailable *bool `json:"isAvailable" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		err := db.Model(&models.DriverPresence{}).
			Where("driver_id = ?", driverID).
			Updates(map[string]any{
				"is_available": *input.IsAvailable,
				"is_online":    true,
				"last_seen":    time.Now(),
			}).Error
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to update availability"})
			return
		}

		services.SetDriverAvailability(context.Background(), driverID, *input.IsAvailable)

		c.JSON(200, gin.H{
			"message":     "Availability updated",
			"isAvailable": *input.IsAvailable,
		})
	}
}

// GetDriverStatus reports the driver's stored presence plus the cached
// availability flag other instances read
func GetDriverStatus(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.GetUint("userId")
		userType := c.GetString("userType")

		if userType != string(models.UserTypeDriver) {
			c.JSON(403, gin.H{"error": "Only drivers can view their status"})
			return
		}

		var presence models.DriverPresence
		if err := db.Where("driver_id = ?", driverID).First(&presence).Error; err != nil {
			c.JSON(404, gin.H{"error": "No presence recorded, send a location update first"})
			return
		}

		available, err := services.GetDriverAvailability(c.Request.Context(), driverID)
		if err != nil {
			available = presence.IsAvailable
		}

		c.JSON(200, gin.H{
			"isOnline":    presence.IsOnline,
			"isAvailable": available,
			"lat":         presence.Latitude,
			"lng":         presence.Longitude,
			"heading":     presence.Heading,
			"lastSeen":    presence.LastSeen,
		})
	}
}

// GoOffline clears the driver's presence
func GoOffline(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.GetUint("userId")
		userType := c.GetString("userType")

		if userType != string(models.UserTypeDriver) {
			c.JSON(403, gin.H{"error": "Only drivers can go offline"})
			return
		}

		err := db.Model(&models.DriverPresence{}).
			Where("driver_id = ?", driverID).
			Updates(map[string]any{
				"is_online":    false,
				"is_available": false,
				"last_seen":    time.Now(),
			}).Error
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to go offline"})
			return
		}

		services.SetDriverAvailability(context.Background(), driverID, false)

		c.JSON(200, gin.H{"message": "Driver is offline"})
	}
}
