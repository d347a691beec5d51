package models

import (
	"time"

	"gorm.io/gorm"
)

// DriverPresence is a driver's last known location and availability.
// Populated when the driver comes online, cleared when they go offline.
type DriverPresence struct {
	gorm.Model
	DriverID    uint      `json:"driverId" gorm:"not null;uniqueIndex"`
	Latitude    float64   `json:"lat" gorm:"not null"`
	Longitude   float64   `json:"lng" gorm:"not null"`
	Heading     float64   `json:"heading" gorm:"not null;default:0"`
	IsOnline    bool      `json:"isOnline" gorm:"not null;default:false"`
	IsAvailable bool      `json:"isAvailable" gorm:"not null;default:false"`
	LastSeen    time.Time `json:"lastSeen" gorm:"not null"`
	Driver      *User     `json:"driver,omitempty" gorm:"foreignKey:DriverID"`
}

// TableName specifies the table name
func (DriverPresence) TableName() string {
	return "driver_presences"
}
