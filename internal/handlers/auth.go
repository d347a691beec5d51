package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/devitachiui22/aotravel-sub002/internal/models"
	"github.com/devitachiui22/aotravel-sub002/pkg/utils"
)

// Register creates a user account. Drivers start unverified and cannot
// accept rides until an operator flips the flag.
func Register(db *gorm.DB, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Username    string `json:"username" binding:"required"`
			Email       string `json:"email" binding:"required,email"`
			Password    string `json:"password" binding:"required,min=8"`
			PhoneNumber string `json:"phoneNumber"`
			UserType    string `json:"userType" binding:"required"`
		}

		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		if input.UserType != string(models.UserTypePassenger) && input.UserType != string(models.UserTypeDriver) {
			c.JSON(400, gin.H{"error": "userType must be passenger or driver"})
			return
		}

		user := models.User{
			Username:    input.Username,
			Email:       input.Email,
			Password:    input.Password,
			PhoneNumber: input.PhoneNumber,
			UserType:    input.UserType,
			Verified:    input.UserType == string(models.UserTypePassenger),
		}
		if err := user.HashPassword(); err != nil {
			c.JSON(500, gin.H{"error": "Failed to hash password"})
			return
		}

		// The wallet account is opened together with the user.
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
			return tx.Create(&models.Account{
				UserID: user.ID,
				Status: models.AccountStatusActive,
			}).Error
		})
		if err != nil {
			c.JSON(409, gin.H{"error": "Username or email already taken"})
			return
		}

		token, err := utils.GenerateToken(&user, jwtSecret)
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to generate token"})
			return
		}

		c.JSON(201, gin.H{
			"token": token,
			"user": gin.H{
				"id":       user.ID,
				"username": user.Username,
				"email":    user.Email,
				"userType": user.UserType,
			},
		})
	}
}

// Login exchanges credentials for a JWT.
func Login(db *gorm.DB, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}

		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		var user models.User
		if err := db.Where("email = ?", input.Email).First(&user).Error; err != nil {
			c.JSON(401, gin.H{"error": "Invalid credentials"})
			return
		}
		if err := user.CheckPassword(input.Password); err != nil {
			c.JSON(401, gin.H{"error": "Invalid credentials"})
			return
		}
		if user.Blocked {
			c.JSON(403, gin.H{"error": "Account is blocked"})
			return
		}

		token, err := utils.GenerateToken(&user, jwtSecret)
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to generate token"})
			return
		}

		c.JSON(200, gin.H{
			"token": token,
			"user": gin.H{
				"id":       user.ID,
				"username": user.Username,
				"email":    user.Email,
				"userType": user.UserType,
				"rating":   user.Rating,
			},
		})
	}
}
