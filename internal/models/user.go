package models

import (
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type UserType string

const (
	UserTypePassenger UserType = "passenger"
	UserTypeDriver    UserType = "driver"
	UserTypeAdmin     UserType = "admin"
)

type User struct {
	gorm.Model
	Username     string  `json:"username" gorm:"column:username;unique;not null"`
	Email        string  `json:"email" gorm:"column:email;unique;not null"`
	Password     string  `json:"-" gorm:"-"` // Temporary field for password handling
	PasswordHash string  `json:"-" gorm:"column:password_hash;not null"`
	PhoneNumber  string  `json:"phoneNumber" gorm:"column:phone_number"`
	UserType     string  `json:"userType" gorm:"column:user_type;not null"`
	Verified     bool    `json:"verified" gorm:"column:verified;not null;default:false"`
	Blocked      bool    `json:"blocked" gorm:"column:blocked;not null;default:false"`
	Rating       float64 `json:"rating" gorm:"column:rating;not null;default:5"`
	CarPlate     string  `json:"carPlate,omitempty" gorm:"column:car_plate;default:''"`
	CarMake      string  `json:"carMake,omitempty" gorm:"column:car_make;default:''"`
	CarColor     string  `json:"carColor,omitempty" gorm:"column:car_color;default:''"`
}

// TableName specifies the table name
func (User) TableName() string {
	return "users"
}

func (u *User) HashPassword() error {
	if u.Password == "" {
		return nil
	}
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}
