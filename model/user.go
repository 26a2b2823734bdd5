package model

import (
	"errors"
	"fmt"
	"gochat/platform"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a registered account. The id is a uuid so it can double
// as the user_id scope on message rows.
type User struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Username  string    `gorm:"type:varchar(255);not null;unique" json:"username"`
	Email     string    `gorm:"type:varchar(255);not null;unique" json:"email"`
	Password  string    `gorm:"type:varchar(255);not null" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

func CreateUser(user *User) error {
	db := platform.DB
	return db.Create(user).Error
}

func UserExists(username, email string) bool {
	db := platform.DB
	var count int64
	db.Model(&User{}).Where("username = ? OR email = ?", username, email).Count(&count)
	return count > 0
}

func GetUserByUsername(username string) (*User, error) {
	db := platform.DB
	var user User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return &user, nil
}
