package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is one connected Strava athlete together with the OAuth credentials
// needed to sync on their behalf. Credentials are rotated on every OAuth
// exchange and on every token refresh; the record itself is never deleted.
type User struct {
	ID            string     `gorm:"primaryKey" json:"id"`
	StravaID      string     `gorm:"uniqueIndex;not null" json:"stravaId"`
	Username      string     `gorm:"index;not null" json:"username"`
	Firstname     string     `json:"firstname,omitempty"`
	Lastname      string     `json:"lastname,omitempty"`
	Profile       string     `json:"profile,omitempty"`
	ProfileMedium string     `json:"profileMedium,omitempty"`
	AccessToken   string     `gorm:"not null" json:"-"`
	RefreshToken  string     `gorm:"not null" json:"-"`
	ExpiresAt     int64      `gorm:"not null" json:"-"` // epoch seconds
	LastSyncedAt  *time.Time `json:"lastSyncedAt,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Validate checks the fields the storage layer would otherwise reject late.
func (u *User) Validate() error {
	if u.StravaID == "" {
		return errors.New("user: stravaId is required")
	}
	if u.Username == "" {
		return errors.New("user: username is required")
	}
	if u.AccessToken == "" || u.RefreshToken == "" {
		return errors.New("user: access and refresh tokens are required")
	}
	return nil
}
