package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Allowed activity kinds. Everything else Strava reports (rides, swims,
// walks) is ignored by sync and by every aggregate query.
const (
	TypeRun        = "Run"
	TypeVirtualRun = "VirtualRun"
)

// AllowedTypes returns the activity kinds that count toward the leaderboard.
func AllowedTypes() []string {
	return []string{TypeRun, TypeVirtualRun}
}

// Activity is one imported run. StravaID is the natural deduplication key:
// the unique index on it is what keeps repeated syncs from inserting the
// same run twice. Records are created and updated by sync, never deleted.
type Activity struct {
	ID                 string    `gorm:"primaryKey" json:"id"`
	StravaID           string    `gorm:"uniqueIndex;not null" json:"stravaId"`
	UserID             string    `gorm:"index;not null" json:"userId"`
	StravaUserID       string    `gorm:"index;not null" json:"stravaUserId"`
	Name               string    `json:"name,omitempty"`
	Distance           float64   `gorm:"not null" json:"distance"` // meters
	MovingTime         int       `json:"movingTime"`               // seconds
	ElapsedTime        int       `json:"elapsedTime"`
	TotalElevationGain float64   `json:"totalElevationGain"`
	Type               string    `gorm:"index;default:Run" json:"type"`
	StartDate          time.Time `gorm:"index;not null" json:"startDate"`
	StartDateLocal     time.Time `json:"startDateLocal"`
	Timezone           string    `json:"timezone,omitempty"`
	AverageSpeed       float64   `json:"averageSpeed"`
	MaxSpeed           float64   `json:"maxSpeed"`
	AverageHeartrate   float64   `json:"averageHeartrate,omitempty"`
	MaxHeartrate       float64   `json:"maxHeartrate,omitempty"`
	HasHeartrate       bool      `json:"hasHeartrate"`
	MapPolyline        string    `json:"mapPolyline,omitempty"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (a *Activity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Validate checks required fields and the referential invariant before the
// record reaches the database.
func (a *Activity) Validate() error {
	if a.StravaID == "" {
		return errors.New("activity: stravaId is required")
	}
	if a.UserID == "" {
		return errors.New("activity: userId is required")
	}
	if a.Distance < 0 {
		return errors.New("activity: distance must be non-negative")
	}
	if a.StartDate.IsZero() {
		return errors.New("activity: startDate is required")
	}
	return nil
}
