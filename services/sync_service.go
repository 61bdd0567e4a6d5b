// services/sync_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/buitrung87/strava-leaderboard/models"
)

// ErrUserNotFound is returned when a sync is requested for an unknown account.
var ErrUserNotFound = errors.New("sync: user not found")

const (
	syncPageSize = 50
	// Hard cap on pages per sync (4 × 50 = last 200 activities). Bounds
	// API cost and historical depth per invocation; older history is
	// deliberately not imported.
	syncMaxPages = 4
)

// SyncResult reports one sync invocation: items seen in the allowed kinds
// and how many of them were new.
type SyncResult struct {
	TotalSynced   int `json:"totalSynced"`
	NewActivities int `json:"newActivities"`
}

// SyncService reconciles remote Strava activities into the local Activity
// table, keyed on the remote activity id.
type SyncService struct {
	DB     *gorm.DB
	Strava *StravaClient

	syncLocks keyedMutex
}

func NewSyncService(db *gorm.DB, strava *StravaClient) *SyncService {
	return &SyncService{DB: db, Strava: strava}
}

// SyncUser imports the user's recent runs. Page-fetch failures abort the
// remaining pages; per-item persistence failures are logged and skipped so
// one bad record cannot sink the batch. LastSyncedAt is stamped either way.
func (s *SyncService) SyncUser(ctx context.Context, userID string) (SyncResult, error) {
	var result SyncResult

	var user models.User
	if err := s.DB.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return result, ErrUserNotFound
		}
		return result, fmt.Errorf("sync: failed to load user: %w", err)
	}

	unlock := s.syncLocks.lock(user.ID)
	defer unlock()

	log.Printf("🔄 Syncing activities for user: %s", user.Username)

	var fetchErr error
	for page := 1; page <= syncMaxPages; page++ {
		activities, err := s.Strava.FetchActivities(ctx, &user, page, syncPageSize)
		if err != nil {
			fetchErr = err
			break
		}
		if len(activities) == 0 {
			break
		}

		for _, remote := range activities {
			if remote.Type != models.TypeRun && remote.Type != models.TypeVirtualRun {
				continue
			}
			if err := s.reconcile(&user, remote, &result); err != nil {
				log.Printf("⚠️ Error saving activity %d: %v", remote.ID, err)
				continue
			}
			result.TotalSynced++
		}
	}

	now := time.Now()
	if err := s.DB.Model(&models.User{}).Where("id = ?", user.ID).
		Update("last_synced_at", now).Error; err != nil {
		log.Printf("⚠️ Failed to stamp last_synced_at for %s: %v", user.Username, err)
	}

	if fetchErr != nil {
		return result, fetchErr
	}

	log.Printf("✅ Synced %d activities (%d new) for %s",
		result.TotalSynced, result.NewActivities, user.Username)
	return result, nil
}

// reconcile inserts a new Activity or updates the mutable numeric fields of
// an existing one. Identity fields, type, start date, and heart-rate fields
// are never touched on update.
func (s *SyncService) reconcile(user *models.User, remote StravaActivity, result *SyncResult) error {
	stravaID := strconv.FormatInt(remote.ID, 10)

	var existing models.Activity
	err := s.DB.Where("strava_id = ?", stravaID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		activity := models.Activity{
			StravaID:           stravaID,
			UserID:             user.ID,
			StravaUserID:       user.StravaID,
			Name:               remote.Name,
			Distance:           remote.Distance,
			MovingTime:         remote.MovingTime,
			ElapsedTime:        remote.ElapsedTime,
			TotalElevationGain: remote.TotalElevationGain,
			Type:               remote.Type,
			StartDate:          remote.StartDate,
			StartDateLocal:     remote.StartDateLocal,
			Timezone:           remote.Timezone,
			AverageSpeed:       remote.AverageSpeed,
			MaxSpeed:           remote.MaxSpeed,
			AverageHeartrate:   remote.AverageHeartrate,
			MaxHeartrate:       remote.MaxHeartrate,
			HasHeartrate:       remote.HasHeartrate,
			MapPolyline:        remote.Map.SummaryPolyline,
		}
		if err := activity.Validate(); err != nil {
			return err
		}
		if err := s.DB.Create(&activity).Error; err != nil {
			return err
		}
		result.NewActivities++
		return nil
	case err != nil:
		return err
	default:
		return s.DB.Model(&models.Activity{}).Where("strava_id = ?", stravaID).
			Updates(map[string]interface{}{
				"distance":             remote.Distance,
				"moving_time":          remote.MovingTime,
				"elapsed_time":         remote.ElapsedTime,
				"total_elevation_gain": remote.TotalElevationGain,
				"average_speed":        remote.AverageSpeed,
				"max_speed":            remote.MaxSpeed,
			}).Error
	}
}

// SyncActivities handles POST /api/sync for the session's account. The
// session gate runs in middleware; user_id is already in Locals.
func (s *SyncService) SyncActivities(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	result, err := s.SyncUser(c.Context(), userID)
	if err != nil {
		log.Printf("❌ Error syncing activities: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to sync activities",
		})
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"message":       "Activities synced successfully",
		"totalSynced":   result.TotalSynced,
		"newActivities": result.NewActivities,
	})
}

// SyncAll runs SyncUser for every known account. One account's failure is
// logged and does not block the rest.
func (s *SyncService) SyncAll(ctx context.Context) {
	var users []models.User
	if err := s.DB.Find(&users).Error; err != nil {
		log.Printf("❌ Failed to list users for sync: %v", err)
		return
	}

	log.Printf("🔄 Syncing activities for %d users", len(users))
	for _, user := range users {
		if _, err := s.SyncUser(ctx, user.ID); err != nil {
			log.Printf("❌ Error syncing user %s: %v", user.Username, err)
		}
	}
}
