// services/leaderboard_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/buitrung87/strava-leaderboard/models"
)

const leaderboardLimit = 100

// LeaderboardService serves the ranked leaderboard, per-user statistics, and
// the recent-activity feed. All three are derived views computed from the
// activities table on every request; nothing is persisted.
type LeaderboardService struct {
	DB *gorm.DB
}

func NewLeaderboardService(db *gorm.DB) *LeaderboardService {
	return &LeaderboardService{DB: db}
}

// PeriodStart computes the inclusive lower bound of an aggregation window.
// "week" starts on the most recent Monday at local midnight.
func PeriodStart(period string, now time.Time) (time.Time, error) {
	switch period {
	case "day":
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), nil
	case "week":
		offset := int(now.Weekday()) - 1
		if now.Weekday() == time.Sunday {
			offset = 6
		}
		monday := now.AddDate(0, 0, -offset)
		return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, now.Location()), nil
	case "month":
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), nil
	default:
		return time.Time{}, fmt.Errorf("invalid period %q", period)
	}
}

// LeaderboardEntry is one ranked row of the leaderboard response.
type LeaderboardEntry struct {
	Rank          int     `json:"rank"`
	UserID        string  `json:"userId"`
	Username      string  `json:"username"`
	Firstname     string  `json:"firstname,omitempty"`
	Lastname      string  `json:"lastname,omitempty"`
	Profile       string  `json:"profile,omitempty"`
	ProfileMedium string  `json:"profileMedium,omitempty"`
	TotalDistance float64 `json:"totalDistance"`
	TotalKm       float64 `json:"totalKm"`
	TotalTime     int64   `json:"totalTime"`
	ActivityCount int64   `json:"activityCount"`
	AverageSpeed  float64 `json:"averageSpeed"`
}

// Leaderboard groups allowed activities since the window start by owner,
// sums distance and moving time, joins display fields, and ranks the top 100
// by total distance.
func (s *LeaderboardService) Leaderboard(start time.Time) ([]LeaderboardEntry, error) {
	var rows []struct {
		UserID        string
		Username      string
		Firstname     string
		Lastname      string
		Profile       string
		ProfileMedium string
		TotalDistance float64
		TotalTime     int64
		ActivityCount int64
	}

	err := s.DB.Raw(`
		SELECT a.user_id, u.username, u.firstname, u.lastname, u.profile, u.profile_medium,
		       SUM(a.distance) AS total_distance,
		       SUM(a.moving_time) AS total_time,
		       COUNT(*) AS activity_count
		FROM activities a
		INNER JOIN users u ON u.id = a.user_id
		WHERE a.start_date >= ? AND a.type IN ?
		GROUP BY a.user_id, u.username, u.firstname, u.lastname, u.profile, u.profile_medium
		ORDER BY total_distance DESC
		LIMIT ?
	`, start, models.AllowedTypes(), leaderboardLimit).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("leaderboard query failed: %w", err)
	}

	entries := make([]LeaderboardEntry, len(rows))
	for i, row := range rows {
		averageSpeed := 0.0
		if row.TotalTime > 0 {
			averageSpeed = row.TotalDistance / float64(row.TotalTime)
		}
		entries[i] = LeaderboardEntry{
			Rank:          i + 1,
			UserID:        row.UserID,
			Username:      row.Username,
			Firstname:     row.Firstname,
			Lastname:      row.Lastname,
			Profile:       row.Profile,
			ProfileMedium: row.ProfileMedium,
			TotalDistance: row.TotalDistance,
			TotalKm:       row.TotalDistance / 1000,
			TotalTime:     row.TotalTime,
			ActivityCount: row.ActivityCount,
			AverageSpeed:  averageSpeed,
		}
	}
	return entries, nil
}

// WindowStats is the sum/count aggregate for one fixed window.
type WindowStats struct {
	TotalDistance float64 `json:"totalDistance"`
	TotalTime     int64   `json:"totalTime"`
	ActivityCount int64   `json:"activityCount"`
}

// UserWindowStats aggregates one user's allowed activities since start,
// zero-filled when nothing matches.
func (s *LeaderboardService) UserWindowStats(userID string, start time.Time) (WindowStats, error) {
	var stats WindowStats
	err := s.DB.Model(&models.Activity{}).
		Select("COALESCE(SUM(distance), 0) AS total_distance, COALESCE(SUM(moving_time), 0) AS total_time, COUNT(*) AS activity_count").
		Where("user_id = ? AND start_date >= ? AND type IN ?", userID, start, models.AllowedTypes()).
		Scan(&stats).Error
	if err != nil {
		return stats, fmt.Errorf("stats query failed: %w", err)
	}
	return stats, nil
}

// RecentActivity is one row of the recent-activities feed, an activity
// joined with its owner's display fields.
type RecentActivity struct {
	ID         string    `json:"id"`
	StravaID   string    `json:"stravaId"`
	Name       string    `json:"name,omitempty"`
	Distance   float64   `json:"distance"`
	MovingTime int       `json:"movingTime"`
	Type       string    `json:"type"`
	StartDate  time.Time `json:"startDate"`
	Username   string    `json:"username"`
	Firstname  string    `json:"firstname,omitempty"`
	Lastname   string    `json:"lastname,omitempty"`
	Profile    string    `json:"profile,omitempty"`
}

// RecentActivities returns the newest activities across all accounts.
func (s *LeaderboardService) RecentActivities(limit int) ([]RecentActivity, error) {
	if limit <= 0 || limit > leaderboardLimit {
		limit = 10
	}

	var rows []RecentActivity
	err := s.DB.Raw(`
		SELECT a.id, a.strava_id, a.name, a.distance, a.moving_time, a.type, a.start_date,
		       u.username, u.firstname, u.lastname, u.profile
		FROM activities a
		INNER JOIN users u ON u.id = a.user_id
		ORDER BY a.start_date DESC
		LIMIT ?
	`, limit).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("recent activities query failed: %w", err)
	}
	return rows, nil
}

// GetLeaderboard handles GET /api/leaderboard/:period.
func (s *LeaderboardService) GetLeaderboard(c *fiber.Ctx) error {
	period := c.Params("period")

	start, err := PeriodStart(period, time.Now())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid period. Use: day, week, or month",
		})
	}

	entries, err := s.Leaderboard(start)
	if err != nil {
		log.Printf("❌ Error fetching leaderboard: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch leaderboard",
		})
	}

	return c.JSON(fiber.Map{
		"period":      period,
		"startDate":   start,
		"leaderboard": entries,
	})
}

// GetUserStats handles GET /api/stats/:userId.
func (s *LeaderboardService) GetUserStats(c *fiber.Ctx) error {
	userID := c.Params("userId")

	var user models.User
	if err := s.DB.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		log.Printf("❌ Error fetching user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch statistics"})
	}

	now := time.Now()
	windows := map[string]WindowStats{}
	for _, period := range []string{"day", "week", "month"} {
		start, _ := PeriodStart(period, now)
		stats, err := s.UserWindowStats(user.ID, start)
		if err != nil {
			log.Printf("❌ Error fetching stats for %s: %v", userID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch statistics"})
		}
		windows[period] = stats
	}

	return c.JSON(fiber.Map{
		"user": fiber.Map{
			"id":           user.ID,
			"username":     user.Username,
			"firstname":    user.Firstname,
			"lastname":     user.Lastname,
			"profile":      user.Profile,
			"lastSyncedAt": user.LastSyncedAt,
		},
		"today": windows["day"],
		"week":  windows["week"],
		"month": windows["month"],
	})
}

// GetRecentActivities handles GET /api/activities/recent.
func (s *LeaderboardService) GetRecentActivities(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "10"))
	if err != nil {
		limit = 10
	}

	activities, err := s.RecentActivities(limit)
	if err != nil {
		log.Printf("❌ Error fetching activities: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch activities"})
	}

	return c.JSON(fiber.Map{"activities": activities})
}
