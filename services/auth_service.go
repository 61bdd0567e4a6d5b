// services/auth_service.go
package services

import (
	"context"
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"gorm.io/gorm"

	"github.com/buitrung87/strava-leaderboard/models"
)

// AuthService owns the OAuth flow: redirect out, callback exchange, account
// upsert, session establishment, logout, and the current-user endpoint.
type AuthService struct {
	DB       *gorm.DB
	Strava   *StravaClient
	Sync     *SyncService
	Sessions *session.Store
}

func NewAuthService(db *gorm.DB, strava *StravaClient, sync *SyncService, sessions *session.Store) *AuthService {
	return &AuthService{DB: db, Strava: strava, Sync: sync, Sessions: sessions}
}

// RedirectToStrava handles GET /auth/strava.
func (s *AuthService) RedirectToStrava(c *fiber.Ctx) error {
	return c.Redirect(s.Strava.AuthCodeURL(), fiber.StatusFound)
}

// HandleCallback handles GET /auth/callback: exchanges the code, upserts the
// account, establishes the session, and kicks off a background sync.
func (s *AuthService) HandleCallback(c *fiber.Ctx) error {
	if errParam := c.Query("error"); errParam != "" {
		return c.Redirect("/?error=" + errParam)
	}

	token, athlete, err := s.Strava.ExchangeCode(c.Context(), c.Query("code"))
	if err != nil {
		log.Printf("❌ OAuth error: %v", err)
		return c.Redirect("/?error=auth_failed")
	}

	user, err := s.upsertUser(token.AccessToken, token.RefreshToken, TokenExpiry(token), athlete)
	if err != nil {
		log.Printf("❌ Failed to upsert user %d: %v", athlete.ID, err)
		return c.Redirect("/?error=auth_failed")
	}

	sess, err := s.Sessions.Get(c)
	if err != nil {
		log.Printf("❌ Session error: %v", err)
		return c.Redirect("/?error=auth_failed")
	}
	sess.Set("user_id", user.ID)
	if err := sess.Save(); err != nil {
		log.Printf("❌ Failed to save session: %v", err)
		return c.Redirect("/?error=auth_failed")
	}

	// Sync in the background; failures are logged and do not affect the
	// session that was just established.
	go func(userID string) {
		if _, err := s.Sync.SyncUser(context.Background(), userID); err != nil {
			log.Printf("❌ Error syncing activities: %v", err)
		}
	}(user.ID)

	return c.Redirect("/?auth=success")
}

// upsertUser creates the account on first exchange and rotates credentials
// plus display fields on every subsequent one.
func (s *AuthService) upsertUser(accessToken, refreshToken string, expiresAt int64, athlete *StravaAthlete) (*models.User, error) {
	stravaID := formatAthleteID(athlete.ID)

	var user models.User
	err := s.DB.Where("strava_id = ?", stravaID).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{
			StravaID:      stravaID,
			Username:      athlete.Username,
			Firstname:     athlete.Firstname,
			Lastname:      athlete.Lastname,
			Profile:       athlete.Profile,
			ProfileMedium: athlete.ProfileMedium,
			AccessToken:   accessToken,
			RefreshToken:  refreshToken,
			ExpiresAt:     expiresAt,
		}
		if err := user.Validate(); err != nil {
			return nil, err
		}
		if err := s.DB.Create(&user).Error; err != nil {
			return nil, err
		}
		return &user, nil
	case err != nil:
		return nil, err
	default:
		updates := map[string]interface{}{
			"access_token":   accessToken,
			"refresh_token":  refreshToken,
			"expires_at":     expiresAt,
			"username":       athlete.Username,
			"firstname":      athlete.Firstname,
			"lastname":       athlete.Lastname,
			"profile":        athlete.Profile,
			"profile_medium": athlete.ProfileMedium,
		}
		if err := s.DB.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}
}

func formatAthleteID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Logout handles GET /auth/logout.
func (s *AuthService) Logout(c *fiber.Ctx) error {
	sess, err := s.Sessions.Get(c)
	if err == nil {
		if err := sess.Destroy(); err != nil {
			log.Printf("⚠️ Failed to destroy session: %v", err)
		}
	}
	return c.Redirect("/")
}

// GetCurrentUser handles GET /auth/me. Always 200; credentials are never
// serialized.
func (s *AuthService) GetCurrentUser(c *fiber.Ctx) error {
	sess, err := s.Sessions.Get(c)
	if err != nil {
		return c.JSON(fiber.Map{"user": nil})
	}

	userID, ok := sess.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(fiber.Map{"user": nil})
	}

	var user models.User
	if err := s.DB.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(fiber.Map{"user": nil})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch user"})
	}

	return c.JSON(fiber.Map{"user": user})
}
