package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/buitrung87/strava-leaderboard/models"
	"github.com/buitrung87/strava-leaderboard/services"
)

func newTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Activity{}))

	sessions := session.New()
	stravaClient := services.NewStravaClient(db, &oauth2.Config{}, "http://127.0.0.1:0")
	syncService := services.NewSyncService(db, stravaClient)
	leaderboardService := services.NewLeaderboardService(db)
	authService := services.NewAuthService(db, stravaClient, syncService, sessions)

	app := fiber.New()
	SetupAuthRoutes(app, authService)
	SetupAPIRoutes(app, leaderboardService, syncService, sessions)
	return app, db
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &body))
	return body
}

func TestLeaderboardRejectsUnknownPeriod(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/leaderboard/year", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Contains(t, body["error"], "Invalid period")
}

func TestLeaderboardEmptyWindow(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/leaderboard/week", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "week", body["period"])
	assert.NotEmpty(t, body["startDate"])
	assert.Empty(t, body["leaderboard"])
}

func TestSyncWithoutSessionIsRejected(t *testing.T) {
	app, db := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/sync", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// The rejected request must not have written anything.
	var users, activities int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	require.NoError(t, db.Model(&models.Activity{}).Count(&activities).Error)
	assert.Zero(t, users)
	assert.Zero(t, activities)
}

func TestCurrentUserWithoutSession(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/auth/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	value, ok := body["user"]
	assert.True(t, ok)
	assert.Nil(t, value)
}

func TestStatsUnknownUser(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/stats/ghost", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "User not found", body["error"])
}

func TestStatsReturnsAllThreeWindows(t *testing.T) {
	app, db := newTestApp(t)

	user := models.User{
		StravaID:     "7001",
		Username:     "pia",
		AccessToken:  "a",
		RefreshToken: "r",
		ExpiresAt:    0,
	}
	require.NoError(t, db.Create(&user).Error)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/stats/"+user.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	for _, window := range []string{"today", "week", "month"} {
		stats, ok := body[window].(map[string]interface{})
		require.True(t, ok, "missing window %s", window)
		assert.Zero(t, stats["totalDistance"])
		assert.Zero(t, stats["activityCount"])
	}
	userBody, ok := body["user"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "pia", userBody["username"])
	// Credentials never serialized.
	assert.NotContains(t, userBody, "accessToken")
	assert.NotContains(t, userBody, "refreshToken")
}
