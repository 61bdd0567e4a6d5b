package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"github.com/buitrung87/strava-leaderboard/middleware"
	"github.com/buitrung87/strava-leaderboard/services"
)

func SetupAPIRoutes(app *fiber.App, leaderboardService *services.LeaderboardService, syncService *services.SyncService, sessions *session.Store) {
	api := app.Group("/api")

	// 🔓 Public routes
	api.Get("/leaderboard/:period", leaderboardService.GetLeaderboard)
	api.Get("/stats/:userId", leaderboardService.GetUserStats)
	api.Get("/activities/recent", leaderboardService.GetRecentActivities)

	// 🔐 Authenticated routes
	api.Post("/sync", middleware.SessionAuthMiddleware(sessions), syncService.SyncActivities)
}
