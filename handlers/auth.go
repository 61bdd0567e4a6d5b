package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/buitrung87/strava-leaderboard/services"
)

func SetupAuthRoutes(app *fiber.App, authService *services.AuthService) {
	auth := app.Group("/auth")

	auth.Get("/strava", authService.RedirectToStrava)
	auth.Get("/callback", authService.HandleCallback)
	auth.Get("/logout", authService.Logout)
	auth.Get("/me", authService.GetCurrentUser)
}
