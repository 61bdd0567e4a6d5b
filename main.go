package main

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/buitrung87/strava-leaderboard/handlers"
	"github.com/buitrung87/strava-leaderboard/models"
	"github.com/buitrung87/strava-leaderboard/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/encryptcookie"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const stravaAPIBaseURL = "https://www.strava.com/api/v3"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	clientID := os.Getenv("STRAVA_CLIENT_ID")
	if clientID == "" {
		log.Fatal("STRAVA_CLIENT_ID environment variable not set")
	}
	clientSecret := os.Getenv("STRAVA_CLIENT_SECRET")
	if clientSecret == "" {
		log.Fatal("STRAVA_CLIENT_SECRET environment variable not set")
	}
	redirectURI := os.Getenv("STRAVA_REDIRECT_URI")
	if redirectURI == "" {
		log.Fatal("STRAVA_REDIRECT_URI environment variable not set")
	}
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	app := fiber.New()

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		allowedOriginsEnv = "http://localhost:" + port
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept",
		AllowCredentials: true,
	}))

	sessionSecret := os.Getenv("SESSION_SECRET")
	if sessionSecret == "" {
		log.Println("⚠️  SESSION_SECRET not set, sessions will reset on restart")
		sessionSecret = encryptcookie.GenerateKey()
	}
	// Derive a fixed-size key so any secret string works.
	digest := sha256.Sum256([]byte(sessionSecret))
	app.Use(encryptcookie.New(encryptcookie.Config{
		Key: base64.StdEncoding.EncodeToString(digest[:]),
	}))

	sessions := session.New(session.Config{
		KeyLookup:      "cookie:session_id",
		Expiration:     7 * 24 * time.Hour,
		CookieHTTPOnly: true,
	})

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Activity{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	oauthConfig := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Endpoint:     endpoints.Strava,
	}

	stravaClient := services.NewStravaClient(db, oauthConfig, stravaAPIBaseURL)
	syncService := services.NewSyncService(db, stravaClient)
	leaderboardService := services.NewLeaderboardService(db)
	authService := services.NewAuthService(db, stravaClient, syncService, sessions)

	handlers.SetupAuthRoutes(app, authService)
	handlers.SetupAPIRoutes(app, leaderboardService, syncService, sessions)

	app.Static("/", "./public")

	syncService.StartSyncScheduler()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("🚀 Server running on http://localhost:%s", port)
	log.Println("📊 Strava Leaderboard is ready!")
	log.Println("✅ Hourly activity sync scheduled")

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
