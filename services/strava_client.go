// services/strava_client.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/buitrung87/strava-leaderboard/models"
	"github.com/buitrung87/strava-leaderboard/utils"
)

// ErrReauthRequired marks a failed refresh-token grant. The stored refresh
// credential is stale or revoked and the athlete must go through the OAuth
// flow again; retrying the sync will not help.
var ErrReauthRequired = errors.New("strava: re-authentication required")

// OAuthScopes requested from Strava on the authorization redirect.
const OAuthScopes = "read,activity:read_all,profile:read_all"

// StravaAthlete is the athlete summary Strava embeds in its token response.
type StravaAthlete struct {
	ID            int64  `json:"id"`
	Username      string `json:"username"`
	Firstname     string `json:"firstname"`
	Lastname      string `json:"lastname"`
	Profile       string `json:"profile"`
	ProfileMedium string `json:"profile_medium"`
}

// StravaActivity matches one item of the /athlete/activities response.
type StravaActivity struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Distance           float64   `json:"distance"`
	MovingTime         int       `json:"moving_time"`
	ElapsedTime        int       `json:"elapsed_time"`
	TotalElevationGain float64   `json:"total_elevation_gain"`
	Type               string    `json:"type"`
	StartDate          time.Time `json:"start_date"`
	StartDateLocal     time.Time `json:"start_date_local"`
	Timezone           string    `json:"timezone"`
	AverageSpeed       float64   `json:"average_speed"`
	MaxSpeed           float64   `json:"max_speed"`
	AverageHeartrate   float64   `json:"average_heartrate"`
	MaxHeartrate       float64   `json:"max_heartrate"`
	HasHeartrate       bool      `json:"has_heartrate"`
	Map                struct {
		SummaryPolyline string `json:"summary_polyline"`
	} `json:"map"`
}

// StravaClient wraps the Strava OAuth endpoints and activity API. Token
// refreshes persist the rotated credentials before returning, guarded by a
// per-user lock so two concurrent syncs cannot race the rotation.
type StravaClient struct {
	OAuth      *oauth2.Config
	APIBaseURL string
	DB         *gorm.DB
	HTTPClient *http.Client

	refreshLocks keyedMutex
}

// NewStravaClient builds a client against the real Strava endpoints.
// apiBaseURL and the oauth2 endpoint are injectable for tests.
func NewStravaClient(db *gorm.DB, oauth *oauth2.Config, apiBaseURL string) *StravaClient {
	return &StravaClient{
		OAuth:      oauth,
		APIBaseURL: apiBaseURL,
		DB:         db,
		HTTPClient: utils.HTTPClient,
	}
}

// AuthCodeURL is the Strava authorization URL the browser is redirected to.
func (c *StravaClient) AuthCodeURL() string {
	return c.OAuth.AuthCodeURL("",
		oauth2.SetAuthURLParam("approval_prompt", "force"),
		oauth2.SetAuthURLParam("scope", OAuthScopes),
	)
}

// ExchangeCode trades an authorization code for tokens plus the athlete
// summary Strava includes in the token response.
func (c *StravaClient) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, *StravaAthlete, error) {
	token, err := c.OAuth.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("strava: code exchange failed: %w", err)
	}

	raw := token.Extra("athlete")
	if raw == nil {
		return nil, nil, errors.New("strava: token response missing athlete")
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("strava: invalid athlete payload: %w", err)
	}
	var athlete StravaAthlete
	if err := json.Unmarshal(payload, &athlete); err != nil {
		return nil, nil, fmt.Errorf("strava: invalid athlete payload: %w", err)
	}

	return token, &athlete, nil
}

// TokenExpiry extracts the epoch expiry from a token response, preferring
// Strava's explicit expires_at field over the computed Expiry.
func TokenExpiry(token *oauth2.Token) int64 {
	if v, ok := token.Extra("expires_at").(float64); ok && v > 0 {
		return int64(v)
	}
	return token.Expiry.Unix()
}

// EnsureAccessToken returns a bearer token valid for the given user,
// refreshing and persisting rotated credentials first when the stored expiry
// has passed. A failed refresh wraps ErrReauthRequired so callers can tell
// "re-authenticate" apart from transient fetch errors.
func (c *StravaClient) EnsureAccessToken(ctx context.Context, user *models.User) (string, error) {
	unlock := c.refreshLocks.lock(user.ID)
	defer unlock()

	if user.ExpiresAt > time.Now().Unix() {
		return user.AccessToken, nil
	}

	stale := &oauth2.Token{
		RefreshToken: user.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	}
	token, err := c.OAuth.TokenSource(ctx, stale).Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReauthRequired, err)
	}

	user.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		user.RefreshToken = token.RefreshToken
	}
	user.ExpiresAt = TokenExpiry(token)

	if err := c.DB.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"access_token":  user.AccessToken,
		"refresh_token": user.RefreshToken,
		"expires_at":    user.ExpiresAt,
	}).Error; err != nil {
		return "", fmt.Errorf("strava: failed to persist rotated tokens: %w", err)
	}

	return user.AccessToken, nil
}

// FetchActivities retrieves one page of the athlete's activities. Transport
// and non-200 failures are plain errors: transient, retry later.
func (c *StravaClient) FetchActivities(ctx context.Context, user *models.User, page, perPage int) ([]StravaActivity, error) {
	accessToken, err := c.EnsureAccessToken(ctx, user)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(c.APIBaseURL + "/athlete/activities")
	if err != nil {
		return nil, fmt.Errorf("strava: invalid API base URL %q: %w", c.APIBaseURL, err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("strava: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("strava: activity fetch failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("strava: activity fetch returned %d: %s", resp.StatusCode, string(body))
	}

	var activities []StravaActivity
	if err := json.NewDecoder(resp.Body).Decode(&activities); err != nil {
		return nil, fmt.Errorf("strava: failed to decode activities: %w", err)
	}

	return activities, nil
}

// keyedMutex hands out one mutex per key. Used to serialize token refreshes
// and syncs per account.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
