// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by all outbound Strava calls.
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
