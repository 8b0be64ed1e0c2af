package main

import (
	"time"

	"github.com/liamcoop/algoshield/internal/logger"
	"github.com/liamcoop/algoshield/sessions"
)

// API response models. Rules, contexts and actions are not listed here: they
// travel in their wire form through the codec picked from the request.

// HealthResponse is returned by GET /api/v1/health
type HealthResponse struct {
	Status         string          `json:"status" example:"healthy"`
	Error          string          `json:"error,omitempty"`
	Uptime         string          `json:"uptime,omitempty" example:"1h2m3s"`
	CatalogRules   int             `json:"catalog_rules" example:"3"`
	ActiveSessions int             `json:"active_sessions" example:"12"`
	Counters       logger.Counters `json:"counters"`
}

// SessionResponse represents a session in API responses
type SessionResponse struct {
	ID         string    `json:"id" example:"123e4567-e89b-12d3-a456-426614174000"`
	CreatedAt  time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
	LastSeen   time.Time `json:"last_seen" example:"2024-01-15T10:35:00Z"`
	Rules      int       `json:"rules" example:"3"`
	LocalRules int       `json:"local_rules" example:"0"`
	Activity   int       `json:"activity" example:"7"`
	Paused     bool      `json:"paused" example:"false"`
}

// SessionsListResponse represents the response for listing sessions
type SessionsListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

// ActivityResponse lists a session's recent actions, oldest first
type ActivityResponse struct {
	Entries []sessions.ActivityEntry `json:"entries"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"rule not found"`
	Details string `json:"details,omitempty" example:"rule noise-injection: rule not found"`
}
