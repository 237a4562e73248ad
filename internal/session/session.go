package session

import (
	"context"
	"errors"
	"time"
)

// Session is the authenticated identity stored by the platform session
// service. The gateway only reads it; creation and refresh belong to the
// main backend.
type Session struct {
	Token          string    `json:"token"`
	UserID         string    `json:"userId"` // empty for anonymous sessions
	IsLoggedIn     bool      `json:"isLoggedIn"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// Expired reports whether the session has passed its expiry time.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Validator resolves an opaque session token to a Session.
//
// Validate is idempotent from the gateway's perspective. Implementations may
// refresh a last-activity timestamp internally, but the gateway never depends
// on that.
type Validator interface {
	// Validate returns the session for the token, or ErrSessionNotFound
	// when the token is unknown or expired.
	Validate(ctx context.Context, token string) (*Session, error)
}

// ErrSessionNotFound is returned for unknown or expired tokens
var ErrSessionNotFound = errors.New("session not found")
