// Package session persists devpi logins between program runs.
//
// The devpi command-line workflow logs in once and reuses the resulting
// credential for later invocations. This package provides that persistence
// for programs built on the client library: a Login records the server URL,
// username, and token together with an expiry, and a Store keeps Logins in
// a backend.
//
// # Usage
//
// Save a login after creating a token:
//
//	store, err := session.NewFileStore(nil, "")
//	if err != nil {
//	    return err
//	}
//	login := session.New("https://devpi.example.com", "alice", secret, session.DefaultTTL)
//	if err := store.Set(ctx, login); err != nil {
//	    return err
//	}
//
// Later, rebuild a client from it with devpi.Restore.
//
// Only token logins are persisted; passwords are never written to disk.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is the default login duration.
const DefaultTTL = 30 * 24 * time.Hour

// Login stores a persisted devpi credential.
type Login struct {
	ID        string    `json:"id"`
	BaseURL   string    `json:"base_url"`
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired returns true if the login has expired.
func (l *Login) IsExpired() bool {
	return time.Now().After(l.ExpiresAt)
}

// Store is the interface for login storage backends.
type Store interface {
	// Get retrieves a login by ID.
	// Returns nil, nil if the login doesn't exist or has expired.
	Get(ctx context.Context, id string) (*Login, error)

	// Set stores a login.
	Set(ctx context.Context, login *Login) error

	// Delete removes a login.
	Delete(ctx context.Context, id string) error

	// Cleanup removes expired logins.
	Cleanup(ctx context.Context) error
}

// New creates a Login for the given server and token.
func New(baseURL, username, token string, ttl time.Duration) *Login {
	now := time.Now()
	return &Login{
		ID:        uuid.NewString(),
		BaseURL:   baseURL,
		Username:  username,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}
