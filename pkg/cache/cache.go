// Package cache stores OAuth access tokens between tool calls.
package cache

import (
	"context"
	"time"
)

// Token is a cached bearer token.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Valid reports whether the token is usable at now.
func (t Token) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt)
}

// TokenCache is a keyed store of tokens. Expired entries read as misses.
// Concurrent writers for one key are last-writer-wins.
type TokenCache interface {
	Get(ctx context.Context, key string) (Token, bool, error)
	Set(ctx context.Context, key string, token Token) error
}
