package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is a process-local TokenCache.
type MemoryCache struct {
	mu     sync.Mutex
	tokens map[string]Token
	now    func() time.Time
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{tokens: make(map[string]Token), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (Token, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tok, ok := c.tokens[key]
	if !ok {
		return Token{}, false, nil
	}
	if !tok.Valid(c.now()) {
		delete(c.tokens, key)
		return Token{}, false, nil
	}
	return tok, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, token Token) error {
	c.mu.Lock()
	c.tokens[key] = token
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tokens)
}
