package iiko

import (
	"sync"
	"time"
)

type cachedToken struct {
	value     string
	expiresAt time.Time
}

// TokenCache keeps one bearer token per (base URL, api login). Entries are
// served strictly before their expiry.
type TokenCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]cachedToken
}

func NewTokenCache(ttl time.Duration) *TokenCache {
	return &TokenCache{ttl: ttl, now: time.Now, entries: map[string]cachedToken{}}
}

func tokenKey(baseURL, login string) string { return baseURL + "::" + login }

func (c *TokenCache) Get(baseURL, login string) (string, bool) {
	c.mu.RLock()
	e, ok := c.entries[tokenKey(baseURL, login)]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

func (c *TokenCache) Put(baseURL, login, token string) {
	c.mu.Lock()
	c.entries[tokenKey(baseURL, login)] = cachedToken{value: token, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}
