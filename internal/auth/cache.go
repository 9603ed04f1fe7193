package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// sessionCache remembers verified tokens for ttl. Tokens are stored hashed.
type sessionCache struct {
	mu   sync.Mutex
	seen map[string]cachedSession
	ttl  time.Duration
	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

type cachedSession struct {
	user    User
	expires time.Time
}

func newSessionCache(ttl time.Duration) *sessionCache {
	c := &sessionCache{
		seen: make(map[string]cachedSession),
		ttl:  ttl,
		now:  time.Now,
		stop: make(chan struct{}),
	}
	go c.cleanup()
	return c
}

func (c *sessionCache) get(token string) (User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.seen[tokenKey(token)]
	if !ok || c.now().After(s.expires) {
		return User{}, false
	}
	return s.user, true
}

func (c *sessionCache) put(token string, u User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[tokenKey(token)] = cachedSession{user: u, expires: c.now().Add(c.ttl)}
}

func (c *sessionCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *sessionCache) close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *sessionCache) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *sessionCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, s := range c.seen {
		if now.After(s.expires) {
			delete(c.seen, key)
		}
	}
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
