package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/greatowl/receptionist/internal/session"
)

// Cache stores completed replies keyed by the exact assembled message
// sequence. Only non-streaming turns consult it; a streamed turn always hits
// the live upstream.
type Cache struct {
	entries sync.Map
}

type entry struct {
	reply     string
	timestamp time.Time
}

func New() *Cache {
	return &Cache{}
}

// Key derives the cache key from the role and content of every message.
func Key(messages []session.Message) string {
	h := sha256.New()
	for _, msg := range messages {
		h.Write([]byte(msg.Role))
		h.Write([]byte(msg.Content))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get returns the cached reply for key, if any.
func (c *Cache) Get(key string) (string, bool) {
	if val, ok := c.entries.Load(key); ok {
		return val.(entry).reply, true
	}
	return "", false
}

// Put stores a reply under key.
func (c *Cache) Put(key, reply string) {
	c.entries.Store(key, entry{reply: reply, timestamp: time.Now()})
}
