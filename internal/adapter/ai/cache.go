// Package ai holds the language-model helpers of the emoticon engine: the
// fallback keyword suggester and the pieces it is built from.
package ai

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
)

// suggestionCache remembers accepted suggestions by keyword with FIFO eviction.
// It is safe for concurrent use.
type suggestionCache struct {
	capacity int
	mu       sync.RWMutex
	m        map[string]string
	ord      []string
}

// newSuggestionCache returns nil when capacity <= 0; a nil cache never hits.
func newSuggestionCache(capacity int) *suggestionCache {
	if capacity <= 0 {
		return nil
	}
	return &suggestionCache{capacity: capacity, m: make(map[string]string), ord: make([]string, 0, capacity)}
}

func (c *suggestionCache) get(keyword string) (string, bool) {
	if c == nil {
		return "", false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[keyFor(keyword)]
	return v, ok
}

func (c *suggestionCache) put(keyword, suggestion string) {
	if c == nil {
		return
	}
	k := keyFor(keyword)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.m[k]; exists {
		c.m[k] = suggestion
		return
	}
	if len(c.ord) >= c.capacity {
		old := c.ord[0]
		c.ord = c.ord[1:]
		delete(c.m, old)
	}
	c.m[k] = suggestion
	c.ord = append(c.ord, k)
}

func (c *suggestionCache) len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

func keyFor(text string) string {
	s := strings.TrimSpace(text)
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
