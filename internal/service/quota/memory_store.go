package quota

import (
	"context"
	"sync"
	"time"

	"github.com/fairyhunter13/emoticon-relay/internal/domain"
)

type record struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
}

// MemoryQuotaStore keeps guest counters in process memory. Each client has its
// own lock, so calls for different clients only share the brief map lookup.
// Records live for the life of the process.
type MemoryQuotaStore struct {
	mu      sync.Mutex
	records map[string]*record
	window  time.Duration
	now     func() time.Time
}

// NewMemoryQuotaStore returns an in-process store with the given rolling window.
func NewMemoryQuotaStore(window time.Duration) *MemoryQuotaStore {
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryQuotaStore{records: map[string]*record{}, window: window, now: time.Now}
}

func (s *MemoryQuotaStore) recordFor(clientID string) *record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[clientID]
	if !ok {
		rec = &record{}
		s.records[clientID] = rec
	}
	return rec
}

// CheckAndIncrement implements domain.QuotaStore.
func (s *MemoryQuotaStore) CheckAndIncrement(_ context.Context, clientID string, dailyLimit int) (domain.QuotaDecision, error) {
	rec := s.recordFor(clientID)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	now := s.now()
	if rec.windowStart.IsZero() || now.Sub(rec.windowStart) > s.window {
		rec.count = 0
		rec.windowStart = now
	}
	if rec.count >= dailyLimit {
		return domain.QuotaDecision{Allowed: false, Remaining: 0}, nil
	}
	rec.count++
	return domain.QuotaDecision{Allowed: true, Remaining: dailyLimit - rec.count}, nil
}

// Count returns the stored count for a client, for diagnostics and tests.
func (s *MemoryQuotaStore) Count(clientID string) int {
	rec := s.recordFor(clientID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.count
}
