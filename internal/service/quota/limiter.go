// Package quota implements the per-client daily guest quota.
//
// A Limiter decorates a domain.QuotaStore (Redis in production, process
// memory for single-instance and test setups) with limit validation, client id
// normalisation, metrics, and fail-open behaviour on store outages.
package quota

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/fairyhunter13/emoticon-relay/internal/adapter/observability"
	"github.com/fairyhunter13/emoticon-relay/internal/domain"
)

// DefaultWindow is the rolling quota window.
const DefaultWindow = 24 * time.Hour

// UnknownClient is the id used when a request carries no client address.
const UnknownClient = "unknown"

// Limiter gates guest requests against a QuotaStore.
type Limiter struct {
	store domain.QuotaStore
}

// NewLimiter wraps store. A nil store allows everything.
func NewLimiter(store domain.QuotaStore) *Limiter {
	return &Limiter{store: store}
}

// CheckAndIncrement charges one request to clientID when it is under dailyLimit.
// Limits below 1 are raised to 1. Store errors fail open: a Redis outage must
// not lock every guest out of the relay.
func (l *Limiter) CheckAndIncrement(ctx context.Context, clientID string, dailyLimit int) (domain.QuotaDecision, error) {
	if dailyLimit < 1 {
		dailyLimit = 1
	}
	clientID = NormalizeClientID(clientID)
	if l == nil || l.store == nil {
		return domain.QuotaDecision{Allowed: true, Remaining: dailyLimit}, nil
	}

	dec, err := l.store.CheckAndIncrement(ctx, clientID, dailyLimit)
	if err != nil {
		observability.LoggerFromContext(ctx).Error("quota store error; failing open",
			slog.String("client_id", clientID),
			slog.Any("error", err))
		observability.RecordQuota("error")
		return domain.QuotaDecision{Allowed: true, Remaining: 0}, nil
	}
	if dec.Allowed {
		observability.RecordQuota("allowed")
	} else {
		observability.RecordQuota("denied")
	}
	return dec, nil
}

// NormalizeClientID takes the first entry of a forwarded-for style list and
// falls back to UnknownClient.
func NormalizeClientID(raw string) string {
	if i := strings.IndexByte(raw, ','); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return UnknownClient
	}
	return raw
}
