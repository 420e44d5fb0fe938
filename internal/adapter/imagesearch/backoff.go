package imagesearch

import (
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// linearBackOff waits attempt*step before each retry.
type linearBackOff struct {
	step    time.Duration
	attempt int
}

var _ backoff.BackOff = (*linearBackOff)(nil)

func newLinearBackOff(step time.Duration) *linearBackOff {
	return &linearBackOff{step: step}
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.step
}

func (b *linearBackOff) Reset() { b.attempt = 0 }
