package config

import (
	"time"
)

// SearchRetryConfig holds the page retry and pacing settings of the emoticon search client.
type SearchRetryConfig struct {
	// Attempts is the total number of page requests, including the first one.
	Attempts int
	// Step is the linear backoff unit; attempt n waits n*Step before the next try.
	Step time.Duration
	// ImageDelay separates sequential image downloads within one search.
	ImageDelay time.Duration
}

// GetSearchRetryConfig returns retry settings appropriate for the current environment.
// In test environments the delays collapse so suites stay fast.
func (c Config) GetSearchRetryConfig() SearchRetryConfig {
	if c.IsTest() {
		return SearchRetryConfig{Attempts: c.EmoticonPageAttempts, Step: time.Millisecond, ImageDelay: 0}
	}
	return SearchRetryConfig{Attempts: c.EmoticonPageAttempts, Step: c.EmoticonRetryStep, ImageDelay: c.EmoticonImageDelay}
}

// GetChatBackoffConfig returns the exponential backoff used for upstream 429 responses.
func (c Config) GetChatBackoffConfig() (maxRetries int, initialInterval, maxInterval time.Duration) {
	if c.IsTest() {
		return c.ChatRateLimitRetries, 10 * time.Millisecond, 50 * time.Millisecond
	}
	return c.ChatRateLimitRetries, 1 * time.Second, 8 * time.Second
}
