package redis

import (
	"time"

	"github.com/mcoot/stakegame/internal/storage"
)

// Config holds Redis connection and behavior settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// ParticipantTTL expires guest identities; zero keeps them forever
	ParticipantTTL time.Duration
	// ClosedTTL expires rooms and matches once they are terminal and settled.
	// Escrow records never expire.
	ClosedTTL time.Duration

	// Retry bounds retries of transient failures and lost WATCH races
	Retry storage.RetryPolicy
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:            "redis://localhost:6379",
		PoolSize:       10,
		MinIdleConns:   2,
		ParticipantTTL: 24 * time.Hour,
		ClosedTTL:      7 * 24 * time.Hour,
		Retry:          storage.DefaultRetryPolicy(),
	}
}
