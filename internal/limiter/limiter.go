// Package limiter throttles repeated verification attempts per email, both per
// client and across all clients.
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Limiter tracks failed attempts and places temporary blocks.
type Limiter interface {
	// Allow reports whether an attempt is currently allowed and, if not, when to retry.
	Allow(ctx context.Context, key string, clientHash []byte) (bool, time.Duration, error)
	// Success clears the counters for (key, client).
	Success(ctx context.Context, key string, clientHash []byte) error
	// Failure records a failed attempt and reports whether it triggered a block.
	Failure(ctx context.Context, key string, clientHash []byte) (bool, time.Duration, error)
}

// Policy is the sliding window and lockout applied by every implementation.
type Policy struct {
	Window   time.Duration
	MaxFails int
	BlockFor time.Duration
}

// AccountWide is the client hash of the slot that counts failures from every client of a key.
var AccountWide = []byte{}

// HashClient returns a stable hash of a peer address so raw addresses are never stored.
func HashClient(addr string) []byte {
	h := sha256.Sum256([]byte(addr))
	return h[:]
}
