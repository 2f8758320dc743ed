package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Storage defines the object storage operations the pipeline needs
type Storage interface {
	// Upload stores data under bucket/key and returns its storage location
	Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)

	// PublicURL returns a publicly dereferenceable URL for bucket/key
	PublicURL(bucket, key string) string

	// Delete removes an object
	Delete(ctx context.Context, bucket, key string) error
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// KeyGenerator names uploaded receipt images
type KeyGenerator struct {
	clock TimeSource
}

// NewKeyGenerator creates a KeyGenerator using the system clock
func NewKeyGenerator() *KeyGenerator {
	return &KeyGenerator{clock: systemClock{}}
}

// NewKeyGeneratorWithClock creates a KeyGenerator with a custom clock for testing
func NewKeyGeneratorWithClock(clock TimeSource) *KeyGenerator {
	return &KeyGenerator{clock: clock}
}

// Keys returns one key per image, receipt_<epoch-ms>_<index>.jpg, sharing a
// single timestamp so the images of one capture sort together.
func (g *KeyGenerator) Keys(n int) []string {
	ms := g.clock.Now().UnixMilli()
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("receipt_%d_%d.jpg", ms, i)
	}
	return keys
}

func joinURL(base string, parts ...string) string {
	base = strings.TrimRight(base, "/")
	for _, p := range parts {
		base += "/" + strings.Trim(p, "/")
	}
	return base
}
