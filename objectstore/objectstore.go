// Package objectstore defines the durable storage used for synthesized audio.
package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrInvalidConfig is returned when a backend is missing required settings.
var ErrInvalidConfig = errors.New("objectstore: invalid configuration")

// Store is a bucket of immutable objects addressed by key.
type Store interface {
	// Put uploads body under key.
	Put(ctx context.Context, key string, body io.Reader, contentType string) error

	// SignedURL returns a read-only URL for key that stops working after ttl.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Delete removes key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error
}
