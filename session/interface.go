package session

import "context"

// Store defines the interface for call session storage.
//
// Implementations serialize access per call identifier only; distinct calls
// never contend. Every write replaces the stored value as a whole.
type Store interface {
	// Create stores data as a brand new session with Version set to 1,
	// replacing whatever was stored under the same call identifier.
	Create(ctx context.Context, data *CallSession) error

	// Load retrieves a session by call identifier.
	// A missing session is returned as an empty one with Version 0, not an error.
	Load(ctx context.Context, callID string) (*CallSession, error)

	// Save persists data with optimistic locking.
	// The stored version must equal data.Version (0 meaning "not stored yet").
	// On success Version is incremented and UpdatedAt refreshed.
	// Returns ErrVersionConflict if another writer got there first.
	Save(ctx context.Context, data *CallSession) error

	// Clear deletes a session. Clearing a missing session succeeds.
	Clear(ctx context.Context, callID string) error

	// Close closes the store and releases any resources.
	Close() error
}
