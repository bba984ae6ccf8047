// Package framestore holds the latest encoded screen frame per client.
// The registry decides which client ids are known; a Store only keeps the
// bytes, in process memory or in Redis so several hubs can share them.
package framestore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no frame is stored for the client.
var ErrNotFound = errors.New("frame not found")

// Store keeps one opaque blob per client id. Implementations must be safe
// for concurrent use.
type Store interface {
	// Put replaces the blob stored for clientID.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - clientID: The client the frame belongs to
	//   - blob: The encoded frame, stored as-is
	//
	// Returns:
	//   - An error if the backend write fails
	Put(ctx context.Context, clientID string, blob string) error

	// Get returns the blob stored for clientID, or ErrNotFound.
	Get(ctx context.Context, clientID string) (string, error)

	// Exists reports whether a blob is stored for clientID without loading it.
	Exists(ctx context.Context, clientID string) (bool, error)

	// Delete removes the blob for clientID. Deleting a missing entry is not
	// an error.
	Delete(ctx context.Context, clientID string) error

	// Len returns the number of stored frames.
	Len(ctx context.Context) (int, error)
}
