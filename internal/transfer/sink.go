package transfer

import "context"

// Sink stores staged bytes durably and reports previously stored objects.
type Sink interface {
	// Upload stores the staging file and returns a durable remote identifier.
	Upload(ctx context.Context, stagingPath, displayName string) (remoteID string, err error)
	// Exists reports whether a previously returned identifier still resolves.
	Exists(ctx context.Context, remoteID string) (bool, error)
}
