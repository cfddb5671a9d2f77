package transfer

import (
	"context"

	"github.com/mediavault/mediavault/internal/scheduler"
)

// SizeUnknown marks a source object whose total size cannot be determined.
const SizeUnknown int64 = -1

// ObjectHandle describes a resolved source object.
type ObjectHandle struct {
	Locator   scheduler.Locator
	SizeBytes int64  // SizeUnknown when the source cannot report it
	Ref       string // driver-specific reference, e.g. a resolved URL
}

// Source yields object bytes from the remote messaging service.
type Source interface {
	// Resolve locates the object and reports its total size.
	Resolve(ctx context.Context, loc scheduler.Locator) (ObjectHandle, error)
	// Open returns a reader positioned at the start of the object.
	Open(ctx context.Context, handle ObjectHandle) (ObjectReader, error)
}

// ObjectReader reads source bytes in caller-sized chunks.
type ObjectReader interface {
	// ReadChunk fills up to len(buf) bytes and returns the count read.
	// Returns io.EOF at end of stream, possibly alongside a final count.
	ReadChunk(ctx context.Context, buf []byte) (int, error)
	Close() error
}
