package zipstream

import (
	"context"
	"io"
)

// Producer starts workers which write a ZIP archive of a directory.
type Producer interface {
	// Start begins archiving dir.
	// The worker is bound to ctx: once ctx is done, pending reads unblock and the worker is stopped.
	// A failure to start must be reported as a *SpawnError.
	Start(ctx context.Context, dir string) (Stream, error)
}

// Stream is a running archive worker.
type Stream interface {
	// Read reads the next part of the archive.
	// Returns io.EOF once the archive is complete.
	io.Reader

	// Terminate stops the worker if it is still running and waits for it to exit.
	// After a clean end of stream, Terminate reports whether the worker itself succeeded.
	// Terminate must be called exactly once, and must not be called concurrently with Read.
	Terminate() error
}
