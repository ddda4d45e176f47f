package zipstream

import (
	"errors"
	"fmt"
	"strings"
)

// ErrArchiveNotFound indicates that the requested identifier has no corresponding directory.
var ErrArchiveNotFound = errors.New("archive not found")

// ErrInvalidIdentifier indicates that an identifier could address something outside of the base directory.
var ErrInvalidIdentifier = errors.New("invalid archive identifier")

// ErrStreamCancelled indicates that the transfer was abandoned because the client went away or the server is shutting down.
var ErrStreamCancelled = errors.New("stream cancelled")

// ErrReapTimeout indicates that a producer did not exit within the reap timeout after being killed.
var ErrReapTimeout = errors.New("timed out waiting for producer to exit")

// SpawnError is returned when a producer could not be started.
// No response headers have been sent when this error is returned.
type SpawnError struct {
	// Command is the command line of the producer.
	Command []string

	// Err is the underlying error.
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %q: %s", strings.Join(e.Command, " "), e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ReadError is returned when reading from a producer failed for a reason other than end of stream.
type ReadError struct {
	// Offset is the number of bytes successfully read before the failure.
	Offset int64

	// Err is the underlying error.
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read archive stream at offset %d: %s", e.Offset, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// ExitError is returned when a producer ended its output but did not exit cleanly.
type ExitError struct {
	// Code is the exit code, or -1 if the process was terminated by a signal.
	Code int

	// Stderr is the tail of the producer's diagnostic output.
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("producer exited with status %d", e.Code)
	}
	return fmt.Sprintf("producer exited with status %d: %s", e.Code, e.Stderr)
}
