package zipstream

import (
	"errors"
	"net/http"
)

// errFinalized is returned when writing to a response which has already been finalized.
var errFinalized = errors.New("response already finalized")

// responseStream is an HTTP response carrying a streamed archive.
type responseStream struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	// prepared is whether the headers have been sent
	prepared bool

	// finalized is whether the response has been finalized
	finalized bool

	written int64
	chunks  int
}

func newResponseStream(w http.ResponseWriter) *responseStream {
	return &responseStream{
		w:  w,
		rc: http.NewResponseController(w),
	}
}

// prepare sends the archive headers.
// This cannot be undone: once it has been called, the status code is fixed.
func (rs *responseStream) prepare(filename string) error {
	if rs.finalized {
		return errFinalized
	}
	setArchiveHeaders(rs.w.Header(), filename)
	rs.w.WriteHeader(http.StatusOK)
	rs.prepared = true
	return rs.flush()
}

// write sends a chunk to the client.
// It returns once the chunk has been handed to the connection, so a slow client slows down the caller.
func (rs *responseStream) write(chunk []byte) error {
	if rs.finalized {
		return errFinalized
	}
	n, err := rs.w.Write(chunk)
	rs.written += int64(n)
	if err != nil {
		return err
	}
	rs.chunks++
	return rs.flush()
}

// finalize flushes whatever is left.
// Only the first call has any effect.
func (rs *responseStream) finalize() error {
	if rs.finalized {
		return nil
	}
	rs.finalized = true
	if !rs.prepared {
		return nil
	}
	return rs.flush()
}

func (rs *responseStream) flush() error {
	err := rs.rc.Flush()
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}
