package zipstream

import (
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/sync/semaphore"
)

// NotFoundMessage is the body of the response to a request for an archive which does not exist.
const NotFoundMessage = "Archive does not exist or has been removed.\n"

// Server answers archive requests by resolving the archive and running the pipeline over it.
type Server struct {
	locator  *Locator
	pipeline *Pipeline
	limit    *semaphore.Weighted
	logger   *slog.Logger
	metrics  *Metrics
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMaxConcurrent caps the number of archives produced at once.
// Requests beyond the cap wait for a slot. Zero means no cap.
func WithMaxConcurrent(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.limit = semaphore.NewWeighted(n)
		}
	}
}

// WithServerLogger sets the logger of the server.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithServerMetrics sets where the server records lookups which did not reach the pipeline.
func WithServerMetrics(m *Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates a Server.
func NewServer(locator *Locator, pipeline *Pipeline, opts ...ServerOption) *Server {
	s := &Server{
		locator:  locator,
		pipeline: pipeline,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeArchive streams the archive with the given identifier.
//
// Unknown identifiers get a 404 without starting a producer.
// If streaming fails after the headers were sent, the connection is aborted so the client sees a truncated body
// instead of a well-formed end of response.
func (s *Server) ServeArchive(w http.ResponseWriter, r *http.Request, id string) {
	log := s.logger.With("archive", id, "remote", r.RemoteAddr)

	dir, err := s.locator.Resolve(id)
	switch {
	case errors.Is(err, ErrArchiveNotFound), errors.Is(err, ErrInvalidIdentifier):
		log.Info("archive not found", "error", err)
		s.metrics.observeResult(ResultNotFound)
		http.Error(w, NotFoundMessage, http.StatusNotFound)
		return
	case err != nil:
		log.Error("failed to locate archive", "error", err)
		s.metrics.observeResult(ResultFailed)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if s.limit != nil {
		if err := s.limit.Acquire(r.Context(), 1); err != nil {
			log.Warn("request cancelled while waiting for a producer slot", "error", err)
			s.metrics.observeResult(ResultCancelled)
			return
		}
		defer s.limit.Release(1)
	}

	res, err := s.pipeline.Stream(r.Context(), w, dir)
	attrs := []any{"bytes", res.Bytes, "chunks", res.Chunks}
	var spawnErr *SpawnError
	switch {
	case err == nil:
		if res.Exit != nil {
			attrs = append(attrs, "producer_status", res.Exit.Code)
		}
		log.Info("archive sent", attrs...)
		return
	case errors.Is(err, ErrStreamCancelled):
		log.Warn("download was interrupted", append(attrs, "error", err)...)
	case errors.As(err, &spawnErr):
		log.Error("failed to start archive producer", "error", err)
	default:
		log.Error("archive stream failed", append(attrs, "error", err)...)
	}

	if !res.HeadersSent {
		if !errors.Is(err, ErrStreamCancelled) {
			http.Error(w, "Failed to create archive.\n", http.StatusInternalServerError)
		}
		return
	}
	panic(http.ErrAbortHandler)
}
