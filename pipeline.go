package zipstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultChunkSize is the largest amount of archive data forwarded to the client at once.
const DefaultChunkSize = 100 * 1024

// Pipeline streams archives produced by a Producer into HTTP responses.
// A Pipeline holds no per-request state and may be used concurrently.
type Pipeline struct {
	producer  Producer
	chunkSize int
	delay     time.Duration
	filename  string
	logger    *slog.Logger
	metrics   *Metrics
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithChunkSize sets the maximum chunk size. Non-positive sizes are ignored.
func WithChunkSize(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.chunkSize = n
		}
	}
}

// WithDelay sets a pause inserted between consecutive chunks.
func WithDelay(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.delay = d
		}
	}
}

// WithFilename sets the filename suggested to the client.
func WithFilename(name string) PipelineOption {
	return func(p *Pipeline) {
		if name != "" {
			p.filename = name
		}
	}
}

// WithLogger sets the logger of the pipeline.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics sets where the pipeline records metrics.
func WithMetrics(m *Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// NewPipeline creates a Pipeline.
func NewPipeline(producer Producer, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		producer:  producer,
		chunkSize: DefaultChunkSize,
		filename:  DefaultFilename,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result describes what a pipeline run sent to the client.
type Result struct {
	// HeadersSent is whether the response status and headers were sent.
	// If not, the caller may still send an error response.
	HeadersSent bool

	// Bytes is the number of body bytes written.
	Bytes int64

	// Chunks is the number of chunks written.
	Chunks int

	// Exit is set when the producer completed its output but then exited with a failure status.
	// The archive was still sent in full, so this is not returned as an error.
	Exit *ExitError
}

// Stream archives dir and streams it into w until the archive is complete, ctx is done, or either side fails.
// The worker is terminated and reaped and the response is finalized on every return path.
//
// Errors returned before the headers were sent are *SpawnError or ErrStreamCancelled.
// Once headers have been sent an error means the client received a truncated archive.
// A producer which fails only after its output ended is reported in Result.Exit instead.
func (p *Pipeline) Stream(ctx context.Context, w http.ResponseWriter, dir string) (res Result, err error) {
	log := p.logger.With("dir", dir)

	if cerr := ctx.Err(); cerr != nil {
		return res, cancelled(cerr)
	}

	start := time.Now()
	stream, err := p.producer.Start(ctx, dir)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			err = cancelled(cerr)
		}
		p.metrics.observeResult(resultOf(err))
		return res, err
	}
	p.metrics.producerStarted()
	if ps, ok := stream.(interface{ Pid() int }); ok {
		log = log.With("pid", ps.Pid())
	}
	log.Debug("started archive producer")

	rs := newResponseStream(w)
	defer func() {
		var exit *ExitError
		exit, err = p.cleanup(log, stream, rs, err)
		res = Result{
			HeadersSent: rs.prepared,
			Bytes:       rs.written,
			Chunks:      rs.chunks,
			Exit:        exit,
		}
		p.metrics.producerStopped(start)
		p.metrics.observeResult(resultOf(err))
	}()

	err = rs.prepare(p.filename)
	if err != nil {
		return res, cancelled(err)
	}

	return res, p.pump(ctx, log, stream, rs)
}

// pump forwards chunks from the stream to the response until the stream ends.
// At most one chunk is held at a time: the next read starts only after the previous write completed.
func (p *Pipeline) pump(ctx context.Context, log *slog.Logger, stream Stream, rs *responseStream) error {
	buf := make([]byte, p.chunkSize)
	var offset int64
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			// the delay separates chunks, so there is none before the first or after the last
			if rs.chunks > 0 && p.delay > 0 {
				if serr := sleep(ctx, p.delay); serr != nil {
					return cancelled(serr)
				}
			}
			if werr := rs.write(buf[:n]); werr != nil {
				if cerr := ctx.Err(); cerr != nil {
					return cancelled(cerr)
				}
				return cancelled(werr)
			}
			p.metrics.observeChunk(n)
			log.Debug("sent archive chunk", "size", n, "offset", offset)
			offset += int64(n)
		}

		switch {
		case err == io.EOF:
			// a producer killed through ctx also ends its output
			if cerr := ctx.Err(); cerr != nil {
				return cancelled(cerr)
			}
			return nil
		case err != nil:
			if cerr := ctx.Err(); cerr != nil {
				return cancelled(cerr)
			}
			return &ReadError{Offset: offset, Err: err}
		}
	}
}

// cleanup terminates the stream and finalizes the response.
// The first error wins; later ones are only logged.
// A failure exit status after a complete output is returned separately, as it leaves the archive intact.
func (p *Pipeline) cleanup(log *slog.Logger, stream Stream, rs *responseStream, err error) (*ExitError, error) {
	var exit *ExitError
	terr := stream.Terminate()
	switch {
	case terr == nil:
	case err == nil && errors.As(terr, &exit):
		log.Warn("archive producer exited with a failure status after completing its output",
			"status", exit.Code,
			"stderr", exit.Stderr,
		)
	case err == nil:
		err = terr
	default:
		log.Error("failed to stop archive producer", "error", terr)
	}

	ferr := rs.finalize()
	if ferr != nil {
		if err == nil {
			err = cancelled(ferr)
		} else {
			log.Debug("failed to finalize response", "error", ferr)
		}
	}

	return exit, err
}

// sleep pauses for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func cancelled(cause error) error {
	if errors.Is(cause, ErrStreamCancelled) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrStreamCancelled, cause)
}
