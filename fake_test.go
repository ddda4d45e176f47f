package zipstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// script describes what a fake stream produces.
type script struct {
	// chunks are returned by consecutive reads
	chunks [][]byte

	// gate, if set, holds the end of stream until it is closed
	gate chan struct{}

	// block makes the stream hang after its chunks until it is killed
	block bool

	// readErr is returned after the chunks instead of io.EOF
	readErr error

	// terminateErr is returned by Terminate, like a tool reporting its exit status
	terminateErr error
}

var errKilled = errors.New("killed")

// fakeProducer hands out scripted streams and records how it was used.
type fakeProducer struct {
	mu       sync.Mutex
	scripts  map[string]script
	fallback script
	startErr error
	starts   int
	streams  map[string]*fakeStream
}

func newFakeProducer(fallback script) *fakeProducer {
	return &fakeProducer{
		scripts:  map[string]script{},
		fallback: fallback,
		streams:  map[string]*fakeStream{},
	}
}

func (p *fakeProducer) Start(ctx context.Context, dir string) (Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.starts++
	if p.startErr != nil {
		return nil, &SpawnError{Command: []string{"fake", dir}, Err: p.startErr}
	}

	sc, ok := p.scripts[dir]
	if !ok {
		sc = p.fallback
	}
	s := &fakeStream{
		chunks:     append([][]byte(nil), sc.chunks...),
		gate:       sc.gate,
		block:      sc.block,
		readErr:      sc.readErr,
		terminateErr: sc.terminateErr,
		killed:       make(chan struct{}),
		terminated:   make(chan struct{}),
	}
	s.stop = context.AfterFunc(ctx, s.kill)
	p.streams[dir] = s
	return s, nil
}

func (p *fakeProducer) startCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts
}

func (p *fakeProducer) stream(dir string) *fakeStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streams[dir]
}

type fakeStream struct {
	chunks       [][]byte
	gate         chan struct{}
	block        bool
	readErr      error
	terminateErr error

	stop       func() bool
	killOnce   sync.Once
	killed     chan struct{}
	termOnce   sync.Once
	terminated chan struct{}

	mu           sync.Mutex
	terminations int
}

func (s *fakeStream) kill() {
	s.killOnce.Do(func() { close(s.killed) })
}

func (s *fakeStream) Read(dst []byte) (int, error) {
	select {
	case <-s.killed:
		return 0, errKilled
	default:
	}

	if len(s.chunks) > 0 {
		n := copy(dst, s.chunks[0])
		s.chunks[0] = s.chunks[0][n:]
		if len(s.chunks[0]) == 0 {
			s.chunks = s.chunks[1:]
		}
		return n, nil
	}

	if s.block {
		<-s.killed
		return 0, errKilled
	}
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-s.killed:
			return 0, errKilled
		}
	}
	if s.readErr != nil {
		return 0, s.readErr
	}
	return 0, io.EOF
}

func (s *fakeStream) Terminate() error {
	s.stop()
	s.kill()
	s.mu.Lock()
	s.terminations++
	s.mu.Unlock()
	s.termOnce.Do(func() { close(s.terminated) })
	return s.terminateErr
}

func (s *fakeStream) terminationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminations
}

// waitTerminated reports whether the stream was terminated within d.
func (s *fakeStream) waitTerminated(d time.Duration) bool {
	select {
	case <-s.terminated:
		return true
	case <-time.After(d):
		return false
	}
}

// recordingWriter records every write and flush made to a response.
type recordingWriter struct {
	*httptest.ResponseRecorder

	mu      sync.Mutex
	writes  [][]byte
	times   []time.Time
	flushes int
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{ResponseRecorder: httptest.NewRecorder()}
}

func (w *recordingWriter) Write(data []byte) (int, error) {
	w.mu.Lock()
	w.writes = append(w.writes, append([]byte(nil), data...))
	w.times = append(w.times, time.Now())
	w.mu.Unlock()
	return w.ResponseRecorder.Write(data)
}

func (w *recordingWriter) Flush() {
	w.mu.Lock()
	w.flushes++
	w.mu.Unlock()
	w.ResponseRecorder.Flush()
}

// failingWriter accepts headers but fails every body write, like a connection whose client went away.
type failingWriter struct {
	header http.Header
}

func (w *failingWriter) Header() http.Header {
	if w.header == nil {
		w.header = http.Header{}
	}
	return w.header
}

func (w *failingWriter) WriteHeader(int) {}

func (w *failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func chunksOf(parts ...string) [][]byte {
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}
