package zipstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// DefaultCommand is the command used by an ExecProducer unless overridden.
// It recursively archives the working directory and writes the archive to stdout.
var DefaultCommand = []string{"zip", "-r", "-", "."}

const (
	// DefaultReapTimeout is how long a killed producer is given to exit before giving up on it.
	DefaultReapTimeout = 5 * time.Second

	defaultStderrLimit = 4096
)

// ExecProducer runs an external compression tool in the archived directory and streams its stdout.
type ExecProducer struct {
	command     []string
	reapTimeout time.Duration
	stderrLimit int
}

// ExecOption configures an ExecProducer.
type ExecOption func(*ExecProducer)

// WithCommand sets the command line of the compression tool.
// The tool must write the archive to stdout and archive its working directory.
func WithCommand(name string, args ...string) ExecOption {
	return func(p *ExecProducer) {
		p.command = append([]string{name}, args...)
	}
}

// WithReapTimeout bounds how long Terminate waits for the tool to exit.
func WithReapTimeout(d time.Duration) ExecOption {
	return func(p *ExecProducer) {
		if d > 0 {
			p.reapTimeout = d
		}
	}
}

// WithStderrLimit sets how many trailing bytes of the tool's stderr are kept for diagnostics.
func WithStderrLimit(n int) ExecOption {
	return func(p *ExecProducer) {
		if n > 0 {
			p.stderrLimit = n
		}
	}
}

// NewExecProducer creates an ExecProducer.
func NewExecProducer(opts ...ExecOption) *ExecProducer {
	p := &ExecProducer{
		command:     append([]string(nil), DefaultCommand...),
		reapTimeout: DefaultReapTimeout,
		stderrLimit: defaultStderrLimit,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Command returns the command line run by the producer.
func (p *ExecProducer) Command() []string {
	return append([]string(nil), p.command...)
}

// Start launches the compression tool with dir as its working directory.
func (p *ExecProducer) Start(ctx context.Context, dir string) (Stream, error) {
	cmd := exec.CommandContext(ctx, p.command[0], p.command[1:]...)
	cmd.Dir = dir
	setProcessGroup(cmd)
	cmd.WaitDelay = p.reapTimeout

	// stderr is drained by os/exec into the tail buffer, so a chatty tool never blocks on it
	stderr := &tailBuffer{limit: p.stderrLimit}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Command: p.Command(), Err: err}
	}
	err = cmd.Start()
	if err != nil {
		return nil, &SpawnError{Command: p.Command(), Err: err}
	}

	return &execStream{
		ctx:         ctx,
		cmd:         cmd,
		stdout:      stdout,
		stderr:      stderr,
		reapTimeout: p.reapTimeout,
	}, nil
}

// execStream is a running compression tool.
type execStream struct {
	ctx         context.Context
	cmd         *exec.Cmd
	stdout      io.Reader
	stderr      *tailBuffer
	reapTimeout time.Duration

	// eof is whether the tool closed its stdout
	eof bool
}

func (s *execStream) Read(dst []byte) (int, error) {
	n, err := s.stdout.Read(dst)
	if err == io.EOF {
		s.eof = true
	}
	return n, err
}

// Pid returns the process ID of the tool.
func (s *execStream) Pid() int {
	return s.cmd.Process.Pid
}

// Stderr returns the tail of the tool's diagnostic output.
func (s *execStream) Stderr() string {
	return s.stderr.String()
}

// Terminate kills the tool unless it already finished its output, then reaps it.
// A tool which finished its output gets one reap timeout to exit on its own before it is killed.
// A tool whose context is done counts as killed, whatever its output looked like.
func (s *execStream) Terminate() error {
	killed := false
	if !s.eof || s.ctx.Err() != nil {
		_ = killProcessGroup(s.cmd.Process)
		killed = true
	}

	done := make(chan error, 1)
	go func() {
		done <- s.cmd.Wait()
	}()

	timer := time.NewTimer(s.reapTimeout)
	defer timer.Stop()
	for {
		select {
		case err := <-done:
			if killed {
				return nil
			}
			return s.exitStatus(err)
		case <-timer.C:
			if killed {
				// the wait goroutine is left to collect the process whenever it exits
				return ErrReapTimeout
			}
			_ = killProcessGroup(s.cmd.Process)
			killed = true
			timer.Reset(s.reapTimeout)
		}
	}
}

func (s *execStream) exitStatus(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode(), Stderr: s.Stderr()}
	}
	return fmt.Errorf("failed to reap producer: %w", err)
}

// tailBuffer is an io.Writer which keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(data)
	if len(data) > b.limit {
		data = data[len(data)-b.limit:]
	}
	b.buf = append(b.buf, data...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return n, nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
