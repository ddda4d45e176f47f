package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeShutdown(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a, _ := newTestApp(t, cfg)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.serve(ctx, ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/archive/abc123/")
	require.NoError(t, err)
	_, err = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServeShutdownCancelsDownloads(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	// a long pause between chunks keeps the download in flight
	cfg.Delay = time.Hour
	cfg.ChunkSize = 16
	a, _ := newTestApp(t, cfg)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.serve(ctx, ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/archive/abc123/")
	require.NoError(t, err)
	defer resp.Body.Close()
	_, err = io.ReadFull(resp.Body, make([]byte, 16))
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down while a download was in flight")
	}

	_, err = io.ReadAll(resp.Body)
	assert.Error(t, err)
}
