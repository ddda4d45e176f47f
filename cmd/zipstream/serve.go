package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jaddr2line/zipstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const readHeaderTimeout = 10 * time.Second

func serveCmd(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, err := newApp(cfg, logger, reg)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.serve(ctx, ln)
}

// app is the assembled service.
type app struct {
	cfg    config
	logger *slog.Logger
	router *gin.Engine
}

func newApp(cfg config, logger *slog.Logger, reg *prometheus.Registry) (*app, error) {
	locator, err := zipstream.NewLocator(cfg.PhotoPath)
	if err != nil {
		return nil, err
	}
	producer, err := newProducer(cfg)
	if err != nil {
		return nil, err
	}

	metrics := zipstream.NewMetrics(reg)
	pipeline := zipstream.NewPipeline(producer,
		zipstream.WithChunkSize(cfg.ChunkSize),
		zipstream.WithDelay(cfg.Delay),
		zipstream.WithLogger(logger),
		zipstream.WithMetrics(metrics),
	)
	archives := zipstream.NewServer(locator, pipeline,
		zipstream.WithMaxConcurrent(cfg.MaxConcurrent),
		zipstream.WithServerLogger(logger),
		zipstream.WithServerMetrics(metrics),
	)

	return &app{
		cfg:    cfg,
		logger: logger,
		router: newRouter(logger, archives, reg, cfg.Index),
	}, nil
}

// serve runs the HTTP server on ln until ctx is done.
// On shutdown, in-flight downloads are cancelled first so that their producers are reaped,
// then the server is given the shutdown timeout to close its connections.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	requests, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()

	srv := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return requests
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("serving archives",
			"addr", ln.Addr().String(),
			"photo_path", a.cfg.PhotoPath,
			"producer", a.cfg.Producer,
			"delay", a.cfg.Delay,
		)
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		cancelRequests()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	})

	return g.Wait()
}
