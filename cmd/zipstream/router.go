package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jaddr2line/zipstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// newRouter wires the HTTP surface of the service.
func newRouter(logger *slog.Logger, archives *zipstream.Server, gatherer prometheus.Gatherer, index string) *gin.Engine {
	router := gin.New()

	// recovery first, so that it sees panics from everything else
	router.Use(recoveryMiddleware(logger))
	router.Use(loggerMiddleware(logger))

	router.GET("/", indexHandler(index))
	router.GET("/archive/:archive_hash/", func(c *gin.Context) {
		archives.ServeArchive(c.Writer, c.Request, c.Param("archive_hash"))
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return router
}

func indexHandler(path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := os.ReadFile(path)
		if err != nil {
			c.String(http.StatusNotFound, "Index page not found.\n")
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", data)
	}
}

// recoveryMiddleware logs panics and turns them into a 500 where the response has not started yet.
// http.ErrAbortHandler is passed on to net/http, which drops the connection.
func recoveryMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			logger.Error("panic recovered",
				"error", rec,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"client_ip", c.ClientIP(),
			)
			if c.Writer.Written() {
				panic(http.ErrAbortHandler)
			}
			c.AbortWithStatus(http.StatusInternalServerError)
		}()

		c.Next()
	}
}

// loggerMiddleware writes one access log entry per request.
func loggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"size", c.Writer.Size(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}
