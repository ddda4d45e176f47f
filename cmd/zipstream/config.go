package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jaddr2line/zipstream"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	producerExec    = "exec"
	producerBuiltin = "builtin"
)

// config is the configuration of the serve command.
type config struct {
	Log             bool
	LogLevel        slog.Level
	Delay           time.Duration
	PhotoPath       string
	Addr            string
	ChunkSize       int
	Producer        string
	ZipCommand      string
	MaxConcurrent   int64
	ReapTimeout     time.Duration
	ShutdownTimeout time.Duration
	Index           string
}

func serveFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	// accept the underscore spellings too, e.g. --photo_path
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.String("config", "", "configuration file (yaml, toml or json)")
	fs.Bool("log", false, "enable logging")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.Float64("delay", 0, "seconds to pause between archive chunks")
	fs.String("photo-path", "test_photos/", "directory containing the archive directories")
	fs.String("addr", ":8080", "listen address")
	fs.Int("chunk-size", zipstream.DefaultChunkSize, "maximum archive chunk size in bytes")
	fs.String("producer", producerExec, "archive producer (exec, builtin)")
	fs.String("zip-command", "zip", "compression tool run by the exec producer")
	fs.Int64("max-concurrent", 0, "maximum number of archives produced at once (0 is unlimited)")
	fs.Duration("reap-timeout", zipstream.DefaultReapTimeout, "time a killed compression tool is given to exit")
	fs.Duration("shutdown-timeout", 10*time.Second, "time in-flight requests are given on shutdown")
	fs.String("index", "index.html", "index page served at /")
	return fs
}

// loadConfig parses args and merges them with the environment and the optional configuration file.
// Flags given on the command line take precedence.
func loadConfig(args []string) (config, error) {
	fs := serveFlags()
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if fs.NArg() > 0 {
		return config{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	v := viper.New()
	v.SetEnvPrefix("ZIPSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return config{}, err
	}
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		return config{}, fmt.Errorf("invalid log level: %w", err)
	}

	cfg := config{
		Log:             v.GetBool("log"),
		LogLevel:        level,
		Delay:           time.Duration(v.GetFloat64("delay") * float64(time.Second)),
		PhotoPath:       v.GetString("photo-path"),
		Addr:            v.GetString("addr"),
		ChunkSize:       v.GetInt("chunk-size"),
		Producer:        v.GetString("producer"),
		ZipCommand:      v.GetString("zip-command"),
		MaxConcurrent:   v.GetInt64("max-concurrent"),
		ReapTimeout:     v.GetDuration("reap-timeout"),
		ShutdownTimeout: v.GetDuration("shutdown-timeout"),
		Index:           v.GetString("index"),
	}
	return cfg, cfg.validate()
}

func (c config) validate() error {
	var errs []error
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize))
	}
	if c.Delay < 0 {
		errs = append(errs, fmt.Errorf("delay must not be negative, got %s", c.Delay))
	}
	if c.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("max concurrent must not be negative, got %d", c.MaxConcurrent))
	}
	if c.PhotoPath == "" {
		errs = append(errs, errors.New("photo path is required"))
	}
	switch c.Producer {
	case producerExec:
		if c.ZipCommand == "" {
			errs = append(errs, errors.New("zip command is required"))
		}
	case producerBuiltin:
	default:
		errs = append(errs, fmt.Errorf("unknown producer %q", c.Producer))
	}
	return errors.Join(errs...)
}

// newLogger returns a text logger on w, or a logger which discards everything if logging is off.
func newLogger(c config, w io.Writer) *slog.Logger {
	if !c.Log {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: c.LogLevel,
	}))
}

func newProducer(c config) (zipstream.Producer, error) {
	switch c.Producer {
	case producerBuiltin:
		return zipstream.NewZipProducer(zipstream.ZipOptions{IncludePermissions: true})
	default:
		args := zipstream.DefaultCommand[1:]
		return zipstream.NewExecProducer(
			zipstream.WithCommand(c.ZipCommand, args...),
			zipstream.WithReapTimeout(c.ReapTimeout),
		), nil
	}
}
