// Package ulogger is the node's logging facade. Every long-lived
// component (storage, mempool, consensus, sync, rpc, node) is handed a
// Logger scoped to its own name via New, so log lines are always
// attributable to the subsystem that emitted them.
package ulogger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ordishs/gocore"
	"github.com/rs/zerolog"
)

// Logger is the interface every component depends on. It intentionally
// exposes only the printf-style levels plus New, so call sites never
// reach for the full zerolog.Event builder API directly.
type Logger interface {
	New(name string, opts ...Option) Logger

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// Option configures a sub-logger created with New.
type Option func(*zLogger)

// WithLevel overrides the minimum level for the sub-logger.
func WithLevel(level string) Option {
	return func(z *zLogger) { setLevel(level, z) }
}

const (
	colorBlack = iota + 30
	colorRed
	colorGreen
	colorYellow
	colorBlue
	_
	_
	colorWhite

	colorBold = 1
)

type zLogger struct {
	zerolog.Logger
	service string
}

// New constructs a root Logger for service, honoring the PRETTY_LOGS and
// LOG_LEVEL gocore config keys the way the teacher's util.NewZeroLogger
// does.
func New(service string, opts ...Option) Logger {
	if service == "" {
		service = "themelio"
	}

	var z *zLogger
	if gocore.Config().GetBool("PRETTY_LOGS", true) {
		z = prettyLogger(service)
	} else {
		z = &zLogger{
			Logger: zerolog.New(os.Stdout).With().
				Timestamp().
				Str("service", service).
				Logger(),
			service: service,
		}
	}

	if level, ok := gocore.Config().Get("LOG_LEVEL"); ok {
		setLevel(level, z)
	}

	for _, opt := range opts {
		opt(z)
	}

	return z
}

func (z *zLogger) New(name string, opts ...Option) Logger {
	child := &zLogger{
		Logger:  z.Logger.With().Str("component", name).Logger(),
		service: name,
	}

	for _, opt := range opts {
		opt(child)
	}

	return child
}

func setLevel(level string, z *zLogger) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		z.Logger = z.Logger.Level(zerolog.DebugLevel)
	case "WARN":
		z.Logger = z.Logger.Level(zerolog.WarnLevel)
	case "ERROR":
		z.Logger = z.Logger.Level(zerolog.ErrorLevel)
	case "FATAL":
		z.Logger = z.Logger.Level(zerolog.FatalLevel)
	default:
		z.Logger = z.Logger.Level(zerolog.InfoLevel)
	}
}

func prettyLogger(service string) *zLogger {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}

	output.FormatTimestamp = func(i interface{}) string {
		parsed, err := time.Parse(time.RFC3339, fmt.Sprintf("%s", i))
		if err != nil {
			return fmt.Sprintf("%s", i)
		}
		return parsed.Format("15:04:05")
	}

	output.FormatLevel = func(i interface{}) string {
		l := strings.ToUpper(fmt.Sprintf("%-5s", i))
		switch i {
		case "debug":
			l = colorize(l, colorBlue)
		case "info":
			l = colorize(l, colorGreen)
		case "warn":
			l = colorize(l, colorYellow)
		case "error", "fatal", "panic":
			l = colorize(l, colorRed)
		default:
			l = colorize(l, colorWhite)
		}
		return fmt.Sprintf("| %s|", l)
	}

	output.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("| %-14s| %s", service, i)
	}

	output.FormatCaller = func(i interface{}) string {
		c, _ := i.(string)
		if c == "" {
			return c
		}
		return colorize(filepath.Base(c), colorBold)
	}

	return &zLogger{
		Logger: zerolog.New(output).With().
			CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + 1).
			Timestamp().
			Logger(),
		service: service,
	}
}

func (z *zLogger) Debugf(format string, args ...interface{}) { z.Logger.Debug().Msgf(format, args...) }
func (z *zLogger) Infof(format string, args ...interface{})  { z.Logger.Info().Msgf(format, args...) }
func (z *zLogger) Warnf(format string, args ...interface{})  { z.Logger.Warn().Msgf(format, args...) }
func (z *zLogger) Errorf(format string, args ...interface{}) { z.Logger.Error().Msgf(format, args...) }
func (z *zLogger) Fatalf(format string, args ...interface{}) { z.Logger.Fatal().Msgf(format, args...) }

func colorize(s string, c int) string {
	if os.Getenv("NO_COLOR") != "" || c == 0 {
		return s
	}
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", c, s)
}

// TestLogger returns a Logger suitable for tests: plain, uncolored,
// writing to stderr at debug level regardless of gocore config.
func TestLogger() Logger {
	return &zLogger{
		Logger: zerolog.New(os.Stderr).Level(zerolog.DebugLevel).With().Timestamp().Logger(),
		service: "test",
	}
}
