// Package logging provides structured logging functionality.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "options-dashboard", "logs", "optdash.log"),
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     14,
	}
}

var consoleMuted atomic.Bool

// MuteConsole silences console output until the returned func is called.
// The log file keeps receiving everything. The watch screen uses this so
// log lines do not tear through a redraw.
func MuteConsole() (restore func()) {
	prev := consoleMuted.Swap(true)
	return func() { consoleMuted.Store(prev) }
}

type muteableWriter struct{ w io.Writer }

func (m muteableWriter) Write(p []byte) (int, error) {
	if consoleMuted.Load() {
		return len(p), nil
	}
	return m.w.Write(p)
}

var levelLabels = map[string]string{
	"debug": color.CyanString("DBG"),
	"info":  color.GreenString("INF"),
	"warn":  color.YellowString("WRN"),
	"error": color.RedString("ERR"),
	"fatal": color.New(color.FgRed, color.Bold).Sprint("FTL"),
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
// Console output goes to stderr so that --json output on stdout stays parseable.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, muteableWriter{zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.Kitchen,
			NoColor:    color.NoColor,
			FormatLevel: func(i interface{}) string {
				ll, _ := i.(string)
				if label, ok := levelLabels[ll]; ok {
					return label
				}
				return strings.ToUpper(ll)
			},
		}})
	}

	if cfg.File && cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	return zerolog.New(writer).With().Timestamp().Str("app", "optdash").Logger()
}

func parseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// WithComponent tags every event from logger with the owning component.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// WithUnderlying adds an underlying index to the logger context.
func WithUnderlying(logger zerolog.Logger, underlying string) zerolog.Logger {
	return logger.With().Str("underlying", underlying).Logger()
}

// LogOrder logs an order event.
func LogOrder(logger zerolog.Logger, orderID, symbol, side string, qty int, price float64) {
	logger.Info().
		Str("event", "order").
		Str("order_id", orderID).
		Str("symbol", symbol).
		Str("side", side).
		Int("quantity", qty).
		Float64("price", price).
		Msg("Order placed")
}

// LogRefresh logs the outcome of an option-chain refresh.
func LogRefresh(logger zerolog.Logger, underlying string, hit bool, rows int, duration time.Duration) {
	logger.Debug().
		Str("event", "chain_refresh").
		Str("underlying", underlying).
		Bool("cache_hit", hit).
		Int("rows", rows).
		Dur("duration", duration).
		Msg("Option chain refreshed")
}

// LogAPICall logs a backend call. Failures log at warn so they reach the
// file at the default level.
func LogAPICall(logger zerolog.Logger, method, endpoint string, status int, duration time.Duration, err error) {
	event := logger.Debug()
	if err != nil {
		event = logger.Warn().Err(err)
	}
	event = event.
		Str("event", "api_call").
		Str("method", method).
		Str("endpoint", endpoint).
		Dur("duration", duration)
	if status > 0 {
		event = event.Int("status", status)
	}

	if err != nil {
		event.Msg("API call failed")
	} else {
		event.Msg("API call completed")
	}
}
