// Package logging builds the zap logger used by the stowage binaries and
// adapts it to the service's Logger contract.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"stowage/internal/core"
)

// Formats accepted by Config.Format.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config selects verbosity and encoding.
type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// New builds a zap logger writing to stderr. Empty fields mean info and json.
func New(cfg Config) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var zc zap.Config
	switch strings.ToLower(cfg.Format) {
	case "", FormatJSON:
		zc = zap.NewProductionConfig()
	case FormatConsole:
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

// ParseLevel maps a level name onto a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return level, fmt.Errorf("parse log level: %w", err)
	}
	return level, nil
}

// coreLogger satisfies core.Logger with a sugared zap logger.
type coreLogger struct {
	s *zap.SugaredLogger
}

// NewCore adapts z to core.Logger. A nil logger discards everything.
func NewCore(z *zap.Logger) core.Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return coreLogger{s: z.Sugar()}
}

func (l coreLogger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l coreLogger) Info(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l coreLogger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l coreLogger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }
