package logger

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is the structured key/value pair attached to log entries.
type Field = zap.Field

// Logger is the thin logging surface used throughout the codebase.
type Logger interface {
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

type zapLogger struct {
	z *zap.Logger
}

func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }

// New creates a production logger: JSON encoding, ISO-8601 timestamps,
// level INFO.
func New() (Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &zapLogger{z: z}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() Logger { return &zapLogger{z: zap.NewNop()} }

// Field constructors, so callers never import zap directly.

func String(key, val string) Field            { return zap.String(key, val) }
func Float64(key string, val float64) Field   { return zap.Float64(key, val) }
func Int(key string, val int) Field           { return zap.Int(key, val) }
func Bool(key string, val bool) Field         { return zap.Bool(key, val) }
func Time(key string, val time.Time) Field    { return zap.Time(key, val) }
func Duration(k string, v time.Duration) Field { return zap.Duration(k, v) }
func Any(key string, val interface{}) Field   { return zap.Any(key, val) }
func Err(err error) Field                     { return zap.Error(err) }
