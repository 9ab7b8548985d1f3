package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the application-wide structured logger. It wraps a zap
// SugaredLogger so call sites use the key-value form (Infow, Errorw, ...).
type Logger struct {
	*zap.SugaredLogger
}

// New creates a new Logger instance. Level is one of "debug", "info",
// "warn", "error"; anything else falls back to info.
func New(level string) *Logger {
	var lvl zapcore.Level
	switch level {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(os.Stdout),
		lvl,
	)

	z := zap.New(core, zap.AddCaller())
	return &Logger{SugaredLogger: z.Sugar()}
}

// NewFromEnv creates a Logger with the level taken from LOG_LEVEL.
func NewFromEnv() *Logger {
	return New(os.Getenv("LOG_LEVEL"))
}

// With returns a child logger with the given key-value pairs attached to
// every entry.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(args...)}
}
