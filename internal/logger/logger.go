package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options is a single structured field attached to a log line
type Options struct {
	Key  string
	Data interface{}
}

// Logger is the process-wide logger. It is a no-op until Init is called.
var Logger = zap.NewNop()

// Init builds the process logger from a level name ("debug", "info", ...)
func Init(level string, development bool) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	Logger = l
	return nil
}

// Sync flushes buffered log entries
func Sync() {
	_ = Logger.Sync()
}

func fields(payload []Options) []zapcore.Field {
	zapFields := make([]zapcore.Field, 0, len(payload))
	for _, data := range payload {
		zapFields = append(zapFields, zap.Any(data.Key, data.Data))
	}
	return zapFields
}

// Debug logs debug level messages.
func Debug(msg string, payload ...Options) {
	Logger.Debug(msg, fields(payload)...)
}

// Info logs info level messages.
func Info(msg string, payload ...Options) {
	Logger.Info(msg, fields(payload)...)
}

// Warning logs warning messages.
func Warning(msg string, payload ...Options) {
	Logger.Warn(msg, fields(payload)...)
}

// Error logs error messages.
// Describe the incident in msg and pass the error through options with key "error".
func Error(msg string, payload ...Options) {
	Logger.Error(msg, fields(payload)...)
}
