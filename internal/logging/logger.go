package logging

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config tunes log output.
type Config struct {
	// Level is the minimum level: debug, info, warn, or error.
	Level string

	// Format is json or console.
	Format string
}

// New creates the process logger. Logs go to stderr so command output on
// stdout stays machine-parseable.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "console":
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	case "json", "":
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)
	logger := zap.New(core,
		zap.AddStacktrace(zapcore.ErrorLevel),
	).With(zap.String("service", "instinctd"))

	return logger, nil
}

// Sync flushes buffered entries, ignoring the sync errors stderr reports on
// Linux.
func Sync(logger *zap.Logger) error {
	err := logger.Sync()
	if err != nil && isTerminalSyncError(err) {
		return nil
	}
	return err
}

func isTerminalSyncError(err error) bool {
	return errors.Is(err, syscall.EINVAL) ||
		errors.Is(err, syscall.ENOTTY) ||
		errors.Is(err, syscall.EBADF)
}
