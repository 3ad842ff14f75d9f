// Package observability wires structured logging for the CLI.
//
// Operator-facing output (plans, result tables) goes to stdout via the
// report package; diagnostics go to stderr through CLILogger, and
// optionally to a size-rotated log file for long unattended campaigns.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// CLILogger is the process-wide logger. Defaults to a no-op logger until
// Init runs so packages can log unconditionally.
var CLILogger = zap.NewNop()

// Init configures CLILogger.
//
// level is a zap level name ("debug", "info", "warn", "error"). When
// logFile is non-empty, entries are additionally written there as JSON
// with size-based rotation.
func Init(level, logFile string) error {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(os.Stderr),
			lvl,
		),
	}

	if logFile != "" {
		fileSink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			fileSink,
			lvl,
		))
	}

	CLILogger = zap.New(zapcore.NewTee(cores...))
	return nil
}

// Sync flushes buffered log entries. Safe to call on the no-op logger.
func Sync() {
	_ = CLILogger.Sync()
}
