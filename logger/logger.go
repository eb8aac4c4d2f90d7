// Package logger provides the shared zap logger for hookwatch.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the global logger instance.
	Logger *zap.SugaredLogger
	// JSONOutput tracks whether structured JSON output is enabled.
	JSONOutput bool
)

func init() {
	// Safe no-op logger at package load time so early callers never panic.
	Logger = zap.NewNop().Sugar()
}

// Initialize sets up the global logger.
// With jsonOutput the logger emits machine-readable JSON; otherwise it uses
// the human-readable development console encoder.
func Initialize(jsonOutput bool) error {
	JSONOutput = jsonOutput

	var cfg zap.Config
	if jsonOutput {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapLogger, err := cfg.Build()
	if err != nil {
		return err
	}

	Logger = zapLogger.Sugar()
	return nil
}

// Nop returns a no-op logger for tests and optional dependencies.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
