package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the JSON logger shared by every pipeline binary. Entries carry
// the component name so dispatcher, correlator and recorder can share one sink.
func New(level, component string) (*zap.Logger, error) {
	cfg, err := newConfig(level, component)
	if err != nil {
		return nil, err
	}
	return cfg.Build()
}

// newConfig writes JSON entries to stdout and internal errors to stderr.
func newConfig(level, component string) (zap.Config, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return zap.Config{}, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	// Every record decision is logged; sampling would drop repeats of the same job.
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeDuration = zapcore.SecondsDurationEncoder
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.InitialFields = map[string]any{"component": component}
	return cfg, nil
}
