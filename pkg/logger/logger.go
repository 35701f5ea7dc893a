package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. level may be empty; LOG_LEVEL wins
// over it when set.
func NewLogger(environment, level string) (*zap.Logger, error) {
	var config zap.Config

	if environment == "production" {
		config = zap.NewProductionConfig()
		config.DisableCaller = false
		config.DisableStacktrace = false
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}
	if level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(level)); err == nil {
			config.Level.SetLevel(lvl)
		}
	}

	return config.Build()
}

// Named returns a child logger tagged with a component key, the way services
// and handlers scope their loggers.
func Named(base *zap.Logger, key, name string) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return base.With(zap.String(key, name))
}
