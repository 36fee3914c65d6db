package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls log level, encoding and destinations.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // stdout, stderr, or file path
	HomeDir    string // when set, a rolling file under {HomeDir}/logs is added
}

// NewLogger builds the process logger. Console format is used for
// interactive/debug runs, JSON for daemon mode.
func NewLogger(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := []string{cfg.OutputPath}
	if cfg.OutputPath == "" {
		outputs = []string{"stdout"}
	}
	if cfg.HomeDir != "" {
		logDir := filepath.Join(cfg.HomeDir, "logs")
		if err := os.MkdirAll(logDir, 0o755); err == nil {
			outputs = append(outputs, filepath.Join(logDir, "ghost.log"))
		}
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}
