package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"vaultctl/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New creates a zap.Logger for one vaultctl invocation. Diagnostics go to
// stderr so that reports written to stdout stay machine-readable; an optional
// rotated JSON file keeps an audit trail across runs.
func New(opts config.LogConfig) (*zap.Logger, error) {
	level := opts.Level
	if level == "" {
		level = "info"
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoding := "console"
	if opts.Format == "json" && opts.Environment != "dev" {
		encoding = "json"
	}

	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(encoding), zapcore.Lock(os.Stderr), lvl),
	}

	// Optional file output with rotation via lumberjack
	if opts.OutputFile != "" {
		dir := filepath.Dir(opts.OutputFile)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.OutputFile,
			MaxSize:    10,   // max file size (MB) before rotation
			MaxBackups: 5,    // max number of old log files to keep
			MaxAge:     30,   // max age (days) to retain a log file
			Compress:   true, // compress rotated files
		})

		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig("json")),
			fileWriter,
			lvl,
		))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.DPanicLevel))
	return logger, nil
}

func newEncoder(encoding string) zapcore.Encoder {
	if encoding == "json" {
		return zapcore.NewJSONEncoder(encoderConfig(encoding))
	}
	return zapcore.NewConsoleEncoder(encoderConfig(encoding))
}

// encoderConfig returns a zapcore.EncoderConfig based on log format.
func encoderConfig(format string) zapcore.EncoderConfig {
	if format == "console" {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		return cfg
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}
