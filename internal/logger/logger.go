// Package logger builds the process logger.
//
// Events are written as JSON to a lumberjack-rotated file when a file is
// configured, and teed to stdout with the console encoder when console
// output is enabled. With neither sink configured the logger writes JSON to
// stderr.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rpattn/orderimport/internal/config"
)

// New returns a *zap.SugaredLogger configured from cfg and installs it as the
// process-wide default via zap.ReplaceGlobals.
func New(cfg config.LoggingConfig) (*zap.SugaredLogger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		MessageKey:    "msg",
		CallerKey:     "caller",
		StacktraceKey: "stacktrace",
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeLevel:   zapcore.LowercaseLevelEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}

	var (
		cores     []zapcore.Core
		errOutput zapcore.WriteSyncer = zapcore.AddSync(os.Stderr)
	)

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("unable to create log directory: %w", err)
		}
		fileSink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    50, // MB
			MaxBackups: 7,
			MaxAge:     14, // days
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), fileSink, level))
		errOutput = fileSink
	}

	if cfg.Console {
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.AddSync(os.Stdout), level))
	}

	if len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(os.Stderr), level))
	}

	z := zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.ErrorOutput(errOutput),
	)
	zap.ReplaceGlobals(z)

	return z.Sugar(), nil
}
