package logger

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger builds the global logger. Output goes to path, or to stderr when path is
// empty, since stdout carries the MCP transport and the CSV report.
func InitLogger(debug bool, path string) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	out := "stderr"
	if path != "" {
		out = path
	}
	cfg.OutputPaths = []string{out}
	cfg.ErrorOutputPaths = []string{out}

	l, err := cfg.Build()
	if err != nil {
		return errors.Wrap(err, "failed to build logger")
	}
	zap.ReplaceGlobals(l)
	return nil
}

// Sync flushes the global logger.
func Sync() {
	_ = zap.L().Sync()
}
