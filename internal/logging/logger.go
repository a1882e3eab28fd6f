// Package logging builds the structured logger shared by every invocation.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	crzap "sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = "info"

// ParseLevel maps a level name onto a zap level. Names are case-insensitive.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q (expected debug, info, warn, or error)", level)
	}
}

// New returns a JSON logger writing to w (stderr when nil) at the given level.
func New(level string, w io.Writer) (logr.Logger, error) {
	zapLevel, err := ParseLevel(level)
	if err != nil {
		return logr.Logger{}, err
	}
	if w == nil {
		w = os.Stderr
	}
	atomic := zap.NewAtomicLevelAt(zapLevel)
	opts := crzap.Options{
		Level:       &atomic,
		DestWriter:  w,
		EncoderConfigOptions: []crzap.EncoderConfigOption{
			func(cfg *zapcore.EncoderConfig) {
				cfg.TimeKey = "time"
				cfg.EncodeTime = zapcore.ISO8601TimeEncoder
			},
		},
	}
	if zapLevel == zapcore.DebugLevel {
		opts.StacktraceLevel = zapcore.ErrorLevel
	}
	return crzap.New(crzap.UseFlagOptions(&opts)), nil
}
