// Package logx wraps go.uber.org/zap into the package-level Default logger
// used across the engine, configuration compiler, and node implementations,
// mirroring the teacher's log/log.go: a single process-wide *zap.Logger,
// level constants, and a SetLevel knob, so nothing here reaches for
// fmt.Println or the standard library's log package.
package logx

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level names accepted by SetLevel.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

var atom = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// Default is the process-wide logger every package in this module logs
// through. Replace it (e.g. in cmd/datakit's main) to change the sink or
// encoding; the rest of the module only ever calls logx.L()/logx.Default.
var Default = zap.New(
	zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.Lock(zapcore.AddSync(os.Stdout)), atom),
	zap.AddCaller(),
)

// L returns the current Default logger, matching zap.L()'s ergonomics for
// call sites that want a one-off structured field or two without holding a
// reference.
func L() *zap.Logger { return Default }

// SetLevel adjusts the minimum level Default emits at. Unrecognized levels
// are ignored.
func SetLevel(level string) {
	switch level {
	case LevelDebug:
		atom.SetLevel(zapcore.DebugLevel)
	case LevelInfo:
		atom.SetLevel(zapcore.InfoLevel)
	case LevelWarn:
		atom.SetLevel(zapcore.WarnLevel)
	case LevelError:
		atom.SetLevel(zapcore.ErrorLevel)
	}
}

var encoderConfig = zapcore.EncoderConfig{
	TimeKey:        "ts",
	LevelKey:       "level",
	NameKey:        "logger",
	CallerKey:      "caller",
	MessageKey:     "msg",
	StacktraceKey:  "stacktrace",
	LineEnding:     zapcore.DefaultLineEnding,
	EncodeLevel:    zapcore.LowercaseLevelEncoder,
	EncodeTime:     zapcore.RFC3339TimeEncoder,
	EncodeDuration: zapcore.SecondsDurationEncoder,
	EncodeCaller:   zapcore.ShortCallerEncoder,
}
