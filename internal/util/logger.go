package util

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "haruup-service"

var (
	globalLogger atomic.Pointer[zap.Logger]
	initOnce     sync.Once
)

// Init builds the process logger once. Later calls return the first logger.
func Init(environment, level, format string) *zap.Logger {
	initOnce.Do(func() {
		logger, err := newLoggerConfig(environment, level, format).Build(
			zap.AddCaller(),
			zap.AddCallerSkip(1),
			zap.Fields(zap.String("service", serviceName), zap.String("env", environment)),
		)
		if err != nil {
			panic("failed to initialize logger: " + err.Error())
		}
		globalLogger.Store(logger)
		zap.ReplaceGlobals(logger)
	})
	return globalLogger.Load()
}

// newLoggerConfig is JSON with ISO8601 timestamps and sampling in production, coloured console
// output elsewhere. format overrides the encoding in either case.
func newLoggerConfig(environment, level, format string) zap.Config {
	var cfg zap.Config
	if environment == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.DisableStacktrace = true
		cfg.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(parseLogLevel(level))

	switch format {
	case "json":
		cfg.Encoding = "json"
		cfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	case "console":
		cfg.Encoding = "console"
	}

	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg
}

// Get returns the process logger, initializing a production logger if Init was never called.
func Get() *zap.Logger {
	if logger := globalLogger.Load(); logger != nil {
		return logger
	}
	return Init("production", "info", "json")
}

// UseLogger swaps the process logger, mainly so tests can pass zap.NewNop().
func UseLogger(logger *zap.Logger) {
	if logger == nil {
		return
	}
	initOnce.Do(func() {})
	globalLogger.Store(logger)
}

func Sync() {
	if logger := globalLogger.Load(); logger != nil {
		_ = logger.Sync()
	}
}

// parseLogLevel accepts zap level names plus "warning"; anything else is info.
func parseLogLevel(level string) zapcore.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func Debug(msg string, fields ...zap.Field) { Get().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field) { Get().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field) { Get().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Get().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { Get().Fatal(msg, fields...) }

func String(key, value string) zap.Field { return zap.String(key, value) }
func Bool(key string, value bool) zap.Field { return zap.Bool(key, value) }
func Int(key string, value int) zap.Field { return zap.Int(key, value) }
func Int64(key string, value int64) zap.Field { return zap.Int64(key, value) }
func Duration(key string, value time.Duration) zap.Field { return zap.Duration(key, value) }

// ErrorField is zap.Error under a name that does not clash with Error.
func ErrorField(err error) zap.Field { return zap.Error(err) }
