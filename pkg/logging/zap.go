package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapOptions defines the zap-backed logger configuration
type ZapOptions struct {
	Level      string `yaml:"level"`      // "debug", "info", "warn", "error"
	Format     string `yaml:"format"`     // "json", "console"
	Output     string `yaml:"output"`     // "stdout", "stderr"
	Caller     bool   `yaml:"caller"`     // Include caller information
	Stacktrace bool   `yaml:"stacktrace"` // Include stacktrace on errors
}

// DefaultZapOptions returns a sensible default zap configuration
func DefaultZapOptions() ZapOptions {
	return ZapOptions{
		Level:      "info",
		Format:     "json",
		Output:     "stdout",
		Caller:     false,
		Stacktrace: true,
	}
}

// NewZapLogger creates a Logger backed by zap. The returned sync function
// flushes buffered entries and should be deferred by the caller.
func NewZapLogger(opts ZapOptions) (Logger, func() error, error) {
	zapLogger, err := createZapLogger(opts)
	if err != nil {
		return nil, nil, err
	}

	sugar := zapLogger.Sugar()
	logger := NewLogger("", LogFuncs{
		Debugf: sugar.Debugf,
		Infof:  sugar.Infof,
		Warnf:  sugar.Warnf,
		Errorf: sugar.Errorf,
	})
	return logger, zapLogger.Sync, nil
}

// createZapLogger creates a zap logger from configuration
func createZapLogger(opts ZapOptions) (*zap.Logger, error) {
	// Parse level, in zap v1.27.0 use zapcore.ParseLevel(opts.Level)
	level, err := getLevelFromString(opts.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	// Create encoder config
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	encoderConfig.LevelKey = "level"
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	// Create encoder
	var encoder zapcore.Encoder
	switch opts.Format {
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default: // "json" or anything else
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	// Create writer sync
	var writeSyncer zapcore.WriteSyncer
	switch opts.Output {
	case "stderr":
		writeSyncer = zapcore.Lock(zapcore.AddSync(os.Stderr))
	default: // "stdout" or anything else
		writeSyncer = zapcore.Lock(zapcore.AddSync(os.Stdout))
	}

	// Create core
	core := zapcore.NewCore(encoder, writeSyncer, level)

	// Create logger options
	zapOpts := []zap.Option{}
	if opts.Caller {
		zapOpts = append(zapOpts, zap.AddCaller())
	}
	if opts.Stacktrace {
		zapOpts = append(zapOpts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return zap.New(core, zapOpts...), nil
}

// And older version (v1.20.0) of zapcore.ParseLevel(levelStr string) (v1.27.0)
func getLevelFromString(levelStr string) (zapcore.Level, error) {
	switch levelStr {
	case "debug":
		return zap.DebugLevel, nil
	case "info":
		return zap.InfoLevel, nil
	case "warn":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	case "fatal":
		return zap.FatalLevel, nil
	case "dpanic":
		return zap.DPanicLevel, nil
	case "panic":
		return zap.PanicLevel, nil
	default:
		return -1, fmt.Errorf("invalid log level: %s", levelStr)
	}
}
