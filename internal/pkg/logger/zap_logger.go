package logger

import (
	"os"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ILogger is the structured logger every engine component receives. Module
// names the emitting component ("ContextStore", "DraftManager", ...).
type ILogger interface {
	Debug(module, message string, details map[string]interface{})
	Info(module, message string, details map[string]interface{})
	Warn(module, message string, details map[string]interface{})
	Error(module, message string, details map[string]interface{})
	Sync() error
}

const serviceName = "grant-assistant"

// Options selects the sinks of a logger.
type Options struct {
	// FilePath is the rotating JSON log file. Empty disables the file sink.
	FilePath string
	// Console mirrors entries to stdout.
	Console bool
	// Production renders console entries as JSON instead of the
	// human-readable development layout.
	Production bool
}

type ZapLogger struct {
	logger *zap.Logger
}

// New builds a logger from opts. A logger with no sinks discards everything.
func New(opts Options) *ZapLogger {
	var cores []zapcore.Core
	if opts.FilePath != "" {
		cores = append(cores, zapcore.NewCore(jsonEncoder(), zapcore.AddSync(rotator(opts.FilePath)), zap.InfoLevel))
	}
	if opts.Console {
		enc := jsonEncoder()
		if !opts.Production {
			enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(os.Stdout), zap.DebugLevel))
	}
	if len(cores) == 0 {
		return NewNopLogger()
	}
	return fromCore(zapcore.NewTee(cores...))
}

// NewZapLogger logs to file and console. It is the process-wide logger.
func NewZapLogger(logFilePath string, isProd bool) *ZapLogger {
	return New(Options{FilePath: logFilePath, Console: true, Production: isProd})
}

// NewIsolatedLogger logs to file only, keeping stream connection churn out
// of the main log.
func NewIsolatedLogger(logFilePath string) *ZapLogger {
	return New(Options{FilePath: logFilePath})
}

func NewNopLogger() *ZapLogger {
	return &ZapLogger{logger: zap.NewNop()}
}

func fromCore(core zapcore.Core) *ZapLogger {
	// Skip the wrapper frame so callers show up in the caller field.
	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).With(zap.String("service", serviceName))
	return &ZapLogger{logger: l}
}

func rotator(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20, // MB
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	}
}

func jsonEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	return zapcore.NewJSONEncoder(cfg)
}

// details renders the detail map as a nested object with stable key order.
type details map[string]interface{}

func (d details) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := enc.AddReflected(k, d[k]); err != nil {
			return err
		}
	}
	return nil
}

func (l *ZapLogger) fields(module string, d map[string]interface{}) []zap.Field {
	fields := []zap.Field{zap.String("module", module)}
	if len(d) > 0 {
		fields = append(fields, zap.Object("details", details(d)))
	}
	return fields
}

func (l *ZapLogger) Debug(module, message string, d map[string]interface{}) {
	l.logger.Debug(message, l.fields(module, d)...)
}

func (l *ZapLogger) Info(module, message string, d map[string]interface{}) {
	l.logger.Info(message, l.fields(module, d)...)
}

func (l *ZapLogger) Warn(module, message string, d map[string]interface{}) {
	l.logger.Warn(message, l.fields(module, d)...)
}

// Error also lifts details["error"] to a top-level field so failures can be
// filtered without descending into details.
func (l *ZapLogger) Error(module, message string, d map[string]interface{}) {
	fields := l.fields(module, d)
	switch err := d["error"].(type) {
	case error:
		fields = append(fields, zap.Error(err))
	case string:
		fields = append(fields, zap.String("error", err))
	}
	l.logger.Error(message, fields...)
}

func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}
