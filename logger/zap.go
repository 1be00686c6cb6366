package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapBridge adapts a Logger to a zapcore.Core so hosts already wired to
// zap can sink this module's logs.
type zapBridge struct {
	logger Logger
}

var _ zapcore.Core = (*zapBridge)(nil)

func (z *zapBridge) Enabled(level zapcore.Level) bool {
	return z.logger.IsLevelEnabled(fromZapLevel(level))
}

func (z *zapBridge) With(fields []zapcore.Field) zapcore.Core {
	return &zapBridge{logger: z.logger.With(fieldsToMetadata(fields))}
}

func (z *zapBridge) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if z.Enabled(entry.Level) {
		return ce.AddCore(entry, z)
	}
	return ce
}

func (z *zapBridge) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	out := z.logger
	if len(fields) > 0 {
		out = out.With(fieldsToMetadata(fields))
	}
	switch entry.Level {
	case zapcore.DebugLevel:
		out.Debug("%s", entry.Message)
	case zapcore.InfoLevel:
		out.Info("%s", entry.Message)
	case zapcore.WarnLevel:
		out.Warn("%s", entry.Message)
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		out.Error("%s", entry.Message)
	default:
		out.Trace("%s", entry.Message)
	}
	return nil
}

func (z *zapBridge) Sync() error {
	return nil
}

func fieldsToMetadata(fields []zapcore.Field) map[string]interface{} {
	enc := zapcore.NewMapObjectEncoder()
	for _, field := range fields {
		field.AddTo(enc)
	}
	return enc.Fields
}

func fromZapLevel(level zapcore.Level) LogLevel {
	switch level {
	case zapcore.DebugLevel:
		return LevelDebug
	case zapcore.InfoLevel:
		return LevelInfo
	case zapcore.WarnLevel:
		return LevelWarn
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return LevelError
	}
	return LevelTrace
}

// ToZap returns a zap.Logger instance that will output to the provided logger
func ToZap(logger Logger) *zap.Logger {
	core := &zapBridge{logger: logger}
	return zap.New(core)
}
