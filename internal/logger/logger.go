package logger

import (
	"fmt"
	"strings"

	"storefront-payments/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger from LOG_LEVEL and LOG_FORMAT.
// "console" gives the colored development encoder, anything else JSON.
func New(cfg config.Log) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}

	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.OutputPaths = []string{"stdout"}
		zcfg.ErrorOutputPaths = []string{"stderr"}
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	return zcfg.Build(zap.AddStacktrace(zap.DPanicLevel))
}

// PaymentEvent records a named payment lifecycle event.
func PaymentEvent(l *zap.Logger, name string, fields ...zap.Field) {
	l.Info("payment event", append([]zap.Field{zap.String("event", name)}, fields...)...)
}

// AuditEvent records events that must stand out for audit, such as replayed
// or double-spent payment identifiers.
func AuditEvent(l *zap.Logger, name string, fields ...zap.Field) {
	l.Warn("payment audit", append([]zap.Field{zap.String("event", name)}, fields...)...)
}

// Error logs err with its context fields.
func Error(l *zap.Logger, err error, context string, fields ...zap.Field) {
	l.Error(context, append([]zap.Field{zap.Error(err)}, fields...)...)
}
