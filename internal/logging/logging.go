// Package logging builds the process logger and writes access logs from
// pipeline events.
package logging

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	eventbus "github.com/hanpama/gqlhttp/internal/eventbus"
	events "github.com/hanpama/gqlhttp/internal/events"
	reqid "github.com/hanpama/gqlhttp/internal/reqid"
)

// New builds a logger for env, which is one of development, test, staging
// or production. An empty level keeps the environment default.
func New(env, level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch env {
	case "development", "test":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "production", "staging", "":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, errors.Errorf("invalid log environment %q", env)
	}
	if level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, errors.Wrap(err, "invalid log level")
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return logger, nil
}

// Subscribe writes one access log line per finished HTTP request and a
// debug line per GraphQL operation.
func Subscribe(bus *eventbus.Bus, logger *zap.Logger) {
	eventbus.Subscribe(bus, func(ctx context.Context, e events.HTTPFinish) {
		fields := []zap.Field{
			zap.String("method", e.Request.Method),
			zap.String("path", e.Request.URL.Path),
			zap.Int("status", e.Status),
			zap.Duration("duration", e.Duration),
		}
		if id, ok := reqid.FromContext(ctx); ok {
			fields = append(fields, zap.String("request_id", id))
		}
		switch {
		case e.Status >= 500:
			logger.Error("request", fields...)
		case e.Status >= 400:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	})
	eventbus.Subscribe(bus, func(ctx context.Context, e events.GraphQLFinish) {
		if ce := logger.Check(zapcore.DebugLevel, "graphql operation"); ce != nil {
			id, _ := reqid.FromContext(ctx)
			ce.Write(
				zap.String("request_id", id),
				zap.String("operation", e.OperationName),
				zap.String("type", e.OperationType),
				zap.Int("status", e.Status),
				zap.Int("errors", len(e.Errors)),
				zap.Duration("duration", e.Duration),
			)
		}
	})
}
