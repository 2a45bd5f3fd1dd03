// Package logging builds the zap loggers used across mcpchat.
package logging

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a console logger writing to stderr.
// In verbose mode debug messages are included along with caller information.
func New(verbose bool) (*zap.Logger, error) {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.DisableStacktrace = true
		cfg.Sampling = nil
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	return cfg.Build()
}

type roundIDKey struct{}

// WithRoundID returns a copy of ctx carrying the id of the round (user query) being processed.
func WithRoundID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, roundIDKey{}, id)
}

// RoundID returns the round id stored in ctx, or an empty string.
func RoundID(ctx context.Context) string {
	id, _ := ctx.Value(roundIDKey{}).(string)
	return id
}

// RoundField returns a zap field with the round id stored in ctx.
func RoundField(ctx context.Context) zap.Field {
	return zap.String("round", RoundID(ctx))
}
