// Package logging builds the structured logger shared by every other layer
// of the engine (storage, wal, persistence, runtime, cluster). Components
// take a *Logger through their constructor rather than reaching for a
// package-level global.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.SugaredLogger with the small set of leveled helpers the
// rest of this module uses, plus With for attaching component context.
type Logger struct {
	s *zap.SugaredLogger
}

// Option configures New.
type Option func(*options)

type options struct {
	development bool
	level       zapcore.Level
	name        string
}

// WithDevelopment switches to zap's human-readable console encoder instead
// of the default JSON production encoder.
func WithDevelopment(dev bool) Option {
	return func(o *options) { o.development = dev }
}

// WithLevel sets the minimum enabled level. Defaults to Info.
func WithLevel(level zapcore.Level) Option {
	return func(o *options) { o.level = level }
}

// WithName sets the root logger name, surfaced in every entry.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// New builds a Logger. Callers should Sync it before process exit.
func New(opts ...Option) (*Logger, error) {
	o := options{level: zapcore.InfoLevel, name: "memdb"}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := zap.NewProductionConfig()
	if o.development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(o.level)

	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if o.name != "" {
		base = base.Named(o.name)
	}
	return &Logger{s: base.Sugar()}, nil
}

// NewNop returns a Logger that discards everything, for tests.
func NewNop() *Logger {
	return &Logger{s: zap.NewNop().Sugar()}
}

// Named returns a child logger scoped to component, e.g. "engine.planner".
func (l *Logger) Named(component string) *Logger {
	return &Logger{s: l.s.Named(component)}
}

// With returns a child logger carrying the given key/value pairs on every entry.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{s: l.s.With(kv...)}
}

func (l *Logger) Debugw(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l *Logger) Infow(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *Logger) Warnw(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *Logger) Errorw(msg string, kv ...any) { l.s.Errorw(msg, kv...) }

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.s.Sync() }
