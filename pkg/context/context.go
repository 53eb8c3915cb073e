// Package context carries the logger and metrics registerer through an
// analysis run.
package context

import (
	"context"
	"os"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

type contextKey int

const (
	loggerKey contextKey = iota
	registryKey
)

var defaultLogger = log.NewLogfmtLogger(os.Stderr)

func WithLogger(ctx context.Context, logger log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

func Logger(ctx context.Context) log.Logger {
	if logger, ok := ctx.Value(loggerKey).(log.Logger); ok {
		return logger
	}
	return defaultLogger
}

func WithRegistry(ctx context.Context, registry prometheus.Registerer) context.Context {
	return context.WithValue(ctx, registryKey, registry)
}

// Registry returns the registerer stored in ctx. Without one, metrics are
// registered with a throwaway registry.
func Registry(ctx context.Context) prometheus.Registerer {
	if registry, ok := ctx.Value(registryKey).(prometheus.Registerer); ok {
		return registry
	}
	return prometheus.NewRegistry()
}

// WithTrace scopes the logger and registerer of ctx to the named trace.
func WithTrace(ctx context.Context, name string) context.Context {
	ctx = WithRegistry(ctx, prometheus.WrapRegistererWith(
		prometheus.Labels{"trace": name},
		Registry(ctx),
	))
	return WithLogger(ctx, log.With(Logger(ctx), "trace", name))
}
