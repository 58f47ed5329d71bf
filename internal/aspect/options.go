package aspect

import (
	"context"

	"go.uber.org/zap"

	"github.com/conduit-lang/stereotype/internal/async"
)

// Option configures a wrapped callable
type Option func(*options)

type options struct {
	name      string
	handler   ErrorHandler
	scheduler async.Scheduler
}

// WithName overrides the join point name
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithErrorHandler sets the handler for secondary hook failures
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) {
		if h != nil {
			o.handler = h
		}
	}
}

// WithLogger reports secondary hook failures to logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.handler = logHandler(logger)
		}
	}
}

// WithScheduler sets where async invocations run their chain
func WithScheduler(s async.Scheduler) Option {
	return func(o *options) {
		if s != nil {
			o.scheduler = s
		}
	}
}

func newOptions(name string, opts []Option) *options {
	o := &options{
		name:      name,
		handler:   logHandler(zap.NewNop()),
		scheduler: async.Goroutines,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func logHandler(logger *zap.Logger) ErrorHandler {
	return func(ctx context.Context, jp *JoinPoint, err error) {
		logger.Error("advice failed after the invocation had already failed",
			zap.String("target", jp.Name()),
			zap.NamedError("fault", jp.Fault()),
			zap.Error(err),
		)
	}
}
