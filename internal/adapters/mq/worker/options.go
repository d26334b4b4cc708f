// Package worker runs pipeline stage handlers over a shared job queue.
package worker

import (
	"github.com/okian/curator/pkg/logger"
)

type options struct {
	name   string
	stage  string
	logger logger.Logger
}

func newOptions(opts []Option) options {
	o := options{name: "worker", stage: defaultStage}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option applies a configuration option to a worker or pool.
type Option func(*options)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithStage sets the stage label used in logs and metrics.
func WithStage(stage string) Option {
	return func(o *options) {
		if stage != "" {
			o.stage = stage
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
