package execution

import (
	"context"
	"errors"
	"time"

	"github.com/lambda-feedback/shellpool/internal/execution/dispatcher"
	"github.com/lambda-feedback/shellpool/internal/execution/pool"
	"github.com/lambda-feedback/shellpool/internal/execution/worker"
	"github.com/lambda-feedback/shellpool/internal/metrics"
	"go.uber.org/zap"
)

type Dispatcher dispatcher.Dispatcher

type SendConfig struct {
	// Timeout bounds the execution of a single command.
	// Zero means no timeout.
	Timeout time.Duration `conf:"timeout"`
}

type Config struct {
	// Worker is the configuration of the worker processes
	Worker worker.Config `conf:"worker"`

	// Pool is the scaling configuration of the worker pool
	Pool pool.Config `conf:"pool"`

	// Send is the per-command configuration
	Send SendConfig `conf:"send"`
}

// Validate checks the execution configuration.
func (c Config) Validate() error {
	if err := c.Worker.Validate(); err != nil {
		return err
	}

	if err := c.Pool.Validate(); err != nil {
		return err
	}

	if c.Send.Timeout < 0 {
		return errors.New("send timeout must not be negative")
	}

	return nil
}

type Params struct {
	// Context is the context to use for the dispatcher
	Context context.Context

	// Config is the config for the dispatcher and the underlying workers
	Config Config

	// Metrics is the optional metrics registry
	Metrics *metrics.Registry

	// Log is the logger to use for the dispatcher
	Log *zap.Logger
}

func NewDispatcher(params Params) (Dispatcher, error) {
	if err := params.Config.Validate(); err != nil {
		return nil, err
	}

	d, err := dispatcher.NewPooledDispatcher(dispatcher.PooledDispatcherParams{
		Context: params.Context,
		Config: dispatcher.PooledDispatcherConfig{
			Worker:      params.Config.Worker,
			Pool:        params.Config.Pool,
			SendTimeout: params.Config.Send.Timeout,
		},
		Metrics: params.Metrics,
		Log:     params.Log,
	})
	if err != nil {
		return nil, err
	}

	return d, nil
}
