package runtime

import (
	"context"
	"time"

	"github.com/lambda-feedback/shellpool/internal/execution"
	"github.com/lambda-feedback/shellpool/internal/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Runtime is the interface for a runtime.
type Runtime interface {
	Handle(context.Context, ExecRequest) (ExecResponse, error)

	// Exec submits a command without waiting for its completion
	Exec(string, func(error)) error

	Stats() Stats

	Start(context.Context) error

	Shutdown(context.Context) error
}

// Params is the runtime-specific params type.
type Params = execution.Params

// Dispatcher is the runtime-specific dispatcher type.
type Dispatcher = execution.Dispatcher

// Config is the runtime-specific type for the config.
type Config = execution.Config

// ShellRuntime is a runtime that serializes commands onto a pool of
// interactive shell workers.
type ShellRuntime struct {
	dispatcher Dispatcher

	log *zap.Logger
}

var _ Runtime = (*ShellRuntime)(nil)

// RuntimeParams defines the dependencies for the runtime.
type RuntimeParams struct {
	fx.In

	// Context is the context to use for the underlying runtime
	Context context.Context

	// Config is the config for the underlying dispatcher
	Config Config

	// Metrics is the optional metrics registry
	Metrics *metrics.Registry `optional:"true"`

	// Log is the logger to use for the runtime
	Log *zap.Logger
}

// NewRuntime creates a new runtime.
func NewRuntime(params RuntimeParams) (*ShellRuntime, error) {
	dispatcher, err := execution.NewDispatcher(Params{
		Context: params.Context,
		Config:  params.Config,
		Metrics: params.Metrics,
		Log:     params.Log,
	})
	if err != nil {
		return nil, err
	}

	return &ShellRuntime{
		dispatcher: dispatcher,
		log:        params.Log.Named("runtime"),
	}, nil
}

// NewLifecycleRuntime creates a new runtime that is started and shut
// down along with the fx application.
func NewLifecycleRuntime(params RuntimeParams, lc fx.Lifecycle) (Runtime, error) {
	r, err := NewRuntime(params)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return r.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return r.Shutdown(ctx)
		},
	})

	return r, nil
}

func (r *ShellRuntime) Start(ctx context.Context) error {
	return r.dispatcher.Start(ctx)
}

func (r *ShellRuntime) Handle(
	ctx context.Context,
	request ExecRequest,
) (ExecResponse, error) {
	start := time.Now()

	if err := r.dispatcher.Send(ctx, request.Command); err != nil {
		return ExecResponse{}, err
	}

	return ExecResponse{
		Command:    request.Command,
		Status:     "ok",
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

func (r *ShellRuntime) Exec(command string, callback func(error)) error {
	return r.dispatcher.Exec(command, callback)
}

func (r *ShellRuntime) Stats() Stats {
	return r.dispatcher.Stats()
}

func (r *ShellRuntime) Shutdown(ctx context.Context) error {
	return r.dispatcher.Shutdown(ctx)
}
