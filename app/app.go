package app

import (
	"github.com/lambda-feedback/shellpool/config"
	"github.com/lambda-feedback/shellpool/internal/metrics"
	"github.com/lambda-feedback/shellpool/internal/shell"
	"github.com/lambda-feedback/shellpool/runtime"
	"github.com/lambda-feedback/shellpool/util/conf"
	"github.com/lambda-feedback/shellpool/util/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
)

// New creates the application shell from the logger and config
// stored in the cli context. The shell provides the shared modules
// every transport depends on.
func New(ctx *cli.Context) (*shell.Shell, error) {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return nil, err
	}

	config, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return nil, err
	}

	return shell.New(log, SharedModule(config)), nil
}

// SharedModule provides the global config, the metrics registry
// and the lifecycle-bound runtime.
func SharedModule(config config.Config) fx.Option {
	return fx.Module(
		"shared",
		fx.Supply(config),
		fx.Provide(metrics.New),
		runtime.Module(config.Runtime),
	)
}
