package server

import (
	"go.uber.org/fx"

	"github.com/lambda-feedback/shellpool/util/logging"
)

// Module serves the handlers group over http for the lifetime of
// the application.
func Module(config HttpConfig) fx.Option {
	return fx.Module("server",
		fx.Supply(config),
		logging.DecorateLogger("http"),
		fx.Provide(NewLifecycleServer),
		// the server has no dependents, force its construction
		fx.Invoke(func(*HttpServer) {}),
	)
}
