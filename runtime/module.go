package runtime

import "go.uber.org/fx"

// Module provides a runtime module. The runtime is started and shut
// down with the application lifecycle.
func Module(config Config) fx.Option {
	return fx.Module(
		"runtime",

		// provide runtime config
		fx.Supply(config),

		// provide runtime
		fx.Provide(NewLifecycleRuntime),

		// provide runtime handler
		fx.Provide(NewRuntimeHandler),
	)
}
