package handler

import "go.uber.org/fx"

// Module provides the command handler and its http routes.
func Module() fx.Option {
	return fx.Module("handler",
		fx.Provide(NewCommandHandler),
		fx.Provide(NewExecRoute),
		fx.Provide(NewActionRoute),
		fx.Provide(NewHealthRoute),
		fx.Provide(NewMetricsRoute),
	)
}
