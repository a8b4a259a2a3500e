package standalone

import (
	"go.uber.org/fx"

	"github.com/lambda-feedback/shellpool/handler"
	"github.com/lambda-feedback/shellpool/internal/server"
	"github.com/lambda-feedback/shellpool/util/logging"
)

// Module serves the command handlers over http.
func Module(config Config) fx.Option {
	return fx.Module(
		"serve",
		// rename logger for module
		logging.DecorateLogger("serve"),
		// provide handlers
		handler.Module(),
		// provide server
		server.Module(config.HttpConfig),
	)
}
