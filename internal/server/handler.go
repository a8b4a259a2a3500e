package server

import (
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// HttpHandler is a handler mounted on a ServeMux pattern.
type HttpHandler struct {
	Pattern string
	Handler http.Handler
}

type HttpHandlerResult struct {
	fx.Out

	Handler *HttpHandler `group:"handlers"`
}

// AsHttpHandler contributes the handler to the handlers group that
// every transport mounts.
func AsHttpHandler(
	pattern string,
	handler http.Handler,
) HttpHandlerResult {
	return HttpHandlerResult{
		Handler: &HttpHandler{
			Pattern: pattern,
			Handler: handler,
		},
	}
}

// NewServeMux mounts the handlers on a new mux. The http server and
// the lambda proxy serve the same mux.
func NewServeMux(handlers []*HttpHandler, log *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	for _, handler := range handlers {
		log.Debug("mounting route", zap.String("pattern", handler.Pattern))
		mux.Handle(handler.Pattern, handler.Handler)
	}

	return mux
}
