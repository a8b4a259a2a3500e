package handler

import (
	"github.com/lambda-feedback/shellpool/internal/metrics"
	"github.com/lambda-feedback/shellpool/internal/server"
)

func NewExecRoute(handler *CommandHandler) server.HttpHandlerResult {
	return server.AsHttpHandler("/exec", handler)
}

// NewActionRoute serves any action by the last path element, e.g.
// when deployed behind a path-prefixed gateway.
func NewActionRoute(handler *CommandHandler) server.HttpHandlerResult {
	return server.AsHttpHandler("/", handler)
}

func NewHealthRoute(handler *CommandHandler) server.HttpHandlerResult {
	return server.AsHttpHandler("/health", handler)
}

func NewMetricsRoute(registry *metrics.Registry) server.HttpHandlerResult {
	return server.AsHttpHandler("/metrics", registry.Handler())
}
