package lambda

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/lambda-feedback/shellpool/internal/server"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// LambdaHandlerParams represents the dependencies of the Lambda handler.
type LambdaHandlerParams struct {
	fx.In

	Config Config

	// Handlers are the routes shared with the http server.
	Handlers []*server.HttpHandler `group:"handlers"`

	// Context bounds the lifetime of the Lambda runtime client.
	Context context.Context

	Logger *zap.Logger
}

// LambdaHandler serves the command routes to the AWS Lambda runtime.
// Every invocation is translated to an http request on the routes
// mux, so commands are queued on the same pool as in serve mode.
type LambdaHandler struct {
	source ProxySource
	ctx    context.Context
	cancel context.CancelFunc
	mux    *http.ServeMux
	log    *zap.Logger
}

func NewLambdaHandler(params LambdaHandlerParams) *LambdaHandler {
	ctx, cancel := context.WithCancel(params.Context)

	return &LambdaHandler{
		source: params.Config.ProxySource,
		ctx:    ctx,
		cancel: cancel,
		mux:    server.NewServeMux(params.Handlers, params.Logger),
		log:    params.Logger,
	}
}

// NewLifecycleHandler creates a LambdaHandler that starts and stops
// along with the fx application.
func NewLifecycleHandler(params LambdaHandlerParams, lc fx.Lifecycle) *LambdaHandler {
	handler := NewLambdaHandler(params)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return handler.Start()
		},
		OnStop: func(context.Context) error {
			handler.Shutdown()
			return nil
		},
	})
	return handler
}

// Start runs the Lambda runtime client in a new goroutine. It fails
// if the proxy source is unknown.
func (s *LambdaHandler) Start() error {
	handler, err := s.getProxyFunction()
	if err != nil {
		return err
	}

	s.log.Info("waiting for lambda events", zap.Stringer("proxy_source", s.source))

	go lambda.StartWithOptions(handler, lambda.WithContext(s.ctx))

	return nil
}

// Shutdown stops accepting Lambda events.
func (s *LambdaHandler) Shutdown() {
	s.cancel()
}

// getProxyFunction returns the event handler translating events of
// the configured source into requests on the routes mux.
func (s *LambdaHandler) getProxyFunction() (any, error) {
	if err := s.source.Validate(); err != nil {
		return nil, err
	}

	switch s.source {
	case ProxySourceApiGatewayV1:
		return httpadapter.New(s.mux).ProxyWithContext, nil
	case ProxySourceAlb:
		return httpadapter.NewALB(s.mux).ProxyWithContext, nil
	default:
		return httpadapter.NewV2(s.mux).ProxyWithContext, nil
	}
}
