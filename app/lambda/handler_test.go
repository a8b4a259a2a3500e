package lambda

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/lambda-feedback/shellpool/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHandler(source ProxySource) *LambdaHandler {
	exec := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	})

	return NewLambdaHandler(LambdaHandlerParams{
		Config: Config{ProxySource: source},
		Handlers: []*server.HttpHandler{
			server.AsHttpHandler("/exec", exec).Handler,
		},
		Context: context.Background(),
		Logger:  zap.NewNop(),
	})
}

func TestGetProxyFunction_Sources(t *testing.T) {
	for _, source := range []ProxySource{
		ProxySourceApiGatewayV1,
		ProxySourceApiGatewayV2,
		ProxySourceAlb,
	} {
		fn, err := newTestHandler(source).getProxyFunction()
		require.NoError(t, err, source)
		assert.NotNil(t, fn, source)
	}
}

func TestGetProxyFunction_InvalidSource(t *testing.T) {
	_, err := newTestHandler("SQS").getProxyFunction()
	assert.ErrorContains(t, err, "invalid proxy source: SQS")
}

func TestGetProxyFunction_ApiGatewayV2RoutesToMux(t *testing.T) {
	fn, err := newTestHandler(ProxySourceApiGatewayV2).getProxyFunction()
	require.NoError(t, err)

	proxy, ok := fn.(func(context.Context, events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error))
	require.True(t, ok)

	res, err := proxy(context.Background(), events.APIGatewayV2HTTPRequest{
		RawPath: "/exec",
		Body:    `{"command":"convert"}`,
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{
				Method: http.MethodPost,
				Path:   "/exec",
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, `{"command":"convert"}`, res.Body)
}

func TestProxySource_String(t *testing.T) {
	assert.Equal(t, "ALB", ProxySourceAlb.String())
}

func TestProxySource_Validate(t *testing.T) {
	assert.NoError(t, ProxySourceApiGatewayV1.Validate())
	assert.NoError(t, ProxySourceApiGatewayV2.Validate())
	assert.NoError(t, ProxySourceAlb.Validate())
	assert.Error(t, ProxySource("").Validate())
}
