package runtime_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/lambda-feedback/shellpool/internal/execution/dispatcher"
	"github.com/lambda-feedback/shellpool/internal/execution/worker"
	"github.com/lambda-feedback/shellpool/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// mockRuntime implements the runtime.Runtime interface.
type mockRuntime struct {
	mock.Mock
}

func (m *mockRuntime) Handle(ctx context.Context, request runtime.ExecRequest) (runtime.ExecResponse, error) {
	args := m.Called(ctx, request)
	return args.Get(0).(runtime.ExecResponse), args.Error(1)
}

func (m *mockRuntime) Exec(command string, callback func(error)) error {
	args := m.Called(command, callback)
	return args.Error(0)
}

func (m *mockRuntime) Stats() runtime.Stats {
	args := m.Called()
	return args.Get(0).(runtime.Stats)
}

func (m *mockRuntime) Start(ctx context.Context) error {
	// not required for tests
	panic("not required")
}

func (m *mockRuntime) Shutdown(ctx context.Context) error {
	// not required for tests
	panic("not required")
}

func setupHandler(t *testing.T) (runtime.Handler, *mockRuntime) {
	rt := new(mockRuntime)

	handler, err := runtime.NewRuntimeHandler(runtime.HandlerParams{
		Runtime: rt,
		Log:     zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	return handler, rt
}

func createRequest(method, path string, body []byte) runtime.Request {
	return runtime.Request{
		Method: method,
		Path:   path,
		Body:   body,
		Header: make(http.Header),
	}
}

func parseBody(t *testing.T, resp runtime.Response) map[string]any {
	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body, &body))
	return body
}

func errorMessage(t *testing.T, resp runtime.Response) string {
	body := parseBody(t, resp)

	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok, "response has no error object")

	return errBody["message"].(string)
}

func TestRuntimeHandler_Exec_Success(t *testing.T) {
	handler, rt := setupHandler(t)

	request := runtime.ExecRequest{Command: "file.svg --export-png=file.png"}
	rt.On("Handle", mock.Anything, request).Return(runtime.ExecResponse{
		Command:    request.Command,
		Status:     "ok",
		DurationMs: 12,
	}, nil)

	resp := handler.Handle(context.Background(), createRequest(
		http.MethodPost, "/exec", []byte(`{"command": "file.svg --export-png=file.png"}`),
	))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	body := parseBody(t, resp)
	assert.Equal(t, "file.svg --export-png=file.png", body["command"])
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(12), body["duration_ms"])

	rt.AssertExpectations(t)
}

func TestRuntimeHandler_Exec_ActionFromHeader(t *testing.T) {
	handler, rt := setupHandler(t)

	rt.On("Handle", mock.Anything, mock.Anything).Return(runtime.ExecResponse{
		Command: "x",
		Status:  "ok",
	}, nil)

	req := createRequest(http.MethodPost, "/", []byte(`{"command": "x"}`))
	req.Header.Set("action", "exec")

	resp := handler.Handle(context.Background(), req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRuntimeHandler_Exec_InvalidMethod(t *testing.T) {
	handler, _ := setupHandler(t)

	resp := handler.Handle(context.Background(), createRequest(http.MethodGet, "/exec", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "invalid method", errorMessage(t, resp))
}

func TestRuntimeHandler_Exec_InvalidJSON(t *testing.T) {
	handler, _ := setupHandler(t)

	resp := handler.Handle(context.Background(), createRequest(http.MethodPost, "/exec", []byte(`{"command":`)))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation failed", errorMessage(t, resp))
}

func TestRuntimeHandler_Exec_SchemaViolation(t *testing.T) {
	handler, rt := setupHandler(t)

	resp := handler.Handle(context.Background(), createRequest(http.MethodPost, "/exec", []byte(`{"cmd": "x"}`)))

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "request validation failed", errorMessage(t, resp))

	body := parseBody(t, resp)
	assert.NotEmpty(t, body["error"].(map[string]any)["error"])

	rt.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
}

func TestRuntimeHandler_Exec_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid command", dispatcher.ErrInvalidCommand, http.StatusBadRequest},
		{"dispatcher closed", dispatcher.ErrDispatcherClosed, http.StatusServiceUnavailable},
		{"stderr output", fmt.Errorf("command failed: %w", &worker.StderrError{Output: "boom\n"}), http.StatusBadGateway},
		{"worker exited", worker.ErrWorkerExited, http.StatusBadGateway},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"cancelled", fmt.Errorf("waiting for command: %w", context.Canceled), http.StatusServiceUnavailable},
		{"unknown", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, rt := setupHandler(t)

			rt.On("Handle", mock.Anything, mock.Anything).Return(runtime.ExecResponse{}, tt.err)

			resp := handler.Handle(context.Background(), createRequest(
				http.MethodPost, "/exec", []byte(`{"command": "x"}`),
			))

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.err.Error(), errorMessage(t, resp))
		})
	}
}

func TestRuntimeHandler_Health(t *testing.T) {
	handler, rt := setupHandler(t)

	rt.On("Stats").Return(runtime.Stats{Workers: 2, Queued: 7, Busy: 2})

	resp := handler.Handle(context.Background(), createRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","workers":2,"queued":7,"busy":2}`, string(resp.Body))
}

func TestRuntimeHandler_Health_InvalidMethod(t *testing.T) {
	handler, _ := setupHandler(t)

	resp := handler.Handle(context.Background(), createRequest(http.MethodPost, "/health", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRuntimeHandler_UnknownAction(t *testing.T) {
	handler, _ := setupHandler(t)

	for _, path := range []string{"/", "", "/unknown", "/api/other"} {
		resp := handler.Handle(context.Background(), createRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestRuntimeHandler_NestedPath(t *testing.T) {
	handler, rt := setupHandler(t)

	rt.On("Stats").Return(runtime.Stats{Workers: 1})

	resp := handler.Handle(context.Background(), createRequest(http.MethodGet, "/api/v1/health/", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
