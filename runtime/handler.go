package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/lambda-feedback/shellpool/runtime/schema"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrInvalidMethod    = errors.New("invalid method")
	ErrSchemaNotFound   = errors.New("schema not found")
	ErrActionNotFound   = errors.New("action not found")
	ErrValidationFailed = errors.New("validation failed")
)

// Action is the operation addressed by a request path.
type Action string

const (
	ActionExec   Action = "exec"
	ActionHealth Action = "health"
)

// HandlerParams defines the dependencies for the runtime handler.
type HandlerParams struct {
	fx.In

	Runtime Runtime

	Log *zap.Logger
}

// Request represents an incoming request.
type Request struct {
	Path   string
	Method string
	Body   []byte
	Header http.Header
}

// Response represents an outgoing response.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Handler is the interface for handling runtime requests.
type Handler interface {
	Handle(ctx context.Context, request Request) Response
}

// RuntimeHandler is a runtime handler that uses a runtime to handle requests.
type RuntimeHandler struct {
	runtime Runtime

	schemas map[validationType]*schema.Schema

	log *zap.Logger
}

// NewRuntimeHandler creates a new runtime handler.
func NewRuntimeHandler(params HandlerParams) (Handler, error) {
	requestSchema, err := schema.NewRequestSchema()
	if err != nil {
		return nil, err
	}

	responseSchema, err := schema.NewResponseSchema()
	if err != nil {
		return nil, err
	}

	schemas := map[validationType]*schema.Schema{
		validationTypeRequest:  requestSchema,
		validationTypeResponse: responseSchema,
	}

	return &RuntimeHandler{
		runtime: params.Runtime,
		schemas: schemas,
		log:     params.Log.Named("runtime_handler"),
	}, nil
}

// Handle handles a runtime request.
func (h *RuntimeHandler) Handle(ctx context.Context, req Request) Response {
	log := h.log.With(
		zap.String("path", req.Path),
		zap.String("method", req.Method),
	)

	action, ok := getAction(req)
	if !ok {
		log.Debug("unknown action")
		return newErrorResponse(ErrActionNotFound)
	}

	switch action {
	case ActionExec:
		return h.handleExec(ctx, req, log)
	case ActionHealth:
		return h.handleHealth(req, log)
	default:
		return newErrorResponse(ErrActionNotFound)
	}
}

func (h *RuntimeHandler) handleExec(ctx context.Context, req Request, log *zap.Logger) Response {
	if req.Method != http.MethodPost {
		log.Debug("invalid method")
		return newErrorResponse(ErrInvalidMethod)
	}

	// Validate the request data against the request schema
	if err := h.validate(validationTypeRequest, schema.SchemaTypeExec, req.Body); err != nil {
		return newErrorResponse(err)
	}

	var request ExecRequest
	if err := json.Unmarshal(req.Body, &request); err != nil {
		log.Debug("failed to decode request", zap.Error(err))
		return newErrorResponse(ErrValidationFailed)
	}

	// Let the runtime execute the command
	response, err := h.runtime.Handle(ctx, request)
	if err != nil {
		log.Debug("failed to handle command", zap.Error(err))
		return newErrorResponse(err)
	}

	return h.respond(schema.SchemaTypeExec, response, log)
}

func (h *RuntimeHandler) handleHealth(req Request, log *zap.Logger) Response {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		log.Debug("invalid method")
		return newErrorResponse(ErrInvalidMethod)
	}

	return h.respond(schema.SchemaTypeHealth, HealthResponse{
		Status: "ok",
		Stats:  h.runtime.Stats(),
	}, log)
}

// respond encodes the data and validates it against the response schema.
func (h *RuntimeHandler) respond(t schema.SchemaType, data any, log *zap.Logger) Response {
	body, err := json.Marshal(data)
	if err != nil {
		log.Error("failed to encode response", zap.Error(err))
		return newErrorResponse(err)
	}

	if err := h.validate(validationTypeResponse, t, body); err != nil {
		return newErrorResponse(err)
	}

	return newResponse(http.StatusOK, body)
}

// getAction returns the action from the last element of the request
// path, or from the action header if set.
func getAction(req Request) (Action, bool) {
	if action := req.Header.Get("action"); action != "" {
		return Action(action), true
	}

	path := strings.Trim(req.Path, "/")
	if path == "" {
		return "", false
	}

	elements := strings.Split(path, "/")

	return Action(elements[len(elements)-1]), true
}
