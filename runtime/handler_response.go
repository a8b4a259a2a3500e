package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lambda-feedback/shellpool/internal/execution/dispatcher"
	"github.com/lambda-feedback/shellpool/internal/execution/worker"
)

var wellKnownErrors = []struct {
	err    error
	status int
}{
	{ErrInvalidMethod, http.StatusMethodNotAllowed},
	{ErrSchemaNotFound, http.StatusInternalServerError},
	{ErrActionNotFound, http.StatusNotFound},
	{ErrValidationFailed, http.StatusBadRequest},
	{dispatcher.ErrInvalidCommand, http.StatusBadRequest},
	{dispatcher.ErrDispatcherClosed, http.StatusServiceUnavailable},
	{worker.ErrWorkerExited, http.StatusBadGateway},
	{worker.ErrWorkerTerminated, http.StatusBadGateway},
	{context.DeadlineExceeded, http.StatusGatewayTimeout},
	// the client went away or the server is shutting down
	{context.Canceled, http.StatusServiceUnavailable},
}

// getErrorStatusCode returns the status code for the given error.
func getErrorStatusCode(err error) int {
	for _, known := range wellKnownErrors {
		if errors.Is(err, known.err) {
			return known.status
		}
	}

	var stderrErr *worker.StderrError
	if errors.As(err, &stderrErr) {
		return http.StatusBadGateway
	}

	var validationErr *validationError
	if errors.As(err, &validationErr) {
		if validationErr.Type == validationTypeResponse {
			return http.StatusInternalServerError
		}
		return http.StatusUnprocessableEntity
	}

	return http.StatusInternalServerError
}

// newErrorResponse creates a new error response.
func newErrorResponse(err error) Response {
	statusCode := getErrorStatusCode(err)

	type responseError struct {
		Message string `json:"message"`
		Error   string `json:"error,omitempty"`
	}

	responseErr := responseError{
		Message: err.Error(),
	}

	var validationErr *validationError
	if errors.As(err, &validationErr) {
		responseErr.Error = validationErr.Details()
	}

	body, err := json.Marshal(struct {
		Error responseError `json:"error"`
	}{
		Error: responseErr,
	})
	if err != nil {
		return Response{StatusCode: http.StatusInternalServerError}
	}

	return newResponse(statusCode, body)
}

// newResponse creates a new response.
func newResponse(status int, body []byte) Response {
	header := make(http.Header)
	header.Add("Content-Type", "application/json")

	return Response{
		StatusCode: status,
		Body:       body,
		Header:     header,
	}
}
