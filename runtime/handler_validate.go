package runtime

import (
	"strings"

	"github.com/lambda-feedback/shellpool/runtime/schema"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// validationType is the type of validation.
type validationType int

const (
	// validationTypeRequest is the type of validation for requests.
	validationTypeRequest validationType = iota

	// validationTypeResponse is the type of validation for responses.
	validationTypeResponse
)

func (t validationType) String() string {
	switch t {
	case validationTypeRequest:
		return "request"
	case validationTypeResponse:
		return "response"
	default:
		return "unknown"
	}
}

// validationError is an error that occurs during validation.
type validationError struct {
	Type   validationType
	Result *gojsonschema.Result
}

// newValidationError creates a new validation error.
func newValidationError(t validationType, result *gojsonschema.Result) *validationError {
	return &validationError{
		Type:   t,
		Result: result,
	}
}

func (e *validationError) Error() string {
	return e.Type.String() + " validation failed"
}

// Details returns the individual schema violations.
func (e *validationError) Details() string {
	if e.Result == nil {
		return ""
	}

	details := make([]string, 0, len(e.Result.Errors()))
	for _, desc := range e.Result.Errors() {
		details = append(details, desc.String())
	}

	return strings.Join(details, "; ")
}

// validate validates the data against the schema for the given type.
func (r *RuntimeHandler) validate(
	t validationType,
	schemaType schema.SchemaType,
	data []byte,
) error {
	log := r.log.With(zap.Stringer("type", t))

	s, ok := r.schemas[t]
	if !ok {
		log.Error("validation schema not found")
		return ErrSchemaNotFound
	}

	res, err := s.Validate(schemaType, data)
	if err != nil {
		log.Debug("validation failed", zap.Error(err))
		return ErrValidationFailed
	}

	if res.Valid() {
		return nil
	}

	log.Debug("invalid data", zap.Any("errors", res.Errors()))

	return newValidationError(t, res)
}
