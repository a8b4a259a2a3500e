package schema

import (
	_ "embed"
	"encoding/json"
	"errors"

	"github.com/xeipuuv/gojsonschema"
)

type SchemaType int

const (
	SchemaTypeExec SchemaType = iota
	SchemaTypeHealth
)

var ErrSchemaNotFound = errors.New("schema not found")

type Schema struct {
	schemas map[SchemaType]*gojsonschema.Schema
}

func new(schemas map[SchemaType]*gojsonschema.Schema) *Schema {
	return &Schema{schemas: schemas}
}

func (s *Schema) Get(schemaType SchemaType) (*gojsonschema.Schema, error) {
	schema, ok := s.schemas[schemaType]
	if !ok {
		return nil, ErrSchemaNotFound
	}

	return schema, nil
}

// Validate validates the raw JSON document against the schema of the
// given type. An error is returned if the document is not valid JSON.
func (s *Schema) Validate(schemaType SchemaType, data []byte) (*gojsonschema.Result, error) {
	schema, err := s.Get(schemaType)
	if err != nil {
		return nil, err
	}

	return schema.Validate(gojsonschema.NewBytesLoader(data))
}

//go:embed request-exec.json
var execRequest json.RawMessage
var execRequestLoader = gojsonschema.NewBytesLoader(execRequest)

func NewRequestSchema() (*Schema, error) {
	execSchema, err := gojsonschema.NewSchema(execRequestLoader)
	if err != nil {
		return nil, err
	}

	return new(map[SchemaType]*gojsonschema.Schema{
		SchemaTypeExec: execSchema,
	}), nil
}

//go:embed response-exec.json
var execResponse json.RawMessage
var execResponseLoader = gojsonschema.NewBytesLoader(execResponse)

//go:embed response-health.json
var healthResponse json.RawMessage
var healthResponseLoader = gojsonschema.NewBytesLoader(healthResponse)

func NewResponseSchema() (*Schema, error) {
	execSchema, err := gojsonschema.NewSchema(execResponseLoader)
	if err != nil {
		return nil, err
	}

	healthSchema, err := gojsonschema.NewSchema(healthResponseLoader)
	if err != nil {
		return nil, err
	}

	return new(map[SchemaType]*gojsonschema.Schema{
		SchemaTypeExec:   execSchema,
		SchemaTypeHealth: healthSchema,
	}), nil
}
