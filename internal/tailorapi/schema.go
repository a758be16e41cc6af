package tailorapi

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed status.schema.json
var statusSchemaJSON []byte

var (
	statusSchemaOnce sync.Once
	statusSchema     *jsonschema.Schema
	statusSchemaErr  error
)

func compiledStatusSchema() (*jsonschema.Schema, error) {
	statusSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("status.schema.json", bytes.NewReader(statusSchemaJSON)); err != nil {
			statusSchemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		statusSchema, statusSchemaErr = compiler.Compile("status.schema.json")
	})
	return statusSchema, statusSchemaErr
}

// validateStatus checks a raw status body against the embedded schema.
func validateStatus(data []byte) error {
	schema, err := compiledStatusSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
