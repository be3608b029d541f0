package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// operationSchema constrains the poll response to what the decoder relies on.
const operationSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["status"],
  "properties": {
    "status": {"type": "string", "enum": ["notStarted", "running", "succeeded", "failed", "canceled"]},
    "error": {
      "type": "object",
      "properties": {"code": {"type": "string"}, "message": {"type": "string"}}
    },
    "analyzeResult": {
      "type": "object",
      "properties": {
        "modelId": {"type": "string"},
        "documents": {
          "type": "array",
          "items": {
            "type": "object",
            "properties": {
              "docType": {"type": "string"},
              "confidence": {"type": "number"},
              "fields": {"type": "object", "additionalProperties": {"$ref": "#/definitions/field"}}
            }
          }
        }
      }
    }
  },
  "definitions": {
    "field": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"type": "string"},
        "valueString": {"type": "string"},
        "valueDate": {"type": "string"},
        "valueInteger": {"type": "integer"},
        "valueArray": {"type": "array", "items": {"$ref": "#/definitions/field"}},
        "content": {"type": "string"},
        "confidence": {"type": "number"}
      }
    }
  }
}`

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("operation.json", bytes.NewReader([]byte(operationSchema))); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("operation.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// validate checks raw against the operation schema.
func validate(schema *jsonschema.Schema, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("response does not match schema: %w", err)
	}
	return nil
}
