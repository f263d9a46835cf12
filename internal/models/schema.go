package models

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const dataSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "object"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "object": {"enum": ["model", "map"]},
    "name": {"type": ["string", "null"]},
    "source": {"type": ["object", "null"]}
  }
}`

const sceneSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "data"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "object": {"const": "scene"},
    "revision": {"type": ["integer", "null"], "minimum": 0},
    "data": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "object"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "object": {"enum": ["model", "map"]}
        }
      }
    },
    "colors": {"type": ["array", "null"], "items": {"type": "object", "required": ["id"]}},
    "styles": {"type": ["array", "null"], "items": {"type": "object", "required": ["id"]}},
    "focus": {"type": ["object", "null"]},
    "environment": {"type": ["object", "null"]}
  }
}`

var (
	dataSchema  = jsonschema.MustCompileString("https://scenesync.local/schemas/data.json", dataSchemaJSON)
	sceneSchema = jsonschema.MustCompileString("https://scenesync.local/schemas/scene.json", sceneSchemaJSON)
)

// ValidateScene checks raw against the scene document schema. Violations are
// reported as ErrMalformedScene.
func ValidateScene(raw json.RawMessage) error {
	return validate(sceneSchema, raw, ErrMalformedScene)
}

// ValidateData checks raw against the data object schema.
func ValidateData(raw json.RawMessage) error {
	return validate(dataSchema, raw, ErrUnsupportedObjectType)
}

func validate(s *jsonschema.Schema, raw json.RawMessage, kind error) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("%w: %v", kind, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", kind, err)
	}
	return nil
}
