package actions

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// File is an action file as authored by a user, in YAML or JSON. Exactly
// one of Actions or Gestures is set.
//
//	actions:
//	  - type: pointer
//	    id: finger1
//	    parameters: {pointerType: touch}
//	    actions:
//	      - {type: pointerMove, x: 100, y: 200, duration: 100, origin: viewport}
//	      - {type: pointerDown, button: 0}
//	      - {type: pointerUp, button: 0}
type File struct {
	Actions  []Sequence `json:"actions,omitempty"`
	Gestures []Gesture  `json:"gestures,omitempty"`
}

const fileSchemaURL = "inline://actions-file"

const fileSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "actions": {
      "type": "array",
      "minItems": 1,
      "items": {"$ref": "#/$defs/source"}
    },
    "gestures": {
      "type": "array",
      "minItems": 1,
      "items": {"$ref": "#/$defs/gesture"}
    }
  },
  "oneOf": [
    {"required": ["actions"]},
    {"required": ["gestures"]}
  ],
  "$defs": {
    "source": {
      "type": "object",
      "required": ["type", "id"],
      "additionalProperties": false,
      "properties": {
        "type": {"enum": ["pointer", "key", "null"]},
        "id": {"type": "string", "minLength": 1},
        "parameters": {
          "type": "object",
          "required": ["pointerType"],
          "additionalProperties": false,
          "properties": {
            "pointerType": {"enum": ["touch", "mouse", "pen"]}
          }
        },
        "actions": {
          "type": "array",
          "items": {"$ref": "#/$defs/step"}
        }
      }
    },
    "step": {
      "type": "object",
      "required": ["type"],
      "additionalProperties": false,
      "properties": {
        "type": {"enum": ["pointerMove", "pointerDown", "pointerUp", "pause", "keyDown", "keyUp"]},
        "duration": {"type": "integer", "minimum": 0},
        "x": {"type": "integer"},
        "y": {"type": "integer"},
        "origin": {"enum": ["viewport", "pointer"]},
        "button": {"type": "integer", "minimum": 0},
        "value": {"type": "string"}
      }
    },
    "gesture": {
      "type": "object",
      "required": ["action"],
      "additionalProperties": false,
      "properties": {
        "action": {"enum": ["tap", "press", "moveTo", "wait", "release"]},
        "options": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "x": {"type": "integer"},
            "y": {"type": "integer"},
            "element": {"type": "string"},
            "count": {"type": "integer", "minimum": 1},
            "ms": {"type": "integer", "minimum": 0}
          }
        }
      }
    }
  }
}`

var (
	compiledFileSchema *jsonschema.Schema
	fileSchemaErr      error
	fileSchemaOnce     sync.Once
)

func fileSchemaValidator() (*jsonschema.Schema, error) {
	fileSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.LoadURL = func(url string) (io.ReadCloser, error) {
			if url == fileSchemaURL {
				return io.NopCloser(bytes.NewReader([]byte(fileSchema))), nil
			}
			return nil, fmt.Errorf("unsupported schema ref: %s", url)
		}
		if err := compiler.AddResource(fileSchemaURL, bytes.NewReader([]byte(fileSchema))); err != nil {
			fileSchemaErr = err
			return
		}
		compiledFileSchema, fileSchemaErr = compiler.Compile(fileSchemaURL)
	})
	return compiledFileSchema, fileSchemaErr
}

// ParseFile decodes an action file. The document is checked against the
// file schema before decoding, and the decoded sources or gestures are then
// validated the same way NewRequest and NewTouchRequest do.
//
// YAML is read with YAML 1.2 rules so a bare y key stays the string "y".
func ParseFile(data []byte) (*File, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, ErrInvalidActions.MsgErr("unable to parse action file", err)
	}
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return nil, ErrInvalidActions.MsgErr("unable to convert action file to JSON", err)
	}

	schema, err := fileSchemaValidator()
	if err != nil {
		return nil, ErrInvalidActions.MsgErr("unable to compile action file schema", err)
	}
	// re-decode so the validator sees JSON types (float64, []any)
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, ErrInvalidActions.MsgErr("unable to decode action file", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, ErrInvalidActions.MsgErr("action file does not match schema", err)
	}

	var f File
	if err := json.Unmarshal(jsonData, &f); err != nil {
		return nil, ErrInvalidActions.MsgErr("unable to decode action file", err)
	}
	if len(f.Actions) > 0 {
		if err := Validate(f.Actions...); err != nil {
			return nil, err
		}
	} else {
		if err := ValidateGestures(f.Gestures...); err != nil {
			return nil, err
		}
	}
	return &f, nil
}
