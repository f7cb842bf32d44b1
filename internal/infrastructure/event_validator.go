package infrastructure

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/yourusername/kiwix-monitor-go/internal/domain"
)

const eventSchemaURL = "kiwix-monitor://schemas/engine-event.json"

// engineEventSchema describes the wire form of domain.EventEnvelope
const engineEventSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["kind", "operation"],
  "properties": {
    "kind": {
      "enum": ["added", "cancelled", "completed", "deleted", "block_updated", "error",
               "paused", "progress", "queued", "removed", "resumed", "started", "waiting_network"]
    },
    "operation": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": {"type": "integer", "minimum": -2147483648, "maximum": 2147483647},
        "status": {
          "enum": ["", "none", "queued", "added", "downloading", "paused", "completed",
                   "error", "cancelled", "removed", "waiting_on_network"]
        },
        "title": {"type": "string"},
        "file_ref": {"type": "string"},
        "file_name": {"type": "string"},
        "progress": {"type": "integer"},
        "downloaded_bytes": {"type": "integer", "minimum": 0},
        "total_bytes": {"type": "integer", "minimum": 0},
        "error_message": {"type": "string"}
      }
    },
    "error": {"type": "string"},
    "eta_ms": {"type": "integer"},
    "bytes_per_second": {"type": "integer", "minimum": 0},
    "waiting_on_network": {"type": "boolean"},
    "block": {"$ref": "#/$defs/block"},
    "blocks": {"type": "array", "items": {"$ref": "#/$defs/block"}},
    "total_blocks": {"type": "integer", "minimum": 0}
  },
  "$defs": {
    "block": {
      "type": "object",
      "properties": {
        "index": {"type": "integer", "minimum": 0},
        "start_byte": {"type": "integer", "minimum": 0},
        "end_byte": {"type": "integer", "minimum": 0},
        "downloaded_bytes": {"type": "integer", "minimum": 0}
      }
    }
  }
}`

// EventValidator checks engine event payloads against the envelope schema
type EventValidator struct {
	schema *jsonschema.Schema
}

// NewEventValidator compiles the engine event schema
func NewEventValidator() (*EventValidator, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(engineEventSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse event schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(eventSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add event schema: %w", err)
	}
	schema, err := c.Compile(eventSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile event schema: %w", err)
	}
	return &EventValidator{schema: schema}, nil
}

// Validate returns a domain.ErrInvalidEvent wrapped error when payload does not match
func (v *EventValidator) Validate(payload []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidEvent, err)
	}
	if err := v.schema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidEvent, err)
	}
	return nil
}
