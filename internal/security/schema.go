package security

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const moveSchemaURL = "tickrpg://schema/move.json"

// moveSchema is the accepted shape of a client move payload: either a
// target position or an explicit cancel.
const moveSchema = `{
  "type": "object",
  "properties": {
    "x":      {"type": "number"},
    "z":      {"type": "number"},
    "layer":  {"type": "integer"},
    "run":    {"type": "boolean"},
    "cancel": {"type": "boolean"},
    "seq":    {"type": "integer", "minimum": 0}
  },
  "additionalProperties": false,
  "anyOf": [
    {"required": ["x", "z"]},
    {"required": ["cancel"], "properties": {"cancel": {"const": true}}}
  ]
}`

func compileMoveSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(moveSchemaURL, strings.NewReader(moveSchema)); err != nil {
		return nil, fmt.Errorf("add move schema: %w", err)
	}
	s, err := c.Compile(moveSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile move schema: %w", err)
	}
	return s, nil
}

// jsonValue converts a decoded wire value to the types the schema validator
// understands. Integers become json.Number so "integer" checks stay exact.
func jsonValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = jsonValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = jsonValue(e)
		}
		return out
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return json.Number(fmt.Sprint(x))
	case float32:
		return float64(x)
	}
	return v
}

// numeric extracts a float from any decoded number type.
func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
