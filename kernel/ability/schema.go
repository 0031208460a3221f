package ability

import (
	"fmt"
	"reflect"
	"strings"
)

// schemaForType derives a JSON-Schema-like object schema from an args struct.
// Field names come from json tags, descriptions from "desc" tags, and fields
// without omitempty are required.
func schemaForType[T any]() map[string]any {
	var zero T
	return schemaForReflectType(reflect.TypeOf(zero), "")
}

func schemaForReflectType(t reflect.Type, desc string) map[string]any {
	if t == nil {
		return withDescription(map[string]any{"type": "object"}, desc)
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		properties := map[string]any{}
		required := make([]string, 0, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			name := field.Name
			optional := false
			if tag := field.Tag.Get("json"); tag != "" {
				parts := strings.Split(tag, ",")
				if parts[0] == "-" {
					continue
				}
				if strings.TrimSpace(parts[0]) != "" {
					name = strings.TrimSpace(parts[0])
				}
				for _, opt := range parts[1:] {
					if strings.TrimSpace(opt) == "omitempty" {
						optional = true
					}
				}
			}
			if !optional {
				required = append(required, name)
			}
			properties[name] = schemaForReflectType(field.Type, field.Tag.Get("desc"))
		}
		out := map[string]any{
			"type":       "object",
			"properties": properties,
		}
		if len(required) > 0 {
			out["required"] = required
		}
		return withDescription(out, desc)
	case reflect.String:
		return withDescription(map[string]any{"type": "string"}, desc)
	case reflect.Bool:
		return withDescription(map[string]any{"type": "boolean"}, desc)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return withDescription(map[string]any{"type": "integer"}, desc)
	case reflect.Float32, reflect.Float64:
		return withDescription(map[string]any{"type": "number"}, desc)
	case reflect.Slice, reflect.Array:
		return withDescription(map[string]any{
			"type":  "array",
			"items": schemaForReflectType(t.Elem(), ""),
		}, desc)
	case reflect.Map:
		return withDescription(map[string]any{"type": "object"}, desc)
	default:
		return withDescription(map[string]any{"type": "string"}, desc)
	}
}

func withDescription(schema map[string]any, desc string) map[string]any {
	if strings.TrimSpace(desc) != "" {
		schema["description"] = desc
	}
	return schema
}

// ValidateArgs checks args against an object schema: required fields must be
// present and present fields must match their declared primitive type.
func ValidateArgs(schema map[string]any, args map[string]any) error {
	if schema == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	if required, ok := schema["required"].([]string); ok {
		for _, field := range required {
			if _, exists := args[field]; !exists {
				return fmt.Errorf("ability: missing required field %q", field)
			}
		}
	}
	properties, ok := schema["properties"].(map[string]any)
	if !ok {
		return nil
	}
	for key, value := range args {
		propSchema, ok := properties[key].(map[string]any)
		if !ok {
			continue
		}
		expected, _ := propSchema["type"].(string)
		if expected == "" {
			continue
		}
		if err := validateType(value, expected); err != nil {
			return fmt.Errorf("ability: field %q: %w", key, err)
		}
	}
	return nil
}

func validateType(value any, expected string) error {
	switch expected {
	case "string":
		if _, ok := value.(string); ok {
			return nil
		}
	case "boolean":
		if _, ok := value.(bool); ok {
			return nil
		}
	case "integer":
		if isInteger(value) {
			return nil
		}
	case "number":
		if isNumber(value) {
			return nil
		}
	case "object":
		if _, ok := value.(map[string]any); ok {
			return nil
		}
	case "array":
		if _, ok := value.([]any); ok {
			return nil
		}
	default:
		return nil
	}
	return fmt.Errorf("expected %s, got %T", expected, value)
}

func isNumber(value any) bool {
	switch value.(type) {
	case float64, float32, int, int32, int64:
		return true
	}
	return false
}

func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int32, int64:
		return true
	case float64:
		// JSON decodes all numbers to float64.
		return v == float64(int64(v))
	case float32:
		return v == float32(int64(v))
	}
	return false
}
