package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// ConvertFunc coerces a raw configuration or backend value into the declared
// field type. Converters must be idempotent: applying one twice yields the
// same value as applying it once.
type ConvertFunc func(any) any

// TypeRegistry maps declared type names to converters. It is built once and
// passed explicitly into the graph builder; no package-level registry exists.
type TypeRegistry struct {
	converters map[string]ConvertFunc
}

// NewTypeRegistry returns a registry preloaded with the built-in scalar
// types. Unknown type names fall back to pass-through conversion.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{converters: map[string]ConvertFunc{
		"string":    toString,
		"integer":   toInt,
		"float":     toFloat,
		"boolean":   toBool,
		"object_id": passthrough,
	}}
}

// Register adds or replaces a converter. Returns the registry for chaining.
func (r *TypeRegistry) Register(name string, fn ConvertFunc) *TypeRegistry {
	r.converters[name] = fn
	return r
}

// Converter returns the converter for name, or pass-through when the name is
// unknown or empty.
func (r *TypeRegistry) Converter(name string) ConvertFunc {
	if fn, ok := r.converters[name]; ok {
		return fn
	}
	return passthrough
}

func passthrough(v any) any { return v }

// isTemplateToken reports whether a string is a placeholder left for later
// substitution (e.g. "<instance_key>" or "{email}"); such tokens must pass
// through conversion unchanged.
func isTemplateToken(s string) bool {
	if len(s) < 2 {
		return false
	}
	return (strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">")) ||
		(strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}"))
}

func toString(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func toInt(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case int:
		return t
	case int32:
		return int(t)
	case int64:
		return int(t)
	case float64:
		return int(t)
	case float32:
		return int(t)
	case string:
		if isTemplateToken(t) {
			return t
		}
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
		return t
	default:
		return v
	}
}

func toFloat(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		if isTemplateToken(t) {
			return t
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f
		}
		return t
	default:
		return v
	}
}

func toBool(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case bool:
		return t
	case string:
		if isTemplateToken(t) {
			return t
		}
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return b
		}
		return t
	default:
		return v
	}
}
