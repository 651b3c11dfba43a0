package graph

import (
	"fmt"
	"sort"
)

// RefDirection says which way data flows across a field reference. A "from"
// reference pulls values produced by the target field; a "to" reference
// pushes this field's values toward the target.
type RefDirection string

const (
	RefFrom RefDirection = "from"
	RefTo   RefDirection = "to"
)

// Reference links a field to a field in another collection.
type Reference struct {
	Field     FieldAddress
	Direction RefDirection
}

// FieldMeta carries the attributes shared by scalar and object fields.
type FieldMeta struct {
	Name           string
	PrimaryKey     bool
	Identity       string // seed-key name, "" when the field is not identity-seeded
	DataCategories []string
	References     []Reference
	Type           string
	Length         int
	IsArray        bool
	ReadOnly       bool
}

// Field is the polymorphic node of a collection's field tree. Exactly two
// variants exist: *ScalarField and *ObjectField.
type Field interface {
	// Meta exposes the shared attributes.
	Meta() *FieldMeta

	// Cast converts a raw value per the declared type. Object fields cast
	// recursively and only keep the keys present in the supplied value;
	// absent keys are dropped, never defaulted.
	Cast(v any) any

	// CollectMatching flattens the subtree into a FieldPath→Field map of
	// every field satisfying pred, child paths prefixed with the owner's
	// name.
	CollectMatching(pred func(Field) bool) map[FieldPath]Field
}

// ScalarField is a leaf field holding a single (possibly array) value.
type ScalarField struct {
	FieldMeta
	convert ConvertFunc
}

// Meta implements Field.
func (f *ScalarField) Meta() *FieldMeta { return &f.FieldMeta }

// Cast converts v per the declared type. Template tokens and nil pass
// through unchanged.
func (f *ScalarField) Cast(v any) any {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok && isTemplateToken(s) {
		return s
	}
	if f.convert == nil {
		return v
	}
	return f.convert(v)
}

// CollectMatching implements Field for the scalar variant.
func (f *ScalarField) CollectMatching(pred func(Field) bool) map[FieldPath]Field {
	if pred(f) {
		return map[FieldPath]Field{NewFieldPath(f.Name): f}
	}
	return map[FieldPath]Field{}
}

// ObjectField is an interior field owning named children.
type ObjectField struct {
	FieldMeta
	Fields map[string]Field

	// ReturnAllElements requests that array-valued object results are kept
	// whole instead of being filtered to matching elements.
	ReturnAllElements bool
}

// Meta implements Field.
func (f *ObjectField) Meta() *FieldMeta { return &f.FieldMeta }

// Cast recursively casts only the keys present in the supplied object.
// Values that are not objects cast to nil.
func (f *ObjectField) Cast(v any) any {
	if v == nil {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]any, len(m))
	for name, child := range f.Fields {
		raw, present := m[name]
		if !present {
			continue
		}
		out[name] = child.Cast(raw)
	}
	return out
}

// CollectMatching returns the object's own match (if any) unioned with every
// child's matches, each child path prefixed with the object's name.
func (f *ObjectField) CollectMatching(pred func(Field) bool) map[FieldPath]Field {
	out := map[FieldPath]Field{}
	if pred(f) {
		out[NewFieldPath(f.Name)] = f
	}
	for _, name := range sortedKeys(f.Fields) {
		for p, m := range f.Fields[name].CollectMatching(pred) {
			out[p.Prepend(f.Name)] = m
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FieldParams collects the inputs of GenerateField.
type FieldParams struct {
	Name              string
	DataCategories    []string
	Identity          string
	Type              string
	References        []Reference
	PrimaryKey        bool
	Length            int
	IsArray           bool
	SubFields         []Field
	ReturnAllElements bool
	ReadOnly          bool
}

// GenerateField is the single field-construction entry point. A non-empty
// SubFields list yields an *ObjectField, otherwise a *ScalarField. Object
// fields may not carry data categories or identity pointers; only scalar
// leaves may.
func GenerateField(p FieldParams, reg *TypeRegistry) (Field, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("graph: field name must not be empty")
	}
	meta := FieldMeta{
		Name:           p.Name,
		PrimaryKey:     p.PrimaryKey,
		Identity:       p.Identity,
		DataCategories: p.DataCategories,
		References:     p.References,
		Type:           p.Type,
		Length:         p.Length,
		IsArray:        p.IsArray,
		ReadOnly:       p.ReadOnly,
	}
	if len(p.SubFields) == 0 {
		var convert ConvertFunc
		if reg != nil {
			convert = reg.Converter(p.Type)
		}
		return &ScalarField{FieldMeta: meta, convert: convert}, nil
	}
	if len(p.DataCategories) > 0 {
		return nil, fmt.Errorf("graph: object field %q may not carry data categories; annotate its scalar leaves", p.Name)
	}
	if p.Identity != "" {
		return nil, fmt.Errorf("graph: object field %q may not carry an identity pointer; only scalar leaves may", p.Name)
	}
	children := make(map[string]Field, len(p.SubFields))
	for _, sub := range p.SubFields {
		name := sub.Meta().Name
		if _, dup := children[name]; dup {
			return nil, fmt.Errorf("graph: duplicate sub-field %q under %q", name, p.Name)
		}
		children[name] = sub
	}
	return &ObjectField{FieldMeta: meta, Fields: children, ReturnAllElements: p.ReturnAllElements}, nil
}
