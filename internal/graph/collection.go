package graph

// Collection is a named, addressable set of fields, analogous to a table or
// API endpoint. All derived views (FieldDict, References, Identities) are
// pure recomputations over the static field list.
type Collection struct {
	Name   string
	Fields []Field

	// After lists collections that must finish before this one starts, in
	// addition to readiness implied by field references.
	After map[CollectionAddress]struct{}

	// EraseAfter constrains erasure ordering independently of read ordering.
	EraseAfter map[CollectionAddress]struct{}

	// GroupedInputs names fields whose reference/identity sources vary
	// together as correlated tuples and are never cross-producted
	// independently.
	GroupedInputs map[string]struct{}
}

// FieldDict flattens the field tree into a FieldPath→Field map across all
// nesting levels.
func (c *Collection) FieldDict() map[FieldPath]Field {
	return c.CollectMatching(func(Field) bool { return true })
}

// Field returns the field at path, or nil when absent.
func (c *Collection) Field(path FieldPath) Field {
	return c.FieldDict()[path]
}

// CollectMatching flattens the field tree to every field satisfying pred.
func (c *Collection) CollectMatching(pred func(Field) bool) map[FieldPath]Field {
	out := map[FieldPath]Field{}
	for _, f := range c.Fields {
		for p, m := range f.CollectMatching(pred) {
			out[p] = m
		}
	}
	return out
}

// References returns every field carrying at least one outbound reference.
func (c *Collection) References() map[FieldPath][]Reference {
	out := map[FieldPath][]Reference{}
	for p, f := range c.CollectMatching(func(f Field) bool { return len(f.Meta().References) > 0 }) {
		out[p] = f.Meta().References
	}
	return out
}

// Identities returns every identity-seeded field mapped to its seed-key name.
func (c *Collection) Identities() map[FieldPath]string {
	out := map[FieldPath]string{}
	for p, f := range c.CollectMatching(func(f Field) bool { return f.Meta().Identity != "" }) {
		out[p] = f.Meta().Identity
	}
	return out
}

// FieldPathsByCategory indexes flattened field paths by data category.
func (c *Collection) FieldPathsByCategory() map[string][]FieldPath {
	out := map[string][]FieldPath{}
	for p, f := range c.CollectMatching(func(f Field) bool { return len(f.Meta().DataCategories) > 0 }) {
		for _, cat := range f.Meta().DataCategories {
			out[cat] = append(out[cat], p)
		}
	}
	return out
}

// PrimaryKeys returns the top-level primary-key fields in declaration order.
func (c *Collection) PrimaryKeys() []Field {
	var pks []Field
	for _, f := range c.Fields {
		if f.Meta().PrimaryKey {
			pks = append(pks, f)
		}
	}
	return pks
}

// Dataset is a named group of collections sharing one external connection.
type Dataset struct {
	Name        string
	Collections []*Collection

	// After lists datasets whose collections must all complete before any
	// collection of this dataset is considered ready.
	After map[string]struct{}

	// ConnectionKey identifies the external system / connector that executes
	// this dataset's collections.
	ConnectionKey string
}

// Collection returns the named collection, or nil when absent.
func (d *Dataset) Collection(name string) *Collection {
	for _, c := range d.Collections {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Address returns the address of the named collection within this dataset.
func (d *Dataset) Address(collection string) CollectionAddress {
	return CollectionAddress{Dataset: d.Name, Collection: collection}
}
