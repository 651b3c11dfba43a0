// Package graph holds the static dependency graph a subject-request
// execution plan is built from: addressable datasets, collections, and
// fields, plus the traversal-ordering rules derived from cross-collection
// references. The graph is assembled once per execution plan and is
// read-only afterwards; all types in this package are safe for concurrent
// reads.
package graph

import (
	"fmt"
	"strings"
)

// CollectionAddress identifies a collection within a dataset. Its canonical
// string form is "dataset:collection". The zero value is not a valid address.
type CollectionAddress struct {
	Dataset    string
	Collection string
}

// Root is the synthetic entry node; every identity-seeded start node is a
// child of Root in a traversal.
var Root = CollectionAddress{Dataset: "__ROOT__", Collection: "__ROOT__"}

// Terminator is the synthetic exit node marking traversal completion.
var Terminator = CollectionAddress{Dataset: "__TERMINATE__", Collection: "__TERMINATE__"}

// ParseCollectionAddress parses the canonical "dataset:collection" form.
func ParseCollectionAddress(s string) (CollectionAddress, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return CollectionAddress{}, fmt.Errorf("graph: %q is not a valid collection address (want dataset:collection)", s)
	}
	return CollectionAddress{Dataset: parts[0], Collection: parts[1]}, nil
}

// String returns the canonical "dataset:collection" form.
func (a CollectionAddress) String() string {
	return a.Dataset + ":" + a.Collection
}

// Compare orders addresses by their canonical string form.
func (a CollectionAddress) Compare(b CollectionAddress) int {
	return strings.Compare(a.String(), b.String())
}

// IsZero reports whether the address is the empty value.
func (a CollectionAddress) IsZero() bool {
	return a.Dataset == "" && a.Collection == ""
}

// FieldPath is an ordered tuple of name segments addressing a (possibly
// nested) field inside a collection. The canonical form joins segments with
// dots: ("a","b","c") renders as "a.b.c". FieldPath is comparable and usable
// as a map key.
type FieldPath struct {
	path string
}

// NewFieldPath builds a path from segments. Empty segments are invalid and
// collapse to the zero path.
func NewFieldPath(segments ...string) FieldPath {
	for _, s := range segments {
		if s == "" || strings.Contains(s, ".") {
			return FieldPath{}
		}
	}
	return FieldPath{path: strings.Join(segments, ".")}
}

// ParseFieldPath parses the dotted canonical form.
func ParseFieldPath(s string) (FieldPath, error) {
	if s == "" {
		return FieldPath{}, fmt.Errorf("graph: empty field path")
	}
	for _, seg := range strings.Split(s, ".") {
		if seg == "" {
			return FieldPath{}, fmt.Errorf("graph: %q is not a valid field path", s)
		}
	}
	return FieldPath{path: s}, nil
}

// String returns the dotted canonical form.
func (p FieldPath) String() string { return p.path }

// IsZero reports whether the path is empty.
func (p FieldPath) IsZero() bool { return p.path == "" }

// Segments returns the ordered name segments.
func (p FieldPath) Segments() []string {
	if p.path == "" {
		return nil
	}
	return strings.Split(p.path, ".")
}

// Levels returns the number of segments.
func (p FieldPath) Levels() int {
	if p.path == "" {
		return 0
	}
	return strings.Count(p.path, ".") + 1
}

// Prepend returns a new path with segment pushed onto the front. Used when
// flattening nested object fields.
func (p FieldPath) Prepend(segment string) FieldPath {
	if segment == "" {
		return p
	}
	if p.path == "" {
		return FieldPath{path: segment}
	}
	return FieldPath{path: segment + "." + p.path}
}

// Leaf returns the final segment, or "" for the zero path.
func (p FieldPath) Leaf() string {
	if p.path == "" {
		return ""
	}
	if i := strings.LastIndexByte(p.path, '.'); i >= 0 {
		return p.path[i+1:]
	}
	return p.path
}

// FieldAddress identifies a field across the whole graph. Its canonical
// string form is "dataset:collection:a.b.c".
type FieldAddress struct {
	Dataset    string
	Collection string
	Path       FieldPath
}

// ParseFieldAddress parses the canonical "dataset:collection:path" form.
func ParseFieldAddress(s string) (FieldAddress, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return FieldAddress{}, fmt.Errorf("graph: %q is not a valid field address (want dataset:collection:path)", s)
	}
	p, err := ParseFieldPath(parts[2])
	if err != nil {
		return FieldAddress{}, fmt.Errorf("graph: invalid field address %q: %w", s, err)
	}
	return FieldAddress{Dataset: parts[0], Collection: parts[1], Path: p}, nil
}

// String returns the canonical "dataset:collection:path" form.
func (a FieldAddress) String() string {
	return a.Dataset + ":" + a.Collection + ":" + a.Path.String()
}

// CollectionAddress returns the address of the owning collection.
func (a FieldAddress) CollectionAddress() CollectionAddress {
	return CollectionAddress{Dataset: a.Dataset, Collection: a.Collection}
}

// IsMemberOf reports whether the field belongs to the given collection.
func (a FieldAddress) IsMemberOf(c CollectionAddress) bool {
	return a.Dataset == c.Dataset && a.Collection == c.Collection
}

// Compare orders field addresses by their canonical string form.
func (a FieldAddress) Compare(b FieldAddress) int {
	return strings.Compare(a.String(), b.String())
}
