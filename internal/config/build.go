package config

import (
	"fmt"
	"strings"

	"dsrgraph/internal/graph"
)

// BuildDataset turns a validated dataset spec into a graph dataset. External
// references are resolved through secrets; a missing external name is a
// configuration error.
func BuildDataset(ds DatasetSpec, reg *graph.TypeRegistry, secrets Secrets) (*graph.Dataset, error) {
	out := &graph.Dataset{
		Name:          ds.Name,
		ConnectionKey: ds.ConnectionKey,
		After:         map[string]struct{}{},
	}
	for _, name := range ds.After {
		out.After[name] = struct{}{}
	}
	for _, cs := range ds.Collections {
		coll, err := buildCollection(cs, reg, secrets)
		if err != nil {
			return nil, fmt.Errorf("config: dataset %q: %w", ds.Name, err)
		}
		out.Collections = append(out.Collections, coll)
	}
	return out, nil
}

func buildCollection(cs CollectionSpec, reg *graph.TypeRegistry, secrets Secrets) (*graph.Collection, error) {
	coll := &graph.Collection{
		Name:          cs.Name,
		After:         map[graph.CollectionAddress]struct{}{},
		EraseAfter:    map[graph.CollectionAddress]struct{}{},
		GroupedInputs: map[string]struct{}{},
	}
	for _, g := range cs.GroupedInputs {
		coll.GroupedInputs[g] = struct{}{}
	}
	for _, dep := range cs.After {
		addr, err := parseDottedAddress(dep)
		if err != nil {
			return nil, fmt.Errorf("collection %q after: %w", cs.Name, err)
		}
		coll.After[addr] = struct{}{}
	}
	for _, dep := range cs.EraseAfter {
		addr, err := parseDottedAddress(dep)
		if err != nil {
			return nil, fmt.Errorf("collection %q erase_after: %w", cs.Name, err)
		}
		coll.EraseAfter[addr] = struct{}{}
	}
	for _, fs := range cs.Fields {
		f, err := buildField(fs, reg, secrets)
		if err != nil {
			return nil, fmt.Errorf("collection %q: %w", cs.Name, err)
		}
		coll.Fields = append(coll.Fields, f)
	}
	return coll, nil
}

func buildField(fs FieldSpec, reg *graph.TypeRegistry, secrets Secrets) (graph.Field, error) {
	refs, err := ResolveReferences(fs.References, secrets)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", fs.Name, err)
	}
	var subs []graph.Field
	for _, sub := range fs.Fields {
		f, err := buildField(sub, reg, secrets)
		if err != nil {
			return nil, err
		}
		subs = append(subs, f)
	}
	return graph.GenerateField(graph.FieldParams{
		Name:              fs.Name,
		DataCategories:    fs.DataCategories,
		Identity:          fs.Identity,
		Type:              fs.Type,
		References:        refs,
		PrimaryKey:        fs.PrimaryKey,
		Length:            fs.Length,
		IsArray:           fs.IsArray,
		SubFields:         subs,
		ReturnAllElements: fs.ReturnAllElements,
		ReadOnly:          fs.ReadOnly,
	}, reg)
}

// ResolveReferences converts reference specs into graph references,
// resolving external dataset names through secrets.
func ResolveReferences(specs []ReferenceSpec, secrets Secrets) ([]graph.Reference, error) {
	var refs []graph.Reference
	for _, rs := range specs {
		addr, err := ResolveReference(rs, secrets)
		if err != nil {
			return nil, err
		}
		refs = append(refs, graph.Reference{
			Field:     addr,
			Direction: graph.RefDirection(rs.Direction),
		})
	}
	return refs, nil
}

// ResolveReference resolves one reference spec into a field address.
func ResolveReference(rs ReferenceSpec, secrets Secrets) (graph.FieldAddress, error) {
	if rs.Dataset != "" {
		if secrets == nil {
			return graph.FieldAddress{}, fmt.Errorf("external reference %q requires a secrets provider", rs.Dataset)
		}
		base, ok := secrets.ExternalReference(rs.Dataset)
		if !ok {
			return graph.FieldAddress{}, fmt.Errorf("external reference name %q absent from secrets", rs.Dataset)
		}
		// collection.path relative to the resolved dataset.
		segments := strings.SplitN(rs.Field, ".", 2)
		if len(segments) != 2 {
			return graph.FieldAddress{}, fmt.Errorf("reference field %q must use the collection.path form", rs.Field)
		}
		path, err := graph.ParseFieldPath(segments[1])
		if err != nil {
			return graph.FieldAddress{}, err
		}
		return graph.FieldAddress{Dataset: base.Dataset, Collection: segments[0], Path: path}, nil
	}
	segments := strings.SplitN(rs.Field, ".", 3)
	if len(segments) != 3 {
		return graph.FieldAddress{}, fmt.Errorf("reference field %q must use the dataset.collection.path form", rs.Field)
	}
	path, err := graph.ParseFieldPath(segments[2])
	if err != nil {
		return graph.FieldAddress{}, err
	}
	return graph.FieldAddress{Dataset: segments[0], Collection: segments[1], Path: path}, nil
}

// parseDottedAddress parses the "dataset.collection" form used by after and
// erase_after hints.
func parseDottedAddress(s string) (graph.CollectionAddress, error) {
	segments := strings.Split(s, ".")
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" {
		return graph.CollectionAddress{}, fmt.Errorf("%q is not a valid dataset.collection address", s)
	}
	return graph.CollectionAddress{Dataset: segments[0], Collection: segments[1]}, nil
}

// SynthesizeDataset derives a dataset from a SaaS config: each endpoint
// becomes a collection; identity- and reference-sourced params become its
// fields so the traversal layer can order SaaS nodes exactly like relational
// ones.
func SynthesizeDataset(s SaaSSpec, reg *graph.TypeRegistry, secrets Secrets) (*graph.Dataset, error) {
	out := &graph.Dataset{
		Name:          s.Name,
		ConnectionKey: s.Name,
		After:         map[string]struct{}{},
	}
	for _, ep := range s.Endpoints {
		coll := &graph.Collection{
			Name:          ep.Name,
			After:         map[graph.CollectionAddress]struct{}{},
			EraseAfter:    map[graph.CollectionAddress]struct{}{},
			GroupedInputs: map[string]struct{}{},
		}
		for _, dep := range ep.After {
			addr, err := parseDottedAddress(dep)
			if err != nil {
				return nil, fmt.Errorf("config: saas %q endpoint %q after: %w", s.Name, ep.Name, err)
			}
			coll.After[addr] = struct{}{}
		}
		for _, dep := range ep.EraseAfter {
			addr, err := parseDottedAddress(dep)
			if err != nil {
				return nil, fmt.Errorf("config: saas %q endpoint %q erase_after: %w", s.Name, ep.Name, err)
			}
			coll.EraseAfter[addr] = struct{}{}
		}

		seen := map[string]struct{}{}
		for _, req := range ep.Requests.Read {
			for _, g := range req.GroupedInputs {
				coll.GroupedInputs[g] = struct{}{}
			}
			for _, p := range req.ParamValues {
				if p.ConnectorParam != "" {
					continue // secrets don't shape the graph
				}
				if _, dup := seen[p.Name]; dup {
					continue
				}
				seen[p.Name] = struct{}{}
				refs, err := ResolveReferences(p.References, secrets)
				if err != nil {
					return nil, fmt.Errorf("config: saas %q endpoint %q: %w", s.Name, ep.Name, err)
				}
				f, err := graph.GenerateField(graph.FieldParams{
					Name:       p.Name,
					Identity:   p.Identity,
					Type:       "string",
					References: refs,
				}, reg)
				if err != nil {
					return nil, fmt.Errorf("config: saas %q endpoint %q: %w", s.Name, ep.Name, err)
				}
				coll.Fields = append(coll.Fields, f)
			}
		}
		out.Collections = append(out.Collections, coll)
	}
	return out, nil
}
