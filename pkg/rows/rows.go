// Package rows defines the row and node-input value types exchanged between
// the traversal layer, request generation, and connectors. A Row is one
// record from a backend; an Input is the accumulated upstream data handed to
// a node before its own requests are generated.
package rows

// Row is a single record delivered by a connector, keyed by column or
// response-field name.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Input maps a field name to the list of values collected for it from
// upstream nodes. Lists under different keys are independent unless the
// consuming collection declares them as grouped inputs.
type Input map[string][]any

// Append adds values under key, skipping nils.
func (in Input) Append(key string, values ...any) {
	for _, v := range values {
		if v == nil {
			continue
		}
		in[key] = append(in[key], v)
	}
}

// Merge folds other into in, appending value lists key by key.
func (in Input) Merge(other Input) {
	for k, vs := range other {
		in.Append(k, vs...)
	}
}

// FromRows builds an Input by projecting the named columns out of rs.
// Missing or nil column values are dropped.
func FromRows(rs []Row, columns []string) Input {
	in := Input{}
	for _, r := range rs {
		for _, c := range columns {
			if v, ok := r[c]; ok && v != nil {
				in.Append(c, v)
			}
		}
	}
	return in
}
