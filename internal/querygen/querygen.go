// Package querygen turns a traversal node plus its accumulated upstream
// input into backend-specific request descriptors: parameterized SQL
// statements for relational connectors and HTTP request descriptors for SaaS
// connectors. Generation is pure; nothing here touches a backend. Producing
// zero requests is a normal outcome, never an error.
package querygen

import (
	"fmt"
	"sort"
)

// Action selects what a generated request does.
type Action string

const (
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// MissingParamError reports a declared param with no available value when
// skip_missing_param_values is not set.
type MissingParamError struct {
	Param string
}

func (e *MissingParamError) Error() string {
	return fmt.Sprintf("querygen: no value available for required param %q", e.Param)
}

// GroupMismatchError reports grouped params whose correlated value lists
// have different lengths and therefore cannot be zipped into tuples.
type GroupMismatchError struct {
	Params []string
}

func (e *GroupMismatchError) Error() string {
	return fmt.Sprintf("querygen: grouped params %v have mismatched value counts; correlated tuples must align", e.Params)
}

// paramSets enumerates the request parameter maps for one request. Without
// grouped params it is the Cartesian product of every ungrouped param's
// value list. When grouped params are present, their correlated tuples drive
// enumeration instead: exactly one parameter map per tuple, never multiplied
// by ungrouped value counts, with each ungrouped param contributing its
// first value. Grouped values are zipped, never cross-producted against
// each other.
func paramSets(ungrouped map[string][]any, grouped map[string][]any) ([]map[string]any, error) {
	if len(grouped) == 0 {
		base := []map[string]any{{}}
		for _, name := range sortedParamNames(ungrouped) {
			values := ungrouped[name]
			next := make([]map[string]any, 0, len(base)*len(values))
			for _, partial := range base {
				for _, v := range values {
					m := make(map[string]any, len(partial)+1)
					for k, pv := range partial {
						m[k] = pv
					}
					m[name] = v
					next = append(next, m)
				}
			}
			base = next
		}
		return base, nil
	}

	names := sortedParamNames(grouped)
	tupleLen := -1
	for _, n := range names {
		if tupleLen == -1 {
			tupleLen = len(grouped[n])
		} else if len(grouped[n]) != tupleLen {
			return nil, &GroupMismatchError{Params: names}
		}
	}
	out := make([]map[string]any, 0, tupleLen)
	for i := 0; i < tupleLen; i++ {
		m := make(map[string]any, len(ungrouped)+len(names))
		for _, n := range sortedParamNames(ungrouped) {
			m[n] = ungrouped[n][0]
		}
		for _, n := range names {
			m[n] = grouped[n][i]
		}
		out = append(out, m)
	}
	return out, nil
}

func sortedParamNames(m map[string][]any) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// unpackOne flattens one level of list nesting: [[1,2],[3]] becomes [1,2,3],
// and scalar elements pass through.
func unpackOne(values []any) []any {
	var out []any
	for _, v := range values {
		switch t := v.(type) {
		case []any:
			out = append(out, t...)
		default:
			out = append(out, v)
		}
	}
	return out
}
