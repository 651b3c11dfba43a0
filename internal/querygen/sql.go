package querygen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"dsrgraph/internal/graph"
	"dsrgraph/internal/policy"
	"dsrgraph/pkg/rows"
)

// Dialect selects placeholder and identifier-quoting grammar.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectMSSQL    Dialect = "mssql"
	DialectSQLite   Dialect = "sqlite"
)

// placeholder returns the bound-parameter marker for 1-based position i.
func (d Dialect) placeholder(i int) string {
	switch d {
	case DialectPostgres:
		return fmt.Sprintf("$%d", i)
	case DialectMSSQL:
		return fmt.Sprintf("@p%d", i)
	default:
		return "?"
	}
}

// quote safely quotes a single identifier segment.
func (d Dialect) quote(ident string) string {
	switch d {
	case DialectMySQL:
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	case DialectMSSQL:
		return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	}
}

// quoteFQN quotes a possibly schema-qualified name like "public.orders".
func (d Dialect) quoteFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.quote(p)
	}
	return strings.Join(parts, ".")
}

// Statement is one parameterized SQL statement. Statements are values; they
// are safe to hand to independent worker units.
type Statement struct {
	ID     string
	Text   string
	Params []any
}

// SQLGenerator builds statements for one traversal node against one dialect.
type SQLGenerator struct {
	Dialect Dialect
	Node    *graph.Node

	// Table overrides the target table name; the collection name (optionally
	// schema-qualified by the connector) is used when empty.
	Table string
}

func (g *SQLGenerator) table() string {
	if g.Table != "" {
		return g.Dialect.quoteFQN(g.Table)
	}
	return g.Dialect.quote(g.Node.Collection.Name)
}

// columns returns the top-level field names in declaration order.
func (g *SQLGenerator) columns() []string {
	cols := make([]string, 0, len(g.Node.Collection.Fields))
	for _, f := range g.Node.Collection.Fields {
		cols = append(cols, f.Meta().Name)
	}
	return cols
}

// Read builds the SELECT retrieving the rows belonging to the supplied
// upstream input. Filter columns are the collection's identity- and
// reference-bearing fields; a row matches when any filter matches. When no
// filter value is available the result is (nil, nil): nothing to ask the
// backend, not an error.
func (g *SQLGenerator) Read(in rows.Input) (*Statement, error) {
	type filter struct {
		column string
		values []any
	}
	var filters []filter
	coll := g.Node.Collection
	seen := map[string]struct{}{}
	addFilter := func(path graph.FieldPath, f graph.Field) {
		if path.Levels() != 1 {
			return // nested filters are the HTTP family's concern
		}
		name := f.Meta().Name
		if _, dup := seen[name]; dup {
			return
		}
		raw := in[name]
		if len(raw) == 0 {
			return
		}
		cast := make([]any, 0, len(raw))
		for _, v := range raw {
			if cv := f.Cast(v); cv != nil {
				cast = append(cast, cv)
			}
		}
		if len(cast) == 0 {
			return
		}
		seen[name] = struct{}{}
		filters = append(filters, filter{column: name, values: cast})
	}
	for path, f := range coll.CollectMatching(func(f graph.Field) bool { return f.Meta().Identity != "" }) {
		addFilter(path, f)
	}
	for path := range coll.References() {
		if f := coll.Field(path); f != nil {
			addFilter(path, f)
		}
	}
	if len(filters) == 0 {
		return nil, nil
	}
	sort.Slice(filters, func(i, j int) bool { return filters[i].column < filters[j].column })

	var (
		clauses []string
		params  []any
	)
	pos := 1
	for _, f := range filters {
		marks := make([]string, len(f.values))
		for i, v := range f.values {
			marks[i] = g.Dialect.placeholder(pos)
			params = append(params, v)
			pos++
		}
		clauses = append(clauses, fmt.Sprintf("%s IN (%s)", g.Dialect.quote(f.column), strings.Join(marks, ", ")))
	}

	quoted := make([]string, 0, len(g.columns()))
	for _, c := range g.columns() {
		quoted = append(quoted, g.Dialect.quote(c))
	}
	text := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(quoted, ", "), g.table(), strings.Join(clauses, " OR "))
	return &Statement{ID: uuid.NewString(), Text: text, Params: params}, nil
}

// Update builds the per-row UPDATE masking the fields targeted by the
// policy. Read-only fields are never written. A row with no maskable field
// or no usable primary-key value yields (nil, nil) and is skipped by the
// caller.
func (g *SQLGenerator) Update(row rows.Row, pol *policy.Policy) (*Statement, error) {
	coll := g.Node.Collection
	type assignment struct {
		column string
		value  any
	}
	var assignments []assignment
	for _, path := range pol.TargetPaths(coll) {
		if path.Levels() != 1 {
			continue // nested object columns are not addressable in SQL
		}
		f := coll.Field(path)
		if f == nil || f.Meta().ReadOnly {
			continue
		}
		if _, isObject := f.(*graph.ObjectField); isObject {
			continue
		}
		masker, ok := pol.MaskerFor(f.Meta().DataCategories)
		if !ok {
			continue
		}
		assignments = append(assignments, assignment{column: f.Meta().Name, value: masker.Mask(row[f.Meta().Name])})
	}
	if len(assignments) == 0 {
		return nil, nil
	}

	pks := coll.PrimaryKeys()
	if len(pks) == 0 {
		return nil, nil
	}
	var (
		sets    []string
		wheres  []string
		params  []any
		pos     = 1
		missing bool
	)
	for _, a := range assignments {
		sets = append(sets, fmt.Sprintf("%s = %s", g.Dialect.quote(a.column), g.Dialect.placeholder(pos)))
		params = append(params, a.value)
		pos++
	}
	for _, pk := range pks {
		name := pk.Meta().Name
		v, ok := row[name]
		if !ok || v == nil {
			missing = true
			break
		}
		wheres = append(wheres, fmt.Sprintf("%s = %s", g.Dialect.quote(name), g.Dialect.placeholder(pos)))
		params = append(params, pk.Cast(v))
		pos++
	}
	if missing {
		return nil, nil
	}
	text := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		g.table(), strings.Join(sets, ", "), strings.Join(wheres, " AND "))
	return &Statement{ID: uuid.NewString(), Text: text, Params: params}, nil
}

// Delete builds the per-row DELETE keyed on the primary key. Rows without a
// usable key yield (nil, nil).
func (g *SQLGenerator) Delete(row rows.Row) (*Statement, error) {
	pks := g.Node.Collection.PrimaryKeys()
	if len(pks) == 0 {
		return nil, nil
	}
	var (
		wheres []string
		params []any
	)
	for i, pk := range pks {
		name := pk.Meta().Name
		v, ok := row[name]
		if !ok || v == nil {
			return nil, nil
		}
		wheres = append(wheres, fmt.Sprintf("%s = %s", g.Dialect.quote(name), g.Dialect.placeholder(i+1)))
		params = append(params, pk.Cast(v))
	}
	text := fmt.Sprintf("DELETE FROM %s WHERE %s", g.table(), strings.Join(wheres, " AND "))
	return &Statement{ID: uuid.NewString(), Text: text, Params: params}, nil
}
