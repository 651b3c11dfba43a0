package connector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dsrgraph/internal/graph"
	"dsrgraph/internal/identity"
	"dsrgraph/internal/metrics"
	"dsrgraph/internal/policy"
	"dsrgraph/internal/querygen"
	"dsrgraph/pkg/rows"
)

// SQLExecutor implements the Connector contract on top of a database/sql
// pool. The relational backends (mysql, mssql, sqlite) embed it and supply
// only their driver-specific open path; postgres uses pgx directly and has
// its own implementation.
type SQLExecutor struct {
	Kind    string
	DB      *sql.DB
	Dialect querygen.Dialect

	// Schema optionally qualifies table names, e.g. "dbo" for SQL Server.
	Schema string
}

func (e *SQLExecutor) tableFor(node *graph.Node) string {
	if e.Schema == "" {
		return ""
	}
	return e.Schema + "." + node.Collection.Name
}

// TestConnection pings the pool.
func (e *SQLExecutor) TestConnection(ctx context.Context) error {
	start := time.Now()
	err := e.DB.PingContext(ctx)
	metrics.RecordOp(e.Kind, "test", err, time.Since(start))
	return WrapErr(e.Kind, "test", err)
}

// RetrieveData generates and runs the SELECT for node. No filter values
// means no query and an empty result.
func (e *SQLExecutor) RetrieveData(ctx context.Context, node *graph.Node, ident identity.Payload, in rows.Input) ([]rows.Row, error) {
	gen := &querygen.SQLGenerator{Dialect: e.Dialect, Node: node, Table: e.tableFor(node)}
	stmt, err := gen.Read(SeedInput(node, ident, in))
	if err != nil {
		return nil, WrapErr(e.Kind, "retrieve", err)
	}
	if stmt == nil {
		return nil, nil
	}
	metrics.RecordRequests(e.Kind, string(querygen.ActionRead), 1)

	start := time.Now()
	res, err := e.DB.QueryContext(ctx, stmt.Text, stmt.Params...)
	metrics.RecordOp(e.Kind, "retrieve", err, time.Since(start))
	if err != nil {
		return nil, WrapErr(e.Kind, "retrieve", fmt.Errorf("query %s: %w", stmt.ID, err))
	}
	defer res.Close()

	out, err := ScanRows(res)
	if err != nil {
		return nil, WrapErr(e.Kind, "retrieve", err)
	}
	metrics.RecordRows(e.Kind, "retrieved", int64(len(out)))
	return out, nil
}

// MaskData rewrites the policy-targeted fields of each row in place. Rows
// that generate no statement (no targeted field, no usable key) are skipped.
func (e *SQLExecutor) MaskData(ctx context.Context, node *graph.Node, ident identity.Payload, rs []rows.Row, pol *policy.Policy) (int, error) {
	gen := &querygen.SQLGenerator{Dialect: e.Dialect, Node: node, Table: e.tableFor(node)}
	affected := 0
	for _, row := range rs {
		stmt, err := gen.Update(row, pol)
		if err != nil {
			return affected, WrapErr(e.Kind, "mask", err)
		}
		if stmt == nil {
			metrics.RecordRows(e.Kind, "skipped", 1)
			continue
		}
		metrics.RecordRequests(e.Kind, string(querygen.ActionUpdate), 1)

		start := time.Now()
		res, err := e.DB.ExecContext(ctx, stmt.Text, stmt.Params...)
		metrics.RecordOp(e.Kind, "mask", err, time.Since(start))
		if err != nil {
			return affected, WrapErr(e.Kind, "mask", fmt.Errorf("exec %s: %w", stmt.ID, err))
		}
		if n, err := res.RowsAffected(); err == nil {
			affected += int(n)
		} else {
			affected++
		}
	}
	metrics.RecordRows(e.Kind, "masked", int64(affected))
	return affected, nil
}

// Close closes the pool.
func (e *SQLExecutor) Close() { _ = e.DB.Close() }

// ScanRows materializes a result set into generic rows keyed by column name.
// Values arrive as the driver's native Go types.
func ScanRows(res *sql.Rows) ([]rows.Row, error) {
	cols, err := res.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	var out []rows.Row
	for res.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := res.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(rows.Row, len(cols))
		for i, c := range cols {
			// Text protocols hand back []byte; keep rows printable and
			// comparable as strings.
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		out = append(out, row)
	}
	return out, res.Err()
}
