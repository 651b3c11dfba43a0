// Package postgres implements a Postgres connector using pgx v5. It runs
// generated statements directly on a pgxpool and surfaces PgError details
// on failures.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dsrgraph/internal/connector"
	"dsrgraph/internal/graph"
	"dsrgraph/internal/identity"
	"dsrgraph/internal/metrics"
	"dsrgraph/internal/policy"
	"dsrgraph/internal/querygen"
	"dsrgraph/pkg/rows"
)

// Config holds Postgres connector configuration.
type Config struct {
	DSN    string // connection string for pgxpool
	Schema string // optional schema qualifier, e.g. "public"
}

// Conn is a Postgres-backed implementation of connector.Connector.
type Conn struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewConnector constructs a Conn and returns a Close function for cleanup.
func NewConnector(ctx context.Context, cfg Config) (*Conn, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	close := func() { pool.Close() }
	return &Conn{pool: pool, cfg: cfg}, close, nil
}

func (c *Conn) tableFor(node *graph.Node) string {
	if c.cfg.Schema == "" {
		return ""
	}
	return c.cfg.Schema + "." + node.Collection.Name
}

// TestConnection pings the pool.
func (c *Conn) TestConnection(ctx context.Context) error {
	start := time.Now()
	err := c.pool.Ping(ctx)
	metrics.RecordOp("postgres", "test", err, time.Since(start))
	return connector.WrapErr("postgres", "test", err)
}

// RetrieveData generates and runs the SELECT for node.
func (c *Conn) RetrieveData(ctx context.Context, node *graph.Node, ident identity.Payload, in rows.Input) ([]rows.Row, error) {
	gen := &querygen.SQLGenerator{Dialect: querygen.DialectPostgres, Node: node, Table: c.tableFor(node)}
	stmt, err := gen.Read(connector.SeedInput(node, ident, in))
	if err != nil {
		return nil, connector.WrapErr("postgres", "retrieve", err)
	}
	if stmt == nil {
		return nil, nil
	}
	metrics.RecordRequests("postgres", string(querygen.ActionRead), 1)

	start := time.Now()
	res, err := c.pool.Query(ctx, stmt.Text, stmt.Params...)
	metrics.RecordOp("postgres", "retrieve", err, time.Since(start))
	if err != nil {
		return nil, connector.WrapErr("postgres", "retrieve", pgDetail(err))
	}
	defer res.Close()

	out, err := scanPgRows(res)
	if err != nil {
		return nil, connector.WrapErr("postgres", "retrieve", err)
	}
	metrics.RecordRows("postgres", "retrieved", int64(len(out)))
	return out, nil
}

// MaskData rewrites the policy-targeted fields of each row in place.
func (c *Conn) MaskData(ctx context.Context, node *graph.Node, ident identity.Payload, rs []rows.Row, pol *policy.Policy) (int, error) {
	gen := &querygen.SQLGenerator{Dialect: querygen.DialectPostgres, Node: node, Table: c.tableFor(node)}
	affected := 0
	for _, row := range rs {
		stmt, err := gen.Update(row, pol)
		if err != nil {
			return affected, connector.WrapErr("postgres", "mask", err)
		}
		if stmt == nil {
			metrics.RecordRows("postgres", "skipped", 1)
			continue
		}
		metrics.RecordRequests("postgres", string(querygen.ActionUpdate), 1)

		start := time.Now()
		tag, err := c.pool.Exec(ctx, stmt.Text, stmt.Params...)
		metrics.RecordOp("postgres", "mask", err, time.Since(start))
		if err != nil {
			return affected, connector.WrapErr("postgres", "mask", pgDetail(err))
		}
		affected += int(tag.RowsAffected())
	}
	metrics.RecordRows("postgres", "masked", int64(affected))
	return affected, nil
}

// Close releases the pool.
func (c *Conn) Close() { c.pool.Close() }

// scanPgRows materializes a pgx result set into generic rows keyed by column
// name.
func scanPgRows(res pgx.Rows) ([]rows.Row, error) {
	fields := res.FieldDescriptions()
	var out []rows.Row
	for res.Next() {
		vals, err := res.Values()
		if err != nil {
			return nil, fmt.Errorf("values: %w", err)
		}
		row := make(rows.Row, len(fields))
		for i, fd := range fields {
			row[string(fd.Name)] = vals[i]
		}
		out = append(out, row)
	}
	return out, res.Err()
}

// pgDetail surfaces the server-side detail of a PgError, which is often far
// more actionable than the top-level message.
func pgDetail(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%s (%s): %w", pgErr.Detail, pgErr.SQLState(), err)
	}
	return err
}
