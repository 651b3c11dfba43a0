// Package mysql implements a MySQL connector using go-sql-driver. Retrieval
// and masking run through standard parameterized statements; the driver's
// text protocol returns []byte values which are scanned back to strings.
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"dsrgraph/internal/connector"
	"dsrgraph/internal/querygen"
)

// Config holds MySQL connector configuration.
type Config struct {
	DSN    string
	Schema string
}

// Conn is a MySQL-backed implementation of connector.Connector.
type Conn struct {
	connector.SQLExecutor
}

// NewConnector constructs a Conn and returns a Close function for cleanup.
func NewConnector(ctx context.Context, cfg Config) (*Conn, func(), error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := mysql.ParseDSN(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mysql dsn: %w", err)
	}
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	close := func() { _ = db.Close() }
	return &Conn{SQLExecutor: connector.SQLExecutor{
		Kind:    "mysql",
		DB:      db,
		Dialect: querygen.DialectMySQL,
		Schema:  cfg.Schema,
	}}, close, nil
}
