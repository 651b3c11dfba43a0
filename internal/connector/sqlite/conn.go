// Package sqlite implements a SQLite connector on the pure-Go modernc
// driver, mainly used for local fixtures and integration tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // alternative: github.com/mattn/go-sqlite3

	"dsrgraph/internal/connector"
	"dsrgraph/internal/querygen"
)

// Config holds SQLite connector configuration. DSN is a file path or
// ":memory:".
type Config struct {
	DSN string
}

// Conn is a SQLite-backed implementation of connector.Connector.
type Conn struct {
	connector.SQLExecutor
}

// NewConnector constructs a Conn and returns a Close function for cleanup.
func NewConnector(ctx context.Context, cfg Config) (*Conn, func(), error) {
	if cfg.DSN == "" {
		return nil, nil, fmt.Errorf("sqlite dsn must not be empty")
	}
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	close := func() { _ = db.Close() }
	return &Conn{SQLExecutor: connector.SQLExecutor{
		Kind:    "sqlite",
		DB:      db,
		Dialect: querygen.DialectSQLite,
	}}, close, nil
}
