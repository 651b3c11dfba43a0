// Package mssql implements a Microsoft SQL Server connector using
// go-mssqldb. Statements use @pN placeholders and bracket-quoted
// identifiers.
package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"dsrgraph/internal/connector"
	"dsrgraph/internal/querygen"
)

// Config holds MSSQL connector configuration.
type Config struct {
	DSN    string
	Schema string
}

// Conn is an MSSQL-backed implementation of connector.Connector.
type Conn struct {
	connector.SQLExecutor
}

// NewConnector constructs a Conn and returns a Close function for cleanup.
func NewConnector(ctx context.Context, cfg Config) (*Conn, func(), error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	close := func() { _ = db.Close() }
	return &Conn{SQLExecutor: connector.SQLExecutor{
		Kind:    "mssql",
		DB:      db,
		Dialect: querygen.DialectMSSQL,
		Schema:  cfg.Schema,
	}}, close, nil
}
