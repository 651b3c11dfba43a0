// This adapter wires the MSSQL backend into the backend-agnostic factory.
package mssql

import (
	"context"

	"dsrgraph/internal/connector"
)

// newConnector is a test hook that points to NewConnector by default.
// Tests may replace this variable to avoid real DB connections.
var newConnector = NewConnector

var _ connector.Connector = (*wrappedConn)(nil)

func init() {
	connector.Register("mssql", func(ctx context.Context, cfg connector.Config) (connector.Connector, error) {
		c, closeFn, err := newConnector(ctx, Config{DSN: cfg.DSN, Schema: cfg.Schema})
		if err != nil {
			return nil, err
		}
		return &wrappedConn{Conn: c, closeFn: closeFn}, nil
	})
}

// wrappedConn adapts *Conn to connector.Connector and provides Close.
type wrappedConn struct {
	*Conn
	closeFn func()
}

func (w *wrappedConn) Close() { w.closeFn() }
