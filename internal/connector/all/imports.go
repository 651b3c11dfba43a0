// Package all wires all built-in connector backends into the connector
// factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) causes the init functions of each concrete backend to run, which
// in turn register their factories with the connector package.
//
// In other words, importing this package makes the following connector kinds
// available at runtime:
//
//   - "postgres" (dsrgraph/internal/connector/postgres)
//   - "mysql"    (dsrgraph/internal/connector/mysql)
//   - "mssql"    (dsrgraph/internal/connector/mssql)
//   - "sqlite"   (dsrgraph/internal/connector/sqlite)
//   - "saas"     (dsrgraph/internal/connector/saas)
//
// Typical usage (in a wiring layer):
//
//	import (
//	    _ "dsrgraph/internal/connector/all" // enable all built-in backends
//
//	    "dsrgraph/internal/connector"
//	)
//
//	conn, err := connector.New(ctx, connector.Config{Kind: "postgres", DSN: dsn})
//
// If a binary should support only a subset of backends, define an
// alternative wiring package that imports only the required ones.
package all

import (
	_ "dsrgraph/internal/connector/mssql"
	_ "dsrgraph/internal/connector/mysql"
	_ "dsrgraph/internal/connector/postgres"
	_ "dsrgraph/internal/connector/saas"
	_ "dsrgraph/internal/connector/sqlite"
)
