// Package sqldocs exposes the key/value table DDL for the SQL backends
// directly from the docs tree.
package sqldocs

import _ "embed"

// SQLite contains the SQLite DDL for the kv table.
//
//go:embed sqlite.sql
var SQLite string

// Postgres contains the Postgres DDL for the kv table.
//
//go:embed postgres.sql
var Postgres string
