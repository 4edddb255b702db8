// Package sqlstore implements the module store on database/sql for
// PostgreSQL (github.com/lib/pq) and SQLite (github.com/mattn/go-sqlite3).
//
// The same schema and statements serve both drivers. Run the PostgreSQL
// integration test with:
//
//	go test -tags integration ./pkg/storage/sqlstore/...
package sqlstore
