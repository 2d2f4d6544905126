package db

import (
	"database/sql"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/text/cases"
)

// sqliteDriver is go-sqlite3 with the casefold SQL function installed on
// every new connection.
const sqliteDriver = "sqlite3_casefold"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("casefold", casefold, true)
		},
	})
}

// casefold applies Unicode full case folding to text values. NULL arrives
// as a nil byte slice and stays NULL.
func casefold(v any) any {
	switch s := v.(type) {
	case string:
		return cases.Fold().String(s)
	case []byte:
		if s == nil {
			return nil
		}
		return cases.Fold().String(string(s))
	default:
		return v
	}
}
