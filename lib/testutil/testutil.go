package testutil

import (
	"testing"

	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite"
)

// SetupDB opens an in-memory sqlite database with the given schema applied.
func SetupDB(t testing.TB, schema string) (*sqlx.DB, func()) {
	db, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// a second pooled connection would see its own empty ":memory:" database
	db.SetMaxOpenConns(1)
	_, err = db.Exec(schema)
	if err != nil {
		t.Fatal(err)
	}
	return db, func() {
		db.Close()
	}
}
