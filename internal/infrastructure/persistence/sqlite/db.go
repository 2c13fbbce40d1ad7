package sqlite

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Open opens the cgo-backed mattn/go-sqlite3 driver ("sqlite3").
// cmd/server does not use it; it opens its databases with OpenPure.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// pragmas := []string{
	// 	"PRAGMA journal_mode = WAL;",
	// 	"PRAGMA foreign_keys = ON;",
	// 	"PRAGMA synchronous = NORMAL;",
	// }

	// for _, p := range pragmas {
	// 	if _, err := db.Exec(p); err != nil {
	// 		return nil, err
	// 	}
	// }

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}

// OpenPure opens the pure-Go modernc.org/sqlite driver ("sqlite"), which
// cmd/server uses for the store and the outbox. The package tests open the
// same driver through sql.Open directly.
func OpenPure(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}
