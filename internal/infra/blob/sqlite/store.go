// Package sqlite provides a blob Store kept in a single-file SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"citybuilder/internal/blob/core"
	"citybuilder/internal/infra/blob/sqlstore"
)

var dialect = sqlstore.Dialect{
	Driver:      core.DriverSQLite,
	Placeholder: func(int) string { return "?" },
	ContentType: "BLOB",
}

// Store is a sqlstore.Store opened on a SQLite file.
type Store struct {
	*sqlstore.Store
	path string
}

// New opens (creating if needed) the database at path.
func New(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "citybuilder.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	st, err := sqlstore.New(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: st, path: path}, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }
