// Package sqlstore implements a blob Store on a single database/sql table.
// The sqlite and postgres packages supply the dialect and the connection.
package sqlstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"citybuilder/internal/blob/core"
)

// Dialect captures the SQL differences between backends.
type Dialect struct {
	Driver core.Driver
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// ContentType is the column type for blob bodies (BLOB, BYTEA).
	ContentType string
}

// Store keeps every blob as one row of the blobs table.
type Store struct {
	db *sql.DB
	d  Dialect
}

// New ensures the blobs table exists and returns a Store over db.
func New(ctx context.Context, db *sql.DB, d Dialect) (*Store, error) {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS blobs (
		key TEXT PRIMARY KEY,
		content %s,
		content_type TEXT NOT NULL,
		metadata TEXT NOT NULL,
		etag TEXT NOT NULL,
		size BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`, d.ContentType)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create blobs table: %w", err)
	}
	return &Store{db: db, d: d}, nil
}

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

// Driver returns the dialect's driver identifier.
func (s *Store) Driver() core.Driver { return s.d.Driver }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ph(n int) string { return s.d.Placeholder(n) }

// Put upserts the blob row.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	if strings.TrimSpace(key) == "" {
		return core.Info{}, fmt.Errorf("empty key")
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, fmt.Errorf("read blob %s: %w", key, err)
	}
	md, err := json.Marshal(opts.Metadata)
	if err != nil {
		return core.Info{}, fmt.Errorf("encode metadata: %w", err)
	}
	sum := sha256.Sum256(body)
	info := core.Info{
		Key:          key,
		Size:         int64(len(body)),
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(sum[:]),
		Metadata:     core.CloneMetadata(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	q := fmt.Sprintf(`INSERT INTO blobs (key, content, content_type, metadata, etag, size, updated_at) VALUES (%s,%s,%s,%s,%s,%s,%s) ON CONFLICT (key) DO UPDATE SET content=excluded.content, content_type=excluded.content_type, metadata=excluded.metadata, etag=excluded.etag, size=excluded.size, updated_at=excluded.updated_at`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7))
	if _, err := s.db.ExecContext(ctx, q, key, body, info.ContentType, string(md), info.ETag, info.Size, info.LastModified.UnixNano()); err != nil {
		return core.Info{}, fmt.Errorf("upsert %s: %w", key, err)
	}
	return info, nil
}

// Get loads the blob row into memory.
func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	q := fmt.Sprintf(`SELECT key, content, content_type, metadata, etag, size, updated_at FROM blobs WHERE key = %s`, s.ph(1))
	var (
		info  core.Info
		body  []byte
		md    string
		nanos int64
	)
	err := s.db.QueryRowContext(ctx, q, key).Scan(&info.Key, &body, &info.ContentType, &md, &info.ETag, &info.Size, &nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Info{}, nil, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return core.Info{}, nil, fmt.Errorf("select %s: %w", key, err)
	}
	if err := finishInfo(&info, md, nanos); err != nil {
		return core.Info{}, nil, err
	}
	return info, io.NopCloser(bytes.NewReader(body)), nil
}

// Head returns metadata without the body.
func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	infos, err := s.query(ctx, fmt.Sprintf(`SELECT key, content_type, metadata, etag, size, updated_at FROM blobs WHERE key = %s`, s.ph(1)), key)
	if err != nil {
		return core.Info{}, err
	}
	if len(infos) == 0 {
		return core.Info{}, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	return infos[0], nil
}

// Delete removes the row, reporting whether it existed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM blobs WHERE key = %s`, s.ph(1)), key)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns rows whose key starts with prefix, ordered by key.
func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	q := fmt.Sprintf(`SELECT key, content_type, metadata, etag, size, updated_at FROM blobs WHERE key LIKE %s ESCAPE '\' ORDER BY key`, s.ph(1))
	infos, err := s.query(ctx, q, escapeLike(prefix)+"%")
	if err != nil {
		return nil, err
	}
	// LIKE is case-insensitive on SQLite.
	out := infos[:0]
	for _, info := range infos {
		if strings.HasPrefix(info.Key, prefix) {
			out = append(out, info)
		}
	}
	return out, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]core.Info, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select blobs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []core.Info
	for rows.Next() {
		var (
			info  core.Info
			md    string
			nanos int64
		)
		if err := rows.Scan(&info.Key, &info.ContentType, &md, &info.ETag, &info.Size, &nanos); err != nil {
			return nil, fmt.Errorf("scan blob: %w", err)
		}
		if err := finishInfo(&info, md, nanos); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blobs: %w", err)
	}
	return out, nil
}

func finishInfo(info *core.Info, md string, nanos int64) error {
	if md != "" && md != "null" {
		if err := json.Unmarshal([]byte(md), &info.Metadata); err != nil {
			return fmt.Errorf("decode metadata for %s: %w", info.Key, err)
		}
	}
	info.LastModified = time.Unix(0, nanos).UTC()
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
