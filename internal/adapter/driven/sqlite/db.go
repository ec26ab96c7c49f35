// Package sqlite persists encrypted portal credentials and the saved-document
// catalog in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const maxReaders = 4

// pragmas apply to every connection. WAL is added for file databases only.
var pragmas = []string{
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
	"cache_size(-16000)",
}

// DB holds a single-connection writer and a small reader pool over the same
// database. One writer keeps SQLite from returning "database is locked".
type DB struct {
	Writer *sql.DB
	Reader *sql.DB
	path   string
}

// NewDB opens the database file at dbPath in WAL mode, creating its parent
// directory when missing.
func NewDB(ctx context.Context, dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	return open(ctx, "file:"+dbPath+"?"+pragmaQuery("journal_mode(WAL)"), dbPath)
}

// NewMemoryDB opens a named shared-cache in-memory database. Connections with
// the same name see the same data until the last one closes.
func NewMemoryDB(ctx context.Context, name string) (*DB, error) {
	dsn := "file:" + url.PathEscape(name) + "?mode=memory&cache=shared&" + pragmaQuery()
	return open(ctx, dsn, ":memory:"+name)
}

func open(ctx context.Context, dsn, path string) (*DB, error) {
	writer, err := openPool(ctx, dsn, 1)
	if err != nil {
		return nil, fmt.Errorf("writer: %w", err)
	}
	reader, err := openPool(ctx, dsn, maxReaders)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("reader: %w", err)
	}
	return &DB{Writer: writer, Reader: reader, path: path}, nil
}

func openPool(ctx context.Context, dsn string, conns int) (*sql.DB, error) {
	pool, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	pool.SetMaxOpenConns(conns)
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

func pragmaQuery(extra ...string) string {
	parts := make([]string, 0, len(pragmas)+len(extra))
	for _, p := range append(extra, pragmas...) {
		parts = append(parts, "_pragma="+p)
	}
	return strings.Join(parts, "&")
}

// Path returns the file the database was opened from.
func (db *DB) Path() string {
	return db.path
}

// Close closes the reader pool, then the writer.
func (db *DB) Close() error {
	return errors.Join(db.Reader.Close(), db.Writer.Close())
}
