// Package db provides the SQLite index that mirrors the card store.
//
// The index is a disposable cache. Every table is derived from the card
// files and the whole database can be dropped and rebuilt at any time.
//
// Architecture:
//   - Database file: .cardsync/index.db (ncruces/go-sqlite3, pure Go)
//   - WAL mode: concurrent readers while a variant is being written
//   - Tables: one per card variant, plus Tags, Taggings and Links
//   - Transactions: every write goes through Update, which begins an
//     IMMEDIATE transaction on a pooled connection
//
// Workflow:
//  1. Rebuild drops and recreates every table
//  2. The bulk synchronizer loads each variant inside one transaction
//  3. Watchers apply one transaction per filesystem event
//  4. ListIDs, Count and FindID serve reads
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cardsync/cardsync/internal/index/schema"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Options tunes an opened index.
type Options struct {
	// AllowRawPredicates enables the _where filter key. Raw predicates are
	// appended to queries verbatim and must come from trusted callers.
	AllowRawPredicates bool

	// MaxOpenConns bounds the connection pool (0 = 25).
	MaxOpenConns int

	// BusyTimeout is how long a connection waits on a locked database
	// before failing (0 = 5s).
	BusyTimeout time.Duration
}

// DefaultOptions returns the options used by the serve command.
func DefaultOptions() Options {
	return Options{
		AllowRawPredicates: true,
		MaxOpenConns:       25,
		BusyTimeout:        5 * time.Second,
	}
}

// DB wraps the pooled SQLite connection holding the card index.
type DB struct {
	conn *sql.DB
	path string
	opts Options
}

// Open opens (or creates) the index database at path.
//
// Pragmas are passed in the DSN so that every pooled connection gets them,
// not just the first one. The schema is not created; call InitSchema or
// Rebuild.
//
// The caller MUST call Close() when done.
func Open(path string, opts Options) (*DB, error) {
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 25
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dsn(path, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(opts.MaxOpenConns)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &DB{conn: conn, path: path, opts: opts}, nil
}

func dsn(path string, opts Options) string {
	q := url.Values{}
	q.Set("_txlock", "immediate")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(wal)")
	q.Add("_pragma", "synchronous(normal)")
	return "file:" + filepath.ToSlash(path) + "?" + q.Encode()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Options returns the options the index was opened with.
func (db *DB) Options() Options {
	return db.opts
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates every index table that does not exist yet. It is
// idempotent and leaves existing rows alone.
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, createSchemaSQL(true)); err != nil {
		return &schema.IndexError{Op: "failed to initialize schema", Err: err}
	}
	return nil
}

// LockRebuild takes the rebuild lock of the index file without blocking.
// While it is held, LockRebuild and Rebuild on any other handle of the same
// file fail with ErrIndexLocked. Callers that reload the index after Reset
// hold it until the load is done.
func (db *DB) LockRebuild() (*RebuildLock, error) {
	return acquireRebuildLock(db.path)
}

// Rebuild drops every index table and creates them again, empty.
//
// Only one process may rebuild a given database at a time; a concurrent
// rebuild fails with ErrIndexLocked.
func (db *DB) Rebuild(ctx context.Context) error {
	lock, err := db.LockRebuild()
	if err != nil {
		return err
	}
	defer lock.Release()

	return db.Reset(ctx)
}

// Reset drops every index table and creates them again, empty. The caller
// must hold the lock returned by LockRebuild.
func (db *DB) Reset(ctx context.Context) error {
	return db.Update(ctx, func(tx *Tx) error {
		if _, err := tx.tx.ExecContext(ctx, dropSchemaSQL()); err != nil {
			return &schema.IndexError{Op: "failed to drop tables", Err: err}
		}
		if _, err := tx.tx.ExecContext(ctx, createSchemaSQL(false)); err != nil {
			return &schema.IndexError{Op: "failed to create tables", Err: err}
		}
		return nil
	})
}

// quoteIdent quotes a table or column name for SQL.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func createSchemaSQL(ifNotExists bool) string {
	ine := ""
	if ifNotExists {
		ine = "IF NOT EXISTS "
	}

	var b strings.Builder
	fmt.Fprintf(&b, `
	CREATE TABLE %[1]sTags (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE COLLATE NOCASE
	);

	CREATE TABLE %[1]sTaggings (
		tag_id INTEGER NOT NULL,
		card_type INTEGER NOT NULL,
		card_id INTEGER NOT NULL
	);

	-- No uniqueness: duplicate edges are tolerated
	CREATE TABLE %[1]sLinks (
		role TEXT NOT NULL DEFAULT '',
		from_type INTEGER NOT NULL,
		from_id INTEGER NOT NULL,
		to_type INTEGER NOT NULL,
		to_id INTEGER NOT NULL
	);

	CREATE INDEX %[1]sTaggingsByCard ON Taggings(card_type, card_id);
	CREATE INDEX %[1]sTaggingsByTag ON Taggings(tag_id, card_type);
	CREATE INDEX %[1]sLinksBySource ON Links(from_type, from_id);
	CREATE INDEX %[1]sLinksByTarget ON Links(to_type, to_id);
	`, ine)

	for _, v := range schema.Variants() {
		spec := v.Spec()
		cols := spec.Columns()
		defs := make([]string, len(cols))
		for i, c := range cols {
			def := quoteIdent(c.Name) + " " + c.Kind.SQLType()
			if c.Name == "id" {
				def += " PRIMARY KEY"
			} else if c.NotNull {
				def += " NOT NULL"
			}
			defs[i] = def
		}
		fmt.Fprintf(&b, "\n\tCREATE TABLE %s%s (\n\t\t%s\n\t);\n", ine, quoteIdent(spec.Table), strings.Join(defs, ",\n\t\t"))
		fmt.Fprintf(&b, "\tCREATE INDEX %s%s ON %s(title);\n", ine, quoteIdent(spec.Table+"ByTitle"), quoteIdent(spec.Table))
	}
	return b.String()
}

func dropSchemaSQL() string {
	var b strings.Builder
	b.WriteString("DROP TABLE IF EXISTS Tags;\nDROP TABLE IF EXISTS Taggings;\nDROP TABLE IF EXISTS Links;\n")
	for _, v := range schema.Variants() {
		fmt.Fprintf(&b, "DROP TABLE IF EXISTS %s;\n", quoteIdent(v.Table()))
	}
	return b.String()
}

func checkVariant(v schema.Variant) error {
	if !v.Valid() {
		return fmt.Errorf("invalid card type %d", int(v))
	}
	return nil
}
