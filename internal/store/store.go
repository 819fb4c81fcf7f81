package store

import (
	"aplica-pipeline/internal/components/assert"
	"aplica-pipeline/internal/components/telemetry"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// Statements splits Schema into individual statements, remote libsql
// connections do not accept several statements in one exec.
func Statements() []string {
	var out []string
	for _, stmt := range strings.Split(Schema, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			lines = append(lines, line)
		}
		stmt = strings.TrimSpace(strings.Join(lines, "\n"))
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

var tables = []string{"programs", "major_categories", "database_metadata", "schools"}

// Options says where the database lives. A non-empty Url selects a remote
// libsql database, otherwise Path is opened as a local sqlite file.
type Options struct {
	Path      string
	Url       string
	AuthToken string
	// Rebuild drops any existing database before opening.
	Rebuild bool
	// ReadOnly opens an existing local file without changing its journal
	// mode and rejects writes.
	ReadOnly bool
}

type Store struct {
	db     *sql.DB
	remote bool
	tel    telemetry.API
}

// New wraps an already opened database.
func New(db *sql.DB, tel telemetry.API) *Store {
	assert.NotNil(db)
	assert.NotNil(tel)
	return &Store{db: db, tel: telemetry.NewScopedAPI("store", tel)}
}

func removeLocal(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		err := os.Remove(p)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func openLocal(path string, readOnly bool) (*sql.DB, error) {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	if readOnly {
		_, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		pragmas = []string{
			"PRAGMA query_only=ON",
			"PRAGMA busy_timeout=5000",
		}
	} else {
		err := os.MkdirAll(filepath.Dir(path), 0755)
		if err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single writer connection, the pipeline writes sequentially
	db.SetMaxOpenConns(1)
	for _, pragma := range pragmas {
		_, err = db.Exec(pragma)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

func openRemote(rawUrl, authToken string) (*sql.DB, error) {
	dsn := rawUrl
	if authToken != "" {
		u, err := url.Parse(rawUrl)
		if err != nil {
			return nil, fmt.Errorf("parse store url: %w", err)
		}
		q := u.Query()
		q.Set("authToken", authToken)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}
	return sql.Open("libsql", dsn)
}

// Open opens (and with Rebuild, recreates) the database described by opts.
// The schema is not created, call CreateSchema.
func Open(ctx context.Context, opts Options, tel telemetry.API) (*Store, error) {
	if opts.Url != "" {
		db, err := openRemote(opts.Url, opts.AuthToken)
		if err != nil {
			return nil, err
		}
		s := New(db, tel)
		s.remote = true
		if opts.Rebuild {
			err = s.dropAll(ctx)
			if err != nil {
				db.Close()
				return nil, err
			}
		}
		return s, nil
	}

	assert.NotEmptyStr(opts.Path)
	if opts.Rebuild && opts.ReadOnly {
		panic("cannot rebuild a read-only database")
	}
	if opts.Rebuild {
		err := removeLocal(opts.Path)
		if err != nil {
			return nil, fmt.Errorf("remove existing database: %w", err)
		}
	}
	db, err := openLocal(opts.Path, opts.ReadOnly)
	if err != nil {
		return nil, err
	}
	return New(db, tel), nil
}

// OpenMemory opens an empty in-memory database with the schema applied.
func OpenMemory(ctx context.Context, tel telemetry.API) (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	// every connection to :memory: is a different database
	db.SetMaxOpenConns(1)
	_, err = db.Exec("PRAGMA foreign_keys=ON")
	if err != nil {
		return nil, err
	}
	s := New(db, tel)
	err = s.CreateSchema(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) dropAll(ctx context.Context) error {
	for _, table := range tables {
		_, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table)
		if err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	return nil
}

func (s *Store) CreateSchema(ctx context.Context) error {
	for _, stmt := range Statements() {
		_, err := s.db.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Optimize compacts the database and refreshes the planner statistics, local
// databases are switched back to a rollback journal so the result is a
// single file.
func (s *Store) Optimize(ctx context.Context) error {
	var errs []error
	if !s.remote {
		_, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=DELETE")
		errs = append(errs, err)
		_, err = s.db.ExecContext(ctx, "VACUUM")
		errs = append(errs, err)
	}
	_, err := s.db.ExecContext(ctx, "ANALYZE")
	errs = append(errs, err)
	return errors.Join(errs...)
}
