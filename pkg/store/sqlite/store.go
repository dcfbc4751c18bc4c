// Package sqlite implements the evidence store on a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/ChrisMcGann/IDFilter/pkg/store"
)

// Supported database/sql driver names.
const (
	DriverCGO  = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPure = "sqlite"  // modernc.org/sqlite
)

const busyTimeoutMillis = 5000

// Store is a SQLite-backed evidence store.
type Store struct {
	db     *sql.DB
	path   string
	driver string
}

var _ store.Store = (*Store)(nil)

// Open connects to the database at path, applying connection pragmas and
// creating the schema when the file is new.
func Open(ctx context.Context, path, driver string) (*Store, error) {
	if driver == "" {
		driver = DriverCGO
	}
	dsn, err := dataSourceName(path, driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, store.Wrap("open database", err)
	}

	s := &Store{db: db, path: path, driver: driver}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// dataSourceName encodes the pragmas in the form each driver understands so
// that every pooled connection gets them.
func dataSourceName(path, driver string) (string, error) {
	q := url.Values{}
	switch driver {
	case DriverCGO:
		q.Set("_busy_timeout", fmt.Sprint(busyTimeoutMillis))
		q.Set("_journal_mode", "WAL")
		q.Set("_foreign_keys", "on")
	case DriverPure:
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMillis))
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "foreign_keys(1)")
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q (want %q or %q)", driver, DriverCGO, DriverPure)
	}
	return "file:" + path + "?" + q.Encode(), nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, referenceSchema); err != nil {
		return store.Wrap("create reference tables", err)
	}

	exists, err := viewExists(ctx, s.db, store.Canonical)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	// A database holding only the baseline copy was interrupted between
	// renames by an external tool; never paper over that.
	unfiltered, err := viewExists(ctx, s.db, store.Unfiltered)
	if err != nil {
		return err
	}
	if unfiltered {
		return store.Wrap("open database", fmt.Errorf("baseline tables present without canonical tables"))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Wrap("begin schema transaction", err)
	}
	defer tx.Rollback()
	for _, stmt := range append(entityTables(store.Canonical), entityIndexes(store.Canonical)...) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return store.Wrap("create entity tables", err)
		}
	}
	return store.Wrap("commit schema", tx.Commit())
}

// Begin starts the transaction of one filtering run.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, store.Wrap("begin transaction", err)
	}
	return &Tx{tx: tx}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string {
	return s.driver
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func tableExists(ctx context.Context, q queryer, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		return false, store.Wrap("inspect schema", err)
	}
	return n > 0, nil
}

// viewExists reports whether every entity table of v exists. A partial view
// is an error.
func viewExists(ctx context.Context, q queryer, v store.View) (bool, error) {
	found := 0
	for _, base := range store.FilteredTables {
		ok, err := tableExists(ctx, q, v.Table(base))
		if err != nil {
			return false, err
		}
		if ok {
			found++
		}
	}
	switch found {
	case 0:
		return false, nil
	case len(store.FilteredTables):
		return true, nil
	default:
		return false, store.Wrap("inspect schema",
			fmt.Errorf("%s view is incomplete (%d of %d tables)", v, found, len(store.FilteredTables)))
	}
}
