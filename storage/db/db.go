// Copyright 2016 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package db provides the results store for benchmark runs.
//
// Every operation acquires its own connection and releases it before
// returning, so a writer never holds the database open while the
// (potentially long) workload is executing. Row identifiers come from
// the engine's autoincrement key, which makes concurrent writers from
// independent processes safe.
package db

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// Table is the name of the table holding one row per benchmark run.
const Table = "benchmark_runs"

// PrimaryKey is the engine-assigned identity column of Table.
const PrimaryKey = "identifier"

// Columns lists the non-key columns this version of the store knows
// how to write, in schema order.
var Columns = []string{
	"date_run",
	"revision",
	"time_total",
	"time_read_decoding",
	"time_read_input",
	"time_compute",
	"host_name",
	"cpu_model",
}

// optionalColumns are columns added after the first schema version.
// They are created by ALTER TABLE when an older table lacks them.
var optionalColumns = []struct {
	name, sqlite3, mysql string
}{
	{"host_name", "VARCHAR(255)", "VARCHAR(255)"},
	{"cpu_model", "VARCHAR(255)", "VARCHAR(255)"},
}

var knownColumns = func() map[string]bool {
	m := map[string]bool{PrimaryKey: true}
	for _, c := range Columns {
		m[c] = true
	}
	return m
}()

// A Store is a handle on a results database. It holds no open
// connection; each method opens one, uses it, and closes it.
// A Store is safe for concurrent use.
type Store struct {
	driverName     string
	dataSourceName string
}

// NewStore returns a Store for the database identified by driverName
// and dataSourceName, as accepted by sql.Open. Only mysql and sqlite3
// are explicitly supported; other engines receive MySQL syntax.
func NewStore(driverName, dataSourceName string) *Store {
	return &Store{driverName: driverName, dataSourceName: dataSourceName}
}

// DB is a single scoped connection to the results database.
// It must be closed by the caller.
type DB struct {
	sql        *sql.DB // underlying database connection
	driverName string
}

// OpenSQL opens a connection to a results database. The parameters
// are the same as the parameters for sql.Open.
func OpenSQL(driverName, dataSourceName string) (*DB, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	if hook := openHooks[driverName]; hook != nil {
		if err := hook(db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &DB{sql: db, driverName: driverName}, nil
}

var openHooks = make(map[string]func(*sql.DB) error)

// RegisterOpenHook registers a hook to be called after opening a connection to driverName.
// This is used by the sqlite3 package to limit each DB to a single connection.
// It must be called from an init function.
func RegisterOpenHook(driverName string, hook func(*sql.DB) error) {
	openHooks[driverName] = hook
}

// Close closes the database connection, releasing any open resources.
func (db *DB) Close() error {
	return db.sql.Close()
}

// withDB opens a scoped connection, runs f and always closes the
// connection. A failure to close is reported if f itself succeeded.
func (s *Store) withDB(op string, f func(db *DB) error) (err error) {
	db, err := OpenSQL(s.driverName, s.dataSourceName)
	if err != nil {
		return &StorageError{Op: op, Err: err}
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = &StorageError{Op: op, Err: cerr}
		}
	}()
	if err := f(db); err != nil {
		return &StorageError{Op: op, Err: err}
	}
	return nil
}

// withTx runs f inside a transaction on db, committing on success and
// rolling back otherwise.
func (db *DB) withTx(ctx context.Context, f func(tx *sql.Tx) error) (err error) {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	return f(tx)
}

// createTmpl is the template used to prepare the CREATE statement
// for the database. It is evaluated with . as a map containing one
// entry whose key is the driver name.
var createTmpl = template.Must(template.New("create").Parse(`
CREATE TABLE IF NOT EXISTS benchmark_runs (
	identifier {{if .sqlite3}}INTEGER PRIMARY KEY AUTOINCREMENT{{else}}BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT{{end}},
	date_run {{if .sqlite3}}TIMESTAMP{{else}}DATETIME(6){{end}},
	revision VARCHAR(255),
	time_total {{if .sqlite3}}REAL{{else}}DOUBLE{{end}},
	time_read_decoding {{if .sqlite3}}REAL{{else}}DOUBLE{{end}},
	time_read_input {{if .sqlite3}}REAL{{else}}DOUBLE{{end}},
	time_compute {{if .sqlite3}}REAL{{else}}DOUBLE{{end}}
)
`))

// EnsureSchema creates the results table if it does not exist and
// adds any optional columns an existing table lacks. It never drops
// or replaces anything, and is safe to call concurrently from
// independent processes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.withDB("ensure schema", func(db *DB) error {
		return db.ensureSchema(ctx)
	})
}

func (db *DB) ensureSchema(ctx context.Context) error {
	var buf bytes.Buffer
	if err := createTmpl.Execute(&buf, map[string]bool{db.driverName: true}); err != nil {
		return err
	}
	if _, err := db.sql.ExecContext(ctx, buf.String()); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	have, err := db.columns(ctx)
	if err != nil {
		return err
	}
	for _, c := range optionalColumns {
		if have[c.name] {
			continue
		}
		typ := c.mysql
		if db.driverName == "sqlite3" {
			typ = c.sqlite3
		}
		q := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", Table, c.name, typ)
		if _, err := db.sql.ExecContext(ctx, q); err != nil {
			// Another writer may have added the column in the meantime.
			have, cerr := db.columns(ctx)
			if cerr != nil || !have[c.name] {
				return fmt.Errorf("add column %s: %w", c.name, err)
			}
		}
	}
	return nil
}

// Columns returns the names of the columns currently present in the
// results table.
func (s *Store) Columns(ctx context.Context) ([]string, error) {
	var cols []string
	err := s.withDB("list columns", func(db *DB) error {
		rows, err := db.sql.QueryContext(ctx, "SELECT * FROM "+Table+" LIMIT 0")
		if err != nil {
			return err
		}
		defer rows.Close()
		cols, err = rows.Columns()
		return err
	})
	return cols, err
}

func (db *DB) columns(ctx context.Context) (map[string]bool, error) {
	rows, err := db.sql.QueryContext(ctx, "SELECT * FROM "+Table+" LIMIT 0")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[strings.ToLower(n)] = true
	}
	return m, nil
}

// now is a hook for testing
var now = time.Now

// A RowHandle is bound to one row of the results table. It is
// returned by BeginRow and is the only way to fill that row in.
type RowHandle struct {
	// ID is the engine-assigned identifier of the row.
	ID int64
	// Date is the creation time recorded in date_run.
	Date time.Time

	store *Store
}

// BeginRow allocates a new row holding only its identifier and
// creation date. The insert is committed before BeginRow returns, so
// the row is visible to other connections before any field is set.
func (s *Store) BeginRow(ctx context.Context) (*RowHandle, error) {
	h := &RowHandle{Date: now(), store: s}
	err := s.withDB("begin row", func(db *DB) error {
		return db.withTx(ctx, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, "INSERT INTO "+Table+"(date_run) VALUES (?)", h.Date)
			if err != nil {
				return err
			}
			h.ID, err = res.LastInsertId()
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Set updates a single field of the bound row and commits the change.
//
// Setting the primary key, or a field this store does not know about,
// is a no-op and returns nil: primary keys are immutable, and unknown
// fields are ignored so that older callers keep working against newer
// schemas. Any other failure is returned as a *StorageError.
func (h *RowHandle) Set(ctx context.Context, field string, value interface{}) error {
	field = strings.ToLower(field)
	if field == PrimaryKey || !knownColumns[field] {
		return nil
	}
	return h.store.withDB("set "+field, func(db *DB) error {
		return db.withTx(ctx, func(tx *sql.Tx) error {
			q := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", Table, field, PrimaryKey)
			res, err := tx.ExecContext(ctx, q, value, h.ID)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("row %d not found", h.ID)
			}
			return nil
		})
	})
}

// A StorageError reports a failed store operation. Committed rows are
// never affected by a failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("results store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
