// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package db_test

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	. "github.com/OxfordRSE/asmc-benchmark/storage/db"
	"github.com/OxfordRSE/asmc-benchmark/storage/db/dbtest"
	"github.com/OxfordRSE/asmc-benchmark/storage/db/sqlite3"
)

const helperEnv = "ASMCBENCH_DB_HELPER"

// tables returns the names of the tables in the store's database.
func tables(t *testing.T, s *Store) []string {
	t.Helper()
	d, err := s.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()
	rows, err := DBSQL(d).Query("SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		t.Fatalf("sql.Query: %v", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("rows.Scan: %v", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows.Err: %v", err)
	}
	return names
}

// TestEnsureSchemaIdempotent verifies that creating the schema twice
// leaves exactly one table with the expected columns.
func TestEnsureSchemaIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore("sqlite3", sqlite3.DSN(dbtest.Path(t), time.Second))

	for i := 0; i < 2; i++ {
		if err := s.EnsureSchema(ctx); err != nil {
			t.Fatalf("EnsureSchema #%d: %v", i+1, err)
		}
	}

	if diff := cmp.Diff([]string{Table}, tables(t, s)); diff != "" {
		t.Errorf("tables (-want +have):\n%s", diff)
	}
	cols, err := s.Columns(ctx)
	if err != nil {
		t.Fatalf("Columns: %v", err)
	}
	want := append([]string{PrimaryKey}, Columns...)
	if diff := cmp.Diff(want, cols); diff != "" {
		t.Errorf("columns (-want +have):\n%s", diff)
	}
}

// TestEnsureSchemaAddsColumns verifies that a table created by an
// older version gains the newer optional columns without losing rows.
func TestEnsureSchemaAddsColumns(t *testing.T) {
	ctx := context.Background()
	s := NewStore("sqlite3", sqlite3.DSN(dbtest.Path(t), time.Second))

	d, err := s.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, q := range []string{
		`CREATE TABLE benchmark_runs (identifier INTEGER PRIMARY KEY ASC, date_run DATE, revision VARCHAR, time_total REAL)`,
		`INSERT INTO benchmark_runs(date_run, revision, time_total) VALUES ('2020-01-02T03:04:05', 'abc', 2.5)`,
	} {
		if _, err := DBSQL(d).Exec(q); err != nil {
			t.Fatalf("Exec(%q): %v", q, err)
		}
	}
	d.Close()

	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	cols, err := s.Columns(ctx)
	if err != nil {
		t.Fatalf("Columns: %v", err)
	}
	for _, c := range []string{"revision", "time_total", "host_name", "cpu_model"} {
		found := false
		for _, have := range cols {
			found = found || have == c
		}
		if !found {
			t.Errorf("column %q missing after EnsureSchema; have %v", c, cols)
		}
	}

	runs, err := s.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}
	if r := runs[0]; r.Revision.String != "abc" || r.TimeTotal.Float64 != 2.5 || r.HostName.Valid {
		t.Errorf("legacy row = %+v", r)
	}
}

// TestTwoPhaseWrite verifies that a new row starts empty and that Set
// changes exactly one field.
func TestTwoPhaseWrite(t *testing.T) {
	ctx := context.Background()
	s := dbtest.NewStore(t)

	SetNow(time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC))
	defer SetNow(time.Time{})

	h, err := s.BeginRow(ctx)
	if err != nil {
		t.Fatalf("BeginRow: %v", err)
	}

	r, err := s.Run(ctx, h.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.ID != h.ID {
		t.Errorf("ID = %d, want %d", r.ID, h.ID)
	}
	if r.DateRun.IsZero() {
		t.Errorf("date_run not set")
	}
	if r.Revision.Valid || r.TimeTotal.Valid || r.TimeReadDecoding.Valid || r.TimeReadInput.Valid || r.TimeCompute.Valid {
		t.Errorf("new row has fields set: %+v", r)
	}

	if err := h.Set(ctx, "time_total", 1.5); err != nil {
		t.Fatalf("Set: %v", err)
	}
	after, err := s.Run(ctx, h.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v, ok := after.Value("time_total"); !ok || v != 1.5 {
		t.Errorf("time_total = %v, %v; want 1.5, true", v, ok)
	}
	after.TimeTotal = r.TimeTotal
	if diff := cmp.Diff(r, after); diff != "" {
		t.Errorf("other fields changed (-before +after):\n%s", diff)
	}
}

// TestSetIgnoresUnknownAndKey verifies the forward-compatibility
// policy: unknown fields and the primary key are silently ignored.
func TestSetIgnoresUnknownAndKey(t *testing.T) {
	ctx := context.Background()
	s := dbtest.NewStore(t)

	h, err := s.BeginRow(ctx)
	if err != nil {
		t.Fatalf("BeginRow: %v", err)
	}
	if err := h.Set(ctx, "revision", "deadbeef"); err != nil {
		t.Fatalf("Set(revision): %v", err)
	}
	before, err := s.Run(ctx, h.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, field := range []string{"nonexistent_field", PrimaryKey} {
		if err := h.Set(ctx, field, 1); err != nil {
			t.Errorf("Set(%q) = %v, want nil", field, err)
		}
	}

	after, err := s.Run(ctx, h.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("row changed (-before +after):\n%s", diff)
	}
}

// TestSetMissingRow verifies that updating a row that does not exist
// is reported rather than ignored.
func TestSetMissingRow(t *testing.T) {
	ctx := context.Background()
	s := dbtest.NewStore(t)

	h, err := s.BeginRow(ctx)
	if err != nil {
		t.Fatalf("BeginRow: %v", err)
	}
	h.ID += 100
	err = h.Set(ctx, "time_total", 1.0)
	var serr *StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("Set on missing row = %v, want *StorageError", err)
	}
}

// TestStorageErrorOnBadLocation verifies that an unusable location is
// a StorageError.
func TestStorageErrorOnBadLocation(t *testing.T) {
	s := NewStore("sqlite3", sqlite3.DSN("/nonexistent/dir/results.db", time.Second))
	err := s.EnsureSchema(context.Background())
	var serr *StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("EnsureSchema = %v, want *StorageError", err)
	}
}

// TestRunsOrder verifies that rows are read back in creation order.
func TestRunsOrder(t *testing.T) {
	ctx := context.Background()
	s := dbtest.NewStore(t)

	revs := []string{"a", "b", "a", "c"}
	for _, rev := range revs {
		h, err := s.BeginRow(ctx)
		if err != nil {
			t.Fatalf("BeginRow: %v", err)
		}
		if err := h.Set(ctx, "revision", rev); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	runs, err := s.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	var have []string
	for _, r := range runs {
		have = append(have, r.Revision.String)
	}
	if diff := cmp.Diff(revs, have); diff != "" {
		t.Errorf("revisions (-want +have):\n%s", diff)
	}
}

// TestConcurrentBeginRow verifies that independent connections never
// receive the same identifier.
func TestConcurrentBeginRow(t *testing.T) {
	ctx := context.Background()
	path := dbtest.Path(t)
	dsn := sqlite3.DSN(path, 10*time.Second)
	if err := NewStore("sqlite3", dsn).EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	const writers, perWriter = 4, 10
	var (
		mu  sync.Mutex
		ids = make(map[int64]bool)
		wg  sync.WaitGroup
	)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := NewStore("sqlite3", dsn)
			for i := 0; i < perWriter; i++ {
				h, err := s.BeginRow(ctx)
				if err != nil {
					t.Errorf("BeginRow: %v", err)
					return
				}
				mu.Lock()
				if ids[h.ID] {
					t.Errorf("identifier %d allocated twice", h.ID)
				}
				ids[h.ID] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(ids) != writers*perWriter {
		t.Errorf("got %d identifiers, want %d", len(ids), writers*perWriter)
	}
}

// TestConcurrentProcesses runs several copies of the test binary
// against one database file and checks identifiers are never reused.
func TestConcurrentProcesses(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns subprocesses")
	}
	ctx := context.Background()
	path := dbtest.Path(t)
	if err := NewStore("sqlite3", sqlite3.DSN(path, 10*time.Second)).EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	const procs = 3
	cmds := make([]*exec.Cmd, procs)
	outs := make([]*strings.Builder, procs)
	for i := range cmds {
		cmd := exec.Command(os.Args[0], "-test.run=^TestHelperBeginRows$")
		cmd.Env = append(os.Environ(), helperEnv+"="+path)
		outs[i] = new(strings.Builder)
		cmd.Stdout = outs[i]
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			t.Fatalf("Start: %v", err)
		}
		cmds[i] = cmd
	}
	ids := make(map[int64]bool)
	for i, cmd := range cmds {
		if err := cmd.Wait(); err != nil {
			t.Fatalf("helper %d: %v", i, err)
		}
		sc := bufio.NewScanner(strings.NewReader(outs[i].String()))
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "id ") {
				continue
			}
			id, err := strconv.ParseInt(strings.TrimPrefix(line, "id "), 10, 64)
			if err != nil {
				t.Fatalf("bad helper output %q", line)
			}
			if ids[id] {
				t.Errorf("identifier %d allocated twice", id)
			}
			ids[id] = true
		}
	}
	if len(ids) != procs*5 {
		t.Errorf("got %d identifiers, want %d", len(ids), procs*5)
	}
}

// TestHelperBeginRows is not a real test; it is the body of the
// subprocesses started by TestConcurrentProcesses.
func TestHelperBeginRows(t *testing.T) {
	path := os.Getenv(helperEnv)
	if path == "" {
		t.Skip("helper process only")
	}
	s := NewStore("sqlite3", sqlite3.DSN(path, 10*time.Second))
	for i := 0; i < 5; i++ {
		h, err := s.BeginRow(context.Background())
		if err != nil {
			t.Fatalf("BeginRow: %v", err)
		}
		fmt.Printf("id %d\n", h.ID)
	}
}
