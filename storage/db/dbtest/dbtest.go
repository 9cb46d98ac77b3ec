// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dbtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/OxfordRSE/asmc-benchmark/storage/db"
	"github.com/OxfordRSE/asmc-benchmark/storage/db/sqlite3"
)

// Path returns a fresh database file location inside t's temporary
// directory. The file does not exist yet.
func Path(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "results.db")
}

// NewStore returns a store backed by a new sqlite3 file with its
// schema created. The file is removed when the test finishes.
func NewStore(t *testing.T) *db.Store {
	t.Helper()
	s := db.NewStore("sqlite3", sqlite3.DSN(Path(t), 5*time.Second))
	ctx := context.Background()
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	// Make sure the database really is empty.
	n, err := s.CountRuns(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("found %d row(s) in %s, want 0", n, db.Table)
	}
	return s
}
