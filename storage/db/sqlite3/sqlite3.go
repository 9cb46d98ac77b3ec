// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sqlite3 links the sqlite3 driver into the results store and
// configures it for multiple writer processes sharing one file.
package sqlite3

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/OxfordRSE/asmc-benchmark/storage/db"
)

func init() {
	db.RegisterOpenHook("sqlite3", func(d *sql.DB) error {
		// Each scoped DB is used for one operation; a single
		// connection keeps the busy timeout and transaction mode
		// from the DSN in effect for all of it.
		d.SetMaxOpenConns(1)
		return nil
	})
}

// DefaultBusyTimeout is how long a writer waits for another process's
// lock before the operation fails.
const DefaultBusyTimeout = 30 * time.Second

// DSN returns a data source name for the database file at path.
// Lock waits are bounded by busyTimeout, and write transactions take
// the database lock when they begin so that concurrent writers queue
// on the busy handler instead of failing on lock upgrade.
func DSN(path string, busyTimeout time.Duration) string {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	v := url.Values{}
	v.Set("_busy_timeout", fmt.Sprint(busyTimeout.Milliseconds()))
	v.Set("_txlock", "immediate")
	return "file:" + path + "?" + v.Encode()
}
