// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mysql links the MySQL driver, and the Cloud SQL dialer it
// can connect through, into the results store.
package mysql

import (
	"fmt"
	"math"
	"strconv"
	"time"

	_ "github.com/GoogleCloudPlatform/cloudsql-proxy/proxy/dialers/mysql"
	"github.com/go-sql-driver/mysql"
)

// CloudSQLDSN returns a data source name for database dbName of the
// Cloud SQL instance connectionName ("project:region:instance").
// password may be empty.
func CloudSQLDSN(user, password, connectionName, dbName string) string {
	return fmt.Sprintf("%s:%s@cloudsql(%s)/%s", user, password, connectionName, dbName)
}

// DSN returns dsn with time parsing enabled, affected row counts
// reporting matched rows, and row lock waits bounded by lockTimeout,
// rounded up to whole seconds.
func DSN(dsn string, lockTimeout time.Duration) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	if lockTimeout > 0 {
		if cfg.Params == nil {
			cfg.Params = make(map[string]string)
		}
		cfg.Params["innodb_lock_wait_timeout"] = strconv.Itoa(int(math.Ceil(lockTimeout.Seconds())))
	}
	return cfg.FormatDSN(), nil
}
