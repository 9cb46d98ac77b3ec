// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// A Run is one row of the results table as read back from the store.
// Fields that were never set are reported as invalid Null values.
type Run struct {
	ID       int64
	DateRun  time.Time
	Revision sql.NullString

	TimeTotal        sql.NullFloat64
	TimeReadDecoding sql.NullFloat64
	TimeReadInput    sql.NullFloat64
	TimeCompute      sql.NullFloat64

	HostName sql.NullString
	CPUModel sql.NullString
}

// Value returns the numeric value of the named timing field and
// whether it is present.
func (r *Run) Value(field string) (float64, bool) {
	var v sql.NullFloat64
	switch field {
	case "time_total":
		v = r.TimeTotal
	case "time_read_decoding":
		v = r.TimeReadDecoding
	case "time_read_input":
		v = r.TimeReadInput
	case "time_compute":
		v = r.TimeCompute
	}
	return v.Float64, v.Valid
}

// Runs returns every row in the results table in identifier order.
// Columns are matched by name, so tables written by older or newer
// versions of this package can be read.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	var runs []Run
	err := s.withDB("read runs", func(db *DB) error {
		var err error
		runs, err = db.query(ctx, "SELECT * FROM "+Table+" ORDER BY "+PrimaryKey)
		return err
	})
	return runs, err
}

// Run returns the row with the given identifier.
func (s *Store) Run(ctx context.Context, id int64) (*Run, error) {
	var runs []Run
	err := s.withDB("read run", func(db *DB) error {
		var err error
		runs, err = db.query(ctx, "SELECT * FROM "+Table+" WHERE "+PrimaryKey+" = ?", id)
		if err == nil && len(runs) == 0 {
			err = fmt.Errorf("row %d not found", id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &runs[0], nil
}

// CountRuns returns the number of rows in the results table.
func (s *Store) CountRuns(ctx context.Context) (int, error) {
	var n int
	err := s.withDB("count runs", func(db *DB) error {
		return db.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+Table).Scan(&n)
	})
	return n, err
}

func (db *DB) query(ctx context.Context, q string, args ...interface{}) ([]Run, error) {
	rows, err := db.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var runs []Run
	vals := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		var r Run
		for i, c := range cols {
			if err := r.assign(strings.ToLower(c), vals[i]); err != nil {
				return nil, fmt.Errorf("column %s: %w", c, err)
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// assign stores the driver value v into the field for column c.
// Unknown columns are ignored.
func (r *Run) assign(c string, v interface{}) error {
	var err error
	switch c {
	case PrimaryKey:
		switch id := v.(type) {
		case int64:
			r.ID = id
		case uint64:
			r.ID = int64(id)
		default:
			var f sql.NullFloat64
			f, err = toFloat(v)
			r.ID = int64(f.Float64)
		}
	case "date_run":
		r.DateRun, err = toTime(v)
	case "revision":
		r.Revision = toString(v)
	case "time_total":
		r.TimeTotal, err = toFloat(v)
	case "time_read_decoding":
		r.TimeReadDecoding, err = toFloat(v)
	case "time_read_input":
		r.TimeReadInput, err = toFloat(v)
	case "time_compute":
		r.TimeCompute, err = toFloat(v)
	case "host_name":
		r.HostName = toString(v)
	case "cpu_model":
		r.CPUModel = toString(v)
	}
	return err
}

func toFloat(v interface{}) (sql.NullFloat64, error) {
	switch v := v.(type) {
	case nil:
		return sql.NullFloat64{}, nil
	case float64:
		return sql.NullFloat64{Float64: v, Valid: true}, nil
	case float32:
		return sql.NullFloat64{Float64: float64(v), Valid: true}, nil
	case int64:
		return sql.NullFloat64{Float64: float64(v), Valid: true}, nil
	case uint64:
		return sql.NullFloat64{Float64: float64(v), Valid: true}, nil
	case []byte:
		f, err := strconv.ParseFloat(string(v), 64)
		return sql.NullFloat64{Float64: f, Valid: err == nil}, err
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return sql.NullFloat64{Float64: f, Valid: err == nil}, err
	}
	return sql.NullFloat64{}, fmt.Errorf("unexpected type %T", v)
}

func toString(v interface{}) sql.NullString {
	switch v := v.(type) {
	case nil:
		return sql.NullString{}
	case string:
		return sql.NullString{String: v, Valid: true}
	case []byte:
		return sql.NullString{String: string(v), Valid: true}
	}
	return sql.NullString{String: fmt.Sprint(v), Valid: true}
}

// timeLayouts are the textual forms date_run may take when the driver
// does not parse it itself.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func toTime(v interface{}) (time.Time, error) {
	var s string
	switch v := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return v, nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return time.Time{}, fmt.Errorf("unexpected type %T", v)
	}
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a time", s)
}
