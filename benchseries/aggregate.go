// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package benchseries groups recorded benchmark runs by revision and
// charts how each measured field evolves from revision to revision.
package benchseries

import (
	"context"
	"errors"
	"math"

	"github.com/aclements/go-gg/table"
	"github.com/aclements/go-moremath/stats"

	"github.com/OxfordRSE/asmc-benchmark/storage/db"
)

// ErrEmptyHistory is returned when there are no recorded runs to
// aggregate or plot.
var ErrEmptyHistory = errors.New("no benchmark runs recorded")

// A History is a read-only source of recorded runs, in creation order.
// *db.Store is a History.
type History interface {
	Runs(ctx context.Context) ([]db.Run, error)
}

// A Summary holds the descriptive statistics of one field over the
// runs of a single revision.
type Summary struct {
	Revision string
	// N is the number of runs of Revision that recorded the field.
	// When N is 0 the statistics are NaN.
	N      int
	Mean   float64
	StdDev float64 // sample standard deviation; 0 when N is 1
	Min    float64
	Max    float64
}

// Defined reports whether s has any values.
func (s *Summary) Defined() bool {
	return s.N > 0
}

// Group groups runs by revision and summarizes field within each
// group. Groups appear in the order their revision is first seen in
// runs. Runs without a revision are skipped, and runs missing field
// count toward no statistic.
func Group(runs []db.Run, field string) []Summary {
	var (
		revs    []string
		vals    []float64
		present []bool
	)
	for i := range runs {
		r := &runs[i]
		if !r.Revision.Valid {
			continue
		}
		v, ok := r.Value(field)
		revs = append(revs, r.Revision.String)
		vals = append(vals, v)
		present = append(present, ok)
	}
	if len(revs) == 0 {
		return []Summary{}
	}

	var tb table.Builder
	tb.Add("revision", revs).Add("value", vals).Add("present", present)
	g := table.GroupBy(tb.Done(), "revision")

	sums := make([]Summary, 0, len(g.Tables()))
	for _, gid := range g.Tables() {
		t := g.Table(gid)
		gv := t.MustColumn("value").([]float64)
		gp := t.MustColumn("present").([]bool)
		var xs []float64
		for i, ok := range gp {
			if ok {
				xs = append(xs, gv[i])
			}
		}
		sums = append(sums, summarize(gid.Label().(string), xs))
	}
	return sums
}

func summarize(rev string, xs []float64) Summary {
	s := Summary{Revision: rev, N: len(xs)}
	if len(xs) == 0 {
		nan := math.NaN()
		s.Mean, s.StdDev, s.Min, s.Max = nan, nan, nan, nan
		return s
	}
	s.Mean = stats.Mean(xs)
	if len(xs) > 1 {
		s.StdDev = stats.StdDev(xs)
	}
	s.Min, s.Max = stats.Bounds(xs)
	return s
}

// Aggregate reads every run from h and groups them with Group.
// It returns ErrEmptyHistory if h holds no runs.
func Aggregate(ctx context.Context, h History, field string) ([]Summary, error) {
	runs, err := h.Runs(ctx)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrEmptyHistory
	}
	return Group(runs, field), nil
}
