// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pipeline records one ASMC benchmark run and re-plots the
// history of all recorded runs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/OxfordRSE/asmc-benchmark/benchseries"
	"github.com/OxfordRSE/asmc-benchmark/config"
	"github.com/OxfordRSE/asmc-benchmark/publish"
	"github.com/OxfordRSE/asmc-benchmark/revision"
	"github.com/OxfordRSE/asmc-benchmark/runner"
	"github.com/OxfordRSE/asmc-benchmark/storage/db"
	"github.com/OxfordRSE/asmc-benchmark/storage/db/mysql"
	"github.com/OxfordRSE/asmc-benchmark/storage/db/sqlite3"
)

// A Chart is one field plotted by Plot.
type Chart struct {
	Field     string
	AxisLabel string
}

// DefaultCharts are the charts Plot renders.
var DefaultCharts = []Chart{
	{"time_total", "Total execution time (s)"},
	{"time_read_decoding", "Time reading decoding info (s)"},
	{"time_read_input", "Time reading haps (s)"},
	{"time_compute", "Time decoding pairs (s)"},
}

// IndexFile is the name of the HTML page listing the charts.
const IndexFile = "index.html"

// A Benchmark runs the workload once.
// *runner.Runner is a Benchmark.
type Benchmark interface {
	Run(ctx context.Context) (*runner.Timings, error)
}

// A Pipeline wires the components of a benchmark run together.
type Pipeline struct {
	Config    *config.Config
	Log       logrus.FieldLogger
	Runner    Benchmark
	Store     *db.Store
	Publisher publish.Publisher // may be nil
	Charts    []Chart

	// Resolve returns the revision checked out in a directory.
	Resolve func(ctx context.Context, dir string) (string, error)
	// HostFacts describes the current machine. Its failure is not fatal.
	HostFacts func(ctx context.Context) (runner.Host, error)

	now func() time.Time
}

// New returns a Pipeline for cfg using the real workload, revision
// resolver and store.
func New(cfg *config.Config, log logrus.FieldLogger) (*Pipeline, error) {
	store, err := OpenStore(cfg.Database)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		Config: cfg,
		Log:    log,
		Runner: runner.New(runner.Workload{
			Executable:        cfg.Workload.Executable,
			DecodingQuantFile: cfg.Workload.DecodingQuantFile,
			HapsFileRoot:      cfg.Workload.HapsFileRoot,
		}),
		Store:     store,
		Publisher: publish.New(cfg.Publish, log),
		Charts:    DefaultCharts,
		Resolve:   revision.Resolve,
		HostFacts: runner.HostFacts,
		now:       time.Now,
	}, nil
}

// OpenStore returns the results store described by cfg, with the busy
// timeout added to its data source name.
func OpenStore(cfg config.DatabaseConfig) (*db.Store, error) {
	dsn, err := storeDSN(cfg)
	if err != nil {
		return nil, err
	}
	return db.NewStore(cfg.Driver, dsn), nil
}

func storeDSN(cfg config.DatabaseConfig) (string, error) {
	switch cfg.Driver {
	case "sqlite3":
		return sqlite3.DSN(cfg.DSN, cfg.BusyTimeout), nil
	case "mysql":
		base := cfg.DSN
		if sql := cfg.CloudSQL; sql.Instance != "" {
			base = mysql.CloudSQLDSN(sql.User, sql.Password, sql.Instance, sql.Database)
		}
		dsn, err := mysql.DSN(base, cfg.BusyTimeout)
		if err != nil {
			return "", fmt.Errorf("database.dsn: %w", err)
		}
		return dsn, nil
	}
	return cfg.DSN, nil
}

// Record runs the benchmark once and stores its results, returning
// the identifier of the new row. The row is created only after the
// workload finishes, so a run that fails or is killed during the
// workload leaves no row in the store. An error after the row is
// created leaves it partially filled.
func (p *Pipeline) Record(ctx context.Context) (int64, error) {
	if err := p.Store.EnsureSchema(ctx); err != nil {
		return 0, err
	}

	rev, err := p.Resolve(ctx, p.Config.Workload.SourceDir)
	if err != nil {
		return 0, err
	}
	log := p.Log.WithField("revision", revision.Short(rev, p.Config.Charts.LabelLength))
	log.WithField("executable", p.Config.Workload.Executable).Info("Running benchmark")

	tm, err := p.Runner.Run(ctx)
	if err != nil {
		return 0, err
	}
	log.WithField("total", units.HumanDuration(seconds(tm.Total))).Info("Benchmark finished")

	h, err := p.Store.BeginRow(ctx)
	if err != nil {
		return 0, err
	}
	log = log.WithField("id", h.ID)

	if err := h.Set(ctx, "revision", rev); err != nil {
		return h.ID, err
	}
	if p.HostFacts != nil {
		host, err := p.HostFacts(ctx)
		if err != nil {
			log.WithError(err).Warn("Could not read host facts")
		}
		if err := setNonEmpty(ctx, h, "host_name", host.Name); err != nil {
			return h.ID, err
		}
		if err := setNonEmpty(ctx, h, "cpu_model", host.CPUModel); err != nil {
			return h.ID, err
		}
	}
	if err := h.Set(ctx, "time_total", tm.Total); err != nil {
		return h.ID, err
	}
	for _, ph := range runner.Phases {
		v, ok := tm.Phase(ph.Field)
		if !ok {
			log.WithField("phase", ph.Field).Warn("Phase not reported by workload")
			continue
		}
		if err := h.Set(ctx, ph.Field, v); err != nil {
			return h.ID, err
		}
	}
	log.Info("Recorded benchmark run")
	return h.ID, nil
}

func (p *Pipeline) clock() time.Time {
	if p.now == nil {
		return time.Now()
	}
	return p.now()
}

func setNonEmpty(ctx context.Context, h *db.RowHandle, field, value string) error {
	if value == "" {
		return nil
	}
	return h.Set(ctx, field, value)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// snapshot is a History fixed at the time it was read, so that every
// chart of one Plot call sees the same runs.
type snapshot []db.Run

func (s snapshot) Runs(context.Context) ([]db.Run, error) { return s, nil }

// Plot renders the configured charts from every recorded run into the
// chart output directory and publishes them. It returns the names of
// the files written, relative to that directory. Charts are rendered
// concurrently. A chart whose field was never recorded is skipped.
// Plot returns benchseries.ErrEmptyHistory if there are no runs.
func (p *Pipeline) Plot(ctx context.Context) ([]string, error) {
	start := p.clock()
	runs, err := p.Store.Runs(ctx)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, benchseries.ErrEmptyHistory
	}
	dir := p.Config.Charts.OutputDir
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return nil, err
	}
	opts := benchseries.ChartOptions{
		LabelLength: p.Config.Charts.LabelLength,
		CommitURL:   p.Config.Charts.CommitURL,
		Date:        start,
	}

	var (
		entries = make([]*benchseries.IndexEntry, len(p.Charts))
		files   = make([][]string, len(p.Charts))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, c := range p.Charts {
		i, c := i, c
		g.Go(func() error {
			o := opts
			o.AxisLabel = c.AxisLabel
			entry, written, err := p.plotChart(gctx, snapshot(runs), c, dir, o)
			entries[i], files[i] = entry, written
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		written []string
		index   []benchseries.IndexEntry
	)
	for i := range p.Charts {
		written = append(written, files[i]...)
		if entries[i] != nil {
			index = append(index, *entries[i])
		}
	}
	if p.Config.Charts.Index {
		if err := writeIndex(filepath.Join(dir, IndexFile), start, index); err != nil {
			return nil, err
		}
		written = append(written, IndexFile)
	}
	p.Log.WithFields(logrus.Fields{
		"runs":  len(runs),
		"files": len(written),
		"dir":   dir,
		"took":  units.HumanDuration(p.clock().Sub(start)),
	}).Info("Plotted benchmark history")

	if p.Publisher != nil {
		if err := p.Publisher.Publish(ctx, dir, written); err != nil {
			return nil, fmt.Errorf("publishing charts: %w", err)
		}
	}
	return written, nil
}

// plotChart renders one chart and, if configured, its CSV summary.
// It returns a nil entry if the field has no values.
func (p *Pipeline) plotChart(ctx context.Context, h snapshot, c Chart, dir string, o benchseries.ChartOptions) (*benchseries.IndexEntry, []string, error) {
	svg, err := benchseries.Plot(ctx, h, c.Field, dir, o)
	if errors.Is(err, benchseries.ErrEmptyHistory) {
		p.Log.WithField("field", c.Field).Warn("No values recorded, skipping chart")
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	sums := benchseries.Group(h, c.Field)
	entry := &benchseries.IndexEntry{
		Field:     c.Field,
		AxisLabel: c.AxisLabel,
		File:      filepath.Base(svg),
		Runs:      len(sums),
	}
	files := []string{entry.File}
	if p.Config.Charts.CSV {
		name := c.Field + ".csv"
		if err := writeCSV(filepath.Join(dir, name), c.Field, sums); err != nil {
			return nil, nil, err
		}
		files = append(files, name)
	}
	return entry, files, nil
}

func writeCSV(file, field string, sums []benchseries.Summary) (err error) {
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return benchseries.WriteCSV(f, field, sums)
}

func writeIndex(file string, date time.Time, entries []benchseries.IndexEntry) (err error) {
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return benchseries.WriteIndex(f, date, entries)
}

// Run records one benchmark run and then re-plots the history.
func (p *Pipeline) Run(ctx context.Context) (int64, error) {
	id, err := p.Record(ctx)
	if err != nil {
		return id, err
	}
	_, err = p.Plot(ctx)
	return id, err
}
