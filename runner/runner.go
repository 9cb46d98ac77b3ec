// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package runner executes the benchmark workload and extracts its
// timings.
//
// The workload is invoked with a fixed argument list. Its standard
// output is scanned for one line per phase of the form
//
//	<phase description> in <seconds> seconds
//
// and a phase whose line is missing is simply absent from the result.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// A Workload locates the benchmark executable and its input data.
type Workload struct {
	// Executable is the path to the workload binary.
	Executable string
	// DecodingQuantFile is the precomputed decoding quantities file.
	DecodingQuantFile string
	// HapsFileRoot is the path root of the input sample data.
	// The file HapsFileRoot+".samples" must exist.
	HapsFileRoot string
}

// Args returns the fixed command-line arguments of the workload.
func (w *Workload) Args() []string {
	return []string{
		"--decodingQuantFile", w.DecodingQuantFile,
		"--hapsFileRoot", w.HapsFileRoot,
		"--posteriorSums",
	}
}

// Preflight checks that the executable and the input files exist.
// It returns a *PreflightError naming the first missing artifact.
func (w *Workload) Preflight() error {
	for _, c := range []struct{ what, path string }{
		{"workload executable", w.Executable},
		{"decoding quantities file", w.DecodingQuantFile},
		{"haps file", w.HapsFileRoot + ".samples"},
	} {
		fi, err := os.Stat(c.path)
		if err == nil && fi.Mode().IsRegular() {
			continue
		}
		if err == nil {
			err = errors.New("not a regular file")
		}
		return &PreflightError{What: c.what, Path: c.path, Err: err}
	}
	return nil
}

// Timings are the measurements of one workload invocation.
type Timings struct {
	// Total is the wall-clock duration of the subprocess in seconds.
	Total float64
	// Phases maps a phase field name to its reported duration in
	// seconds. Phases the workload did not report are absent.
	Phases map[string]float64
	// Output is the captured standard output.
	Output string
}

// Phase returns the duration of the named phase and whether the
// workload reported it.
func (t *Timings) Phase(field string) (float64, bool) {
	v, ok := t.Phases[field]
	return v, ok
}

// A Runner runs a Workload.
type Runner struct {
	Workload Workload

	now func() time.Time // clock hook for testing
}

// New returns a Runner for w.
func New(w Workload) *Runner {
	return &Runner{Workload: w, now: time.Now}
}

// Run checks the workload's preconditions, runs it once and returns
// its timings. It does not retry.
func (r *Runner) Run(ctx context.Context) (*Timings, error) {
	w := &r.Workload
	if err := w.Preflight(); err != nil {
		return nil, err
	}
	now := r.now
	if now == nil {
		now = time.Now
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, w.Executable, w.Args()...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := now()
	err := cmd.Run()
	end := now()

	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return nil, &WorkloadExecutionError{
			Path:     w.Executable,
			Err:      err,
			ExitCode: code,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
		}
	}

	out := stdout.String()
	return &Timings{
		Total:  elapsed(start, end),
		Phases: ExtractPhases(out),
		Output: out,
	}, nil
}

// elapsed returns the seconds from start to end.
func elapsed(start, end time.Time) float64 {
	return end.Sub(start).Seconds()
}

// A PreflightError reports a required file that is missing. It is
// returned before any subprocess is started.
type PreflightError struct {
	What string
	Path string
	Err  error
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("expected to find %s at %s: %v", e.What, e.Path, e.Err)
}

func (e *PreflightError) Unwrap() error { return e.Err }

// A WorkloadExecutionError reports a workload that could not be
// started or exited with a non-zero status.
type WorkloadExecutionError struct {
	Path     string
	Err      error
	ExitCode int // -1 if the process did not run to completion
	Stdout   string
	Stderr   string
}

func (e *WorkloadExecutionError) Error() string {
	return fmt.Sprintf("running %s: %v", e.Path, e.Err)
}

func (e *WorkloadExecutionError) Unwrap() error { return e.Err }
