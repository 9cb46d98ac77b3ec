// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// stubWorkload writes a shell script workload and its input files
// into a temporary directory.
func stubWorkload(t *testing.T, script string) Workload {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub workload is a shell script")
	}
	dir := t.TempDir()
	w := Workload{
		Executable:        filepath.Join(dir, "ASMC_exe"),
		DecodingQuantFile: filepath.Join(dir, "30-100-2000.decodingQuantities.gz"),
		HapsFileRoot:      filepath.Join(dir, "exampleFile.n300.array"),
	}
	if err := os.WriteFile(w.Executable, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{w.DecodingQuantFile, w.HapsFileRoot + ".samples"} {
		if err := os.WriteFile(f, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return w
}

func TestRun(t *testing.T) {
	w := stubWorkload(t, `echo "args: $*"
echo "Read precomputed decoding info in 0.25 seconds"
echo "Decoded 42 pairs in 3.14 seconds"
`)
	tm, err := New(w).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tm.Total < 0 {
		t.Errorf("Total = %v, want >= 0", tm.Total)
	}
	wantArgs := "args: " + strings.Join(w.Args(), " ")
	if !strings.Contains(tm.Output, wantArgs) {
		t.Errorf("output %q does not contain %q", tm.Output, wantArgs)
	}
	if v, ok := tm.Phase("time_compute"); !ok || v != 3.14 {
		t.Errorf("time_compute = %v, %v; want 3.14, true", v, ok)
	}
	if v, ok := tm.Phase("time_read_decoding"); !ok || v != 0.25 {
		t.Errorf("time_read_decoding = %v, %v; want 0.25, true", v, ok)
	}
	if v, ok := tm.Phase("time_read_input"); ok {
		t.Errorf("time_read_input = %v, want absent", v)
	}
}

// TestRunElapsedSign pins the total to end minus start.
func TestRunElapsedSign(t *testing.T) {
	w := stubWorkload(t, "exit 0\n")
	r := New(w)
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	r.now = func() time.Time {
		calls++
		return t0.Add(time.Duration(calls-1) * 2500 * time.Millisecond)
	}
	tm, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tm.Total != 2.5 {
		t.Errorf("Total = %v, want 2.5", tm.Total)
	}
}

func TestElapsed(t *testing.T) {
	start := time.Unix(100, 0)
	end := start.Add(1500 * time.Millisecond)
	if have := elapsed(start, end); have != 1.5 {
		t.Errorf("elapsed(start, end) = %v, want 1.5", have)
	}
}

func TestRunPreflight(t *testing.T) {
	tests := []struct {
		name   string
		remove func(w Workload) string
		what   string
	}{
		{"executable", func(w Workload) string { return w.Executable }, "workload executable"},
		{"decoding", func(w Workload) string { return w.DecodingQuantFile }, "decoding quantities file"},
		{"haps", func(w Workload) string { return w.HapsFileRoot + ".samples" }, "haps file"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			w := stubWorkload(t, "touch \"$0.ran\"\n")
			path := test.remove(w)
			if err := os.Remove(path); err != nil {
				t.Fatal(err)
			}
			_, err := New(w).Run(context.Background())
			var perr *PreflightError
			if !errors.As(err, &perr) {
				t.Fatalf("Run = %v, want *PreflightError", err)
			}
			if perr.Path != path || perr.What != test.what {
				t.Errorf("PreflightError = {%q, %q}, want {%q, %q}", perr.What, perr.Path, test.what, path)
			}
			if _, err := os.Stat(w.Executable + ".ran"); err == nil {
				t.Errorf("workload ran despite failed preflight")
			}
		})
	}
}

func TestRunFailure(t *testing.T) {
	w := stubWorkload(t, "echo partial\necho oops >&2\nexit 3\n")
	_, err := New(w).Run(context.Background())
	var werr *WorkloadExecutionError
	if !errors.As(err, &werr) {
		t.Fatalf("Run = %v, want *WorkloadExecutionError", err)
	}
	if werr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", werr.ExitCode)
	}
	if werr.Stdout != "partial\n" || werr.Stderr != "oops\n" {
		t.Errorf("captured output = %q, %q", werr.Stdout, werr.Stderr)
	}
}

func TestRunNotExecutable(t *testing.T) {
	w := stubWorkload(t, "exit 0\n")
	if err := os.Chmod(w.Executable, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := New(w).Run(context.Background())
	var werr *WorkloadExecutionError
	if !errors.As(err, &werr) {
		t.Fatalf("Run = %v, want *WorkloadExecutionError", err)
	}
	if werr.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", werr.ExitCode)
	}
}
