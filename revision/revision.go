// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package revision identifies the source state of the benchmarked
// workload.
package revision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// GitCommand is the version-control tool invoked by Resolve.
var GitCommand = "git"

// A ResolutionError reports that the revision of a source tree could
// not be determined.
type ResolutionError struct {
	Dir    string
	Err    error
	Output string // combined output of the failed query, if any
}

func (e *ResolutionError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("resolving revision of %s: %v (%s)", e.Dir, e.Err, e.Output)
	}
	return fmt.Sprintf("resolving revision of %s: %v", e.Dir, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Resolve returns the commit identifier of the git work tree at dir.
func Resolve(ctx context.Context, dir string) (string, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return "", &ResolutionError{Dir: dir, Err: err}
	}
	if !fi.IsDir() {
		return "", &ResolutionError{Dir: dir, Err: errors.New("not a directory")}
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, GitCommand, "rev-parse", "HEAD")
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &ResolutionError{Dir: dir, Err: err, Output: strings.TrimSpace(stderr.String())}
	}
	rev := strings.TrimSpace(stdout.String())
	if rev == "" {
		return "", &ResolutionError{Dir: dir, Err: errors.New("empty revision")}
	}
	return rev, nil
}

// Short returns the first n characters of rev, used to label
// revisions on charts.
func Short(rev string, n int) string {
	if n <= 0 || len(rev) <= n {
		return rev
	}
	return rev[:n]
}
