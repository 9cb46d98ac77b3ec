// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runner

import (
	"regexp"
	"strconv"
)

// A Phase is a named sub-interval of the workload that reports its
// own duration on standard output.
type Phase struct {
	// Field is the results column the duration is stored in.
	Field string
	// Pattern matches the phase's line; its first group is the
	// duration in seconds.
	Pattern *regexp.Regexp
}

// Phases are the phases extracted from every run.
var Phases = []Phase{
	{"time_read_decoding", regexp.MustCompile(`Read precomputed decoding info in\s+(\d+(?:\.\d+)?)\s+seconds`)},
	{"time_read_input", regexp.MustCompile(`Read haps in\s+(\d+(?:\.\d+)?)\s+seconds`)},
	{"time_compute", regexp.MustCompile(`Decoded\s+\d+\s+pairs in\s+(\d+(?:\.\d+)?)\s+seconds`)},
}

// Extract returns the duration reported for p in output.
func (p Phase) Extract(output string) (float64, bool) {
	m := p.Pattern.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ExtractPhases applies every phase pattern to output independently.
// Phases without a matching line are left out of the result.
func ExtractPhases(output string) map[string]float64 {
	m := make(map[string]float64)
	for _, p := range Phases {
		if v, ok := p.Extract(output); ok {
			m[p.Field] = v
		}
	}
	return m
}
