// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runner

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractPhases(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   map[string]float64
	}{
		{
			"decoded",
			"Decoded 42 pairs in 3.14 seconds",
			map[string]float64{"time_compute": 3.14},
		},
		{
			"all",
			`Read precomputed decoding info in 1.5 seconds
Read haps in   0.75   seconds
Decoded 44850 pairs in 12 seconds
`,
			map[string]float64{"time_read_decoding": 1.5, "time_read_input": 0.75, "time_compute": 12},
		},
		{
			"long digits",
			"Read haps in 1234.000056 seconds",
			map[string]float64{"time_read_input": 1234.000056},
		},
		{
			"zero is not absence",
			"Read haps in 0.0 seconds",
			map[string]float64{"time_read_input": 0},
		},
		{
			"no phases",
			"nothing interesting here\n",
			map[string]float64{},
		},
		{
			"changed format",
			"Decoded pairs in 3.14 seconds\nRead haps in 2 secs\n",
			map[string]float64{},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			have := ExtractPhases(test.output)
			if diff := cmp.Diff(test.want, have); diff != "" {
				t.Errorf("ExtractPhases (-want +have):\n%s", diff)
			}
		})
	}
}

func TestPhaseExtractAbsent(t *testing.T) {
	for _, p := range Phases {
		if v, ok := p.Extract(""); ok {
			t.Errorf("%s.Extract(\"\") = %v, true; want absent", p.Field, v)
		}
	}
}
