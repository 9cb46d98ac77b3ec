// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package benchseries

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
)

// WriteCSV writes one row per summary in sums to out, preceded by a
// header naming field. Undefined statistics are left empty.
func WriteCSV(out io.Writer, field string, sums []Summary) error {
	tab := [][]string{{"revision", "n", field + " mean", field + " stddev", field + " min", field + " max"}}
	for _, s := range sums {
		tab = append(tab, []string{
			s.Revision,
			strconv.Itoa(s.N),
			strof(s.Mean),
			strof(s.StdDev),
			strof(s.Min),
			strof(s.Max),
		})
	}
	csvw := csv.NewWriter(out)
	if err := csvw.WriteAll(tab); err != nil {
		return err
	}
	return csvw.Error()
}

func strof(x float64) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return ""
	}
	return fmt.Sprintf("%f", x)
}
