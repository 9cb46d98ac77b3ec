// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package benchseries

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgsvg"

	"github.com/OxfordRSE/asmc-benchmark/revision"
)

// ChartOptions controls the appearance of a chart.
type ChartOptions struct {
	// AxisLabel labels the y axis.
	AxisLabel string
	// LabelLength is the number of revision characters shown per tick.
	LabelLength int
	// CommitURL is a format string with a single %s verb that turns
	// a revision into the address of its detail page. Empty disables
	// tick links.
	CommitURL string
	// Date is shown in the chart title.
	Date time.Time
}

// DefaultLabelLength is the tick label length used when
// ChartOptions.LabelLength is not set.
const DefaultLabelLength = 7

// RevisionURL returns the detail page address of rev, or "" if o has
// no CommitURL.
func (o *ChartOptions) RevisionURL(rev string) string {
	if o.CommitURL == "" {
		return ""
	}
	return fmt.Sprintf(o.CommitURL, rev)
}

func (o *ChartOptions) label(rev string) string {
	n := o.LabelLength
	if n <= 0 {
		n = DefaultLabelLength
	}
	return revision.Short(rev, n)
}

var (
	lineGray  = color.Gray{Y: 0xbf} // 75% gray
	bgGray    = color.Gray{Y: 0xe6} // 90% gray
	lightBlue = color.NRGBA{R: 0x00, G: 0x72, B: 0xbd, A: 0xff}
)

// errPoints pairs group means with their error bars.
type errPoints struct {
	plotter.XYs
	plotter.YErrors
}

// Chart renders sums as an SVG error-bar series. Groups appear on the
// x axis in order, each labelled with a prefix of its revision; the y
// axis shows the mean with bars of one standard deviation either side.
// Groups with no values keep their tick but have no point. Chart
// returns ErrEmptyHistory if no group has a value.
func Chart(sums []Summary, o ChartOptions) ([]byte, error) {
	var (
		pts    errPoints
		maxStd float64
		lo, hi = math.Inf(1), math.Inf(-1)
		ticks  = make([]plot.Tick, len(sums))
		links  = make(map[string][]string)
	)
	for i, s := range sums {
		label := o.label(s.Revision)
		ticks[i] = plot.Tick{Value: float64(i), Label: label}
		if u := o.RevisionURL(s.Revision); u != "" {
			links[label] = append(links[label], u)
		}
		if !s.Defined() {
			continue
		}
		std := s.StdDev
		if math.IsNaN(std) {
			std = 0
		}
		pts.XYs = append(pts.XYs, plotter.XY{X: float64(i), Y: s.Mean})
		pts.YErrors = append(pts.YErrors, struct{ Low, High float64 }{std, std})
		maxStd = math.Max(maxStd, std)
		lo = math.Min(lo, s.Min)
		hi = math.Max(hi, s.Max)
	}
	if len(pts.XYs) == 0 {
		return nil, ErrEmptyHistory
	}

	pl := plot.New()
	pl.BackgroundColor = bgGray
	pl.Title.Text = fmt.Sprintf("Generated by asmc-benchmark (%s)", o.Date.Format("02-Jan-2006 15:04"))
	pl.Title.TextStyle.Font.Size = 14
	pl.Title.Padding = vg.Points(10)
	pl.X.Label.Text = "ASMC git revision"
	pl.X.Label.TextStyle.Font.Size = 12
	pl.X.Label.Padding = vg.Points(20)
	pl.Y.Label.Text = o.AxisLabel
	pl.Y.Label.TextStyle.Font.Size = 12
	pl.Y.Label.Padding = vg.Points(20)

	for _, ax := range []*plot.Axis{&pl.X, &pl.Y} {
		ax.LineStyle.Color = lineGray
		ax.LineStyle.Width = vg.Points(0.5)
		ax.Tick.Length = 0
		ax.Tick.Label.Font.Size = 10
	}
	pl.X.Tick.Marker = plot.ConstantTicks(ticks)
	pl.X.Tick.Label.Rotation = math.Pi / 2
	pl.X.Tick.Label.XAlign = draw.XRight
	pl.X.Tick.Label.YAlign = draw.YCenter

	grid := plotter.NewGrid()
	dotted := []vg.Length{vg.Points(1), vg.Points(2)}
	grid.Vertical.Color, grid.Vertical.Dashes = lineGray, dotted
	grid.Horizontal.Color, grid.Horizontal.Dashes = lineGray, dotted
	pl.Add(grid)

	line, points, err := plotter.NewLinePoints(pts.XYs)
	if err != nil {
		return nil, err
	}
	line.Color = lightBlue
	points.Color = lightBlue
	points.Shape = draw.CircleGlyph{}
	points.Radius = vg.Points(3)

	bars, err := plotter.NewYErrorBars(pts)
	if err != nil {
		return nil, err
	}
	bars.LineStyle.Color = lightBlue
	bars.LineStyle.Width = vg.Points(2)
	bars.CapWidth = vg.Points(8)
	pl.Add(line, points, bars)

	// Pad the y range by a multiple of the largest standard deviation.
	pad := 3 * maxStd
	if pad == 0 && lo == hi {
		pad = math.Max(math.Abs(lo)*0.1, 1)
	}
	pl.Y.Min, pl.Y.Max = lo-pad, hi+pad
	pl.X.Min, pl.X.Max = -0.5, float64(len(sums))-0.5

	width := vg.Length(math.Max(8, float64(len(sums))/30*20.48/2)) * vg.Inch
	height := 8.58 / 2 * vg.Inch
	c := vgsvg.New(width, height)
	pl.Draw(draw.New(c))

	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return nil, err
	}
	return linkLabels(buf.Bytes(), links), nil
}

// linkLabels wraps SVG text elements in anchors. links maps a label
// to the addresses of the ticks carrying it, in tick order; the n'th
// text element with that content links to the n'th address. Distinct
// revisions may share a shortened label.
func linkLabels(svg []byte, links map[string][]string) []byte {
	for label, urls := range links {
		re := regexp.MustCompile(`<text\b[^>]*>` + regexp.QuoteMeta(html.EscapeString(label)) + `</text>`)
		n := 0
		svg = re.ReplaceAllFunc(svg, func(m []byte) []byte {
			if n >= len(urls) {
				return m
			}
			href := html.EscapeString(urls[n])
			n++
			out := make([]byte, 0, len(m)+len(href)+32)
			out = append(out, `<a href="`...)
			out = append(out, href...)
			out = append(out, `" target="_blank">`...)
			out = append(out, m...)
			return append(out, `</a>`...)
		})
	}
	return svg
}

// Plot aggregates field over the history in h and writes the chart to
// dir/<field>.svg, returning the file's path. If there is nothing to
// plot it returns ErrEmptyHistory and writes no file.
func Plot(ctx context.Context, h History, field, dir string, o ChartOptions) (string, error) {
	sums, err := Aggregate(ctx, h, field)
	if err != nil {
		return "", err
	}
	svg, err := Chart(sums, o)
	if err != nil {
		return "", fmt.Errorf("plotting %s: %w", field, err)
	}
	file := filepath.Join(dir, field+".svg")
	if err := os.WriteFile(file, svg, 0o666); err != nil {
		return "", err
	}
	return file, nil
}
