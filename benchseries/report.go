// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package benchseries

import (
	"io"
	"time"

	"github.com/google/safehtml/template"
)

// An IndexEntry is one chart listed on the index page.
type IndexEntry struct {
	Field     string
	AxisLabel string
	File      string // chart file name, relative to the index page
	Runs      int    // number of revisions plotted
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>asmc-benchmark</title>
</head>
<body style="font-family: monospace">
<h1>asmc-benchmark</h1>
<p>Generated {{.Date}}</p>
{{range .Charts}}
<figure>
<figcaption>{{.AxisLabel}} ({{.Runs}} revisions)</figcaption>
<a href="{{.File}}"><img src="{{.File}}" alt="{{.AxisLabel}}"></a>
</figure>
{{end}}
</body>
</html>
`))

// WriteIndex writes an HTML page embedding the given charts.
func WriteIndex(w io.Writer, date time.Time, charts []IndexEntry) error {
	return indexTemplate.Execute(w, struct {
		Date   string
		Charts []IndexEntry
	}{date.Format("02-Jan-2006 15:04"), charts})
}
