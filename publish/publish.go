// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package publish copies rendered charts to where they are served from.
package publish

import (
	"context"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/OxfordRSE/asmc-benchmark/config"
)

// A Publisher uploads files to a chart destination.
type Publisher interface {
	// Publish uploads each of files, given relative to dir, keeping
	// its relative name at the destination.
	Publish(ctx context.Context, dir string, files []string) error
}

// New returns the Publisher configured by cfg, or nil if cfg names no
// destination. cfg is assumed to be valid.
func New(cfg config.PublishConfig, log logrus.FieldLogger) Publisher {
	switch {
	case cfg.S3.Bucket != "":
		return NewS3(cfg.S3, log)
	case cfg.GCS.Bucket != "":
		return NewGCS(cfg.GCS, log)
	case cfg.Dir != "":
		return &Dir{Root: cfg.Dir, Log: log}
	}
	return nil
}

// objectKey joins prefix and the slash-separated form of name.
func objectKey(prefix, name string) string {
	name = filepath.ToSlash(name)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// contentType returns a MIME type based on the file extension.
func contentType(name string) string {
	ext := filepath.Ext(name)
	if ext == ".svg" {
		// Not every system MIME table knows SVG.
		return "image/svg+xml"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
