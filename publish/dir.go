// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Dir publishes by copying into a local directory, such as the root
// of a web server.
type Dir struct {
	Root string
	Log  logrus.FieldLogger
}

var _ Publisher = (*Dir)(nil)

// Publish copies files from dir into d.Root, creating it if needed.
// Each file is written to a temporary name and renamed into place so
// readers never see a partial chart.
func (d *Dir) Publish(ctx context.Context, dir string, files []string) error {
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		dst := filepath.Join(d.Root, name)
		if err := copyFile(filepath.Join(dir, name), dst); err != nil {
			return fmt.Errorf("publishing %s: %w", name, err)
		}
	}
	if d.Log != nil {
		d.Log.WithFields(logrus.Fields{
			"files": len(files),
			"dir":   d.Root,
		}).Info("Published charts")
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o777); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
