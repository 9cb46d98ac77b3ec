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

	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/OxfordRSE/asmc-benchmark/config"
)

// GCS publishes to a Google Cloud Storage bucket.
type GCS struct {
	cfg config.GCSConfig
	log logrus.FieldLogger
}

var _ Publisher = (*GCS)(nil)

// NewGCS returns a publisher for the bucket described by cfg.
func NewGCS(cfg config.GCSConfig, log logrus.FieldLogger) *GCS {
	return &GCS{cfg: cfg, log: log.WithField("component", "gcs-publisher")}
}

// clientOptions picks the credentials to use: a static token, a
// credentials file, or the application default credentials.
func (p *GCS) clientOptions() []option.ClientOption {
	switch {
	case p.cfg.Token != "":
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: p.cfg.Token})
		return []option.ClientOption{option.WithTokenSource(ts)}
	case p.cfg.CredentialsFile != "":
		return []option.ClientOption{option.WithCredentialsFile(p.cfg.CredentialsFile)}
	}
	return nil
}

// Publish uploads files from dir. The client lives only for the
// duration of the call.
func (p *GCS) Publish(ctx context.Context, dir string, files []string) error {
	client, err := storage.NewClient(ctx, p.clientOptions()...)
	if err != nil {
		return fmt.Errorf("creating storage client: %w", err)
	}
	defer client.Close()

	bucket := client.Bucket(p.cfg.Bucket)
	for _, name := range files {
		key := objectKey(p.cfg.Prefix, name)
		if err := putObject(ctx, bucket.Object(key), filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("uploading %s to gs://%s/%s: %w", name, p.cfg.Bucket, key, err)
		}
		p.log.WithField("object", key).Debug("Uploaded chart")
	}
	p.log.WithFields(logrus.Fields{
		"files":  len(files),
		"bucket": p.cfg.Bucket,
	}).Info("Published charts")
	return nil
}

func putObject(ctx context.Context, obj *storage.ObjectHandle, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	w := obj.NewWriter(ctx)
	w.ContentType = contentType(file)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
