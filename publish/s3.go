// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/OxfordRSE/asmc-benchmark/config"
)

// S3 publishes to an S3 or S3-compatible bucket.
type S3 struct {
	cfg config.S3Config
	log logrus.FieldLogger
}

var _ Publisher = (*S3)(nil)

// NewS3 returns a publisher for the bucket described by cfg.
func NewS3(cfg config.S3Config, log logrus.FieldLogger) *S3 {
	return &S3{
		cfg: cfg,
		log: log.WithField("component", "s3-publisher"),
	}
}

// newClient builds a client from the SDK's default configuration
// chain (environment, shared config files, instance roles). Static
// keys in cfg take precedence over any credentials the chain finds.
func (p *S3) newClient(ctx context.Context) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if p.cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(p.cfg.Region))
	}
	if p.cfg.AccessKeyID != "" && p.cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(p.cfg.AccessKeyID, p.cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if o.Region == "" {
			o.Region = "us-east-1"
		}
		if p.cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(p.cfg.EndpointURL)
		}
		o.UsePathStyle = p.cfg.ForcePathStyle
	}), nil
}

// Publish uploads files from dir with PutObject.
func (p *S3) Publish(ctx context.Context, dir string, files []string) error {
	client, err := p.newClient(ctx)
	if err != nil {
		return err
	}
	for _, name := range files {
		key := objectKey(p.cfg.Prefix, name)
		if err := put(ctx, client, p.cfg.Bucket, filepath.Join(dir, name), key); err != nil {
			return fmt.Errorf("uploading %s to s3://%s/%s: %w", name, p.cfg.Bucket, key, err)
		}
		p.log.WithField("key", key).Debug("Uploaded chart")
	}
	p.log.WithFields(logrus.Fields{
		"files":  len(files),
		"bucket": p.cfg.Bucket,
	}).Info("Published charts")
	return nil
}

func put(ctx context.Context, client *s3.Client, bucket, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(file)),
	})
	return err
}
