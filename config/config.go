// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the settings shared by every asmc-benchmark
// component. A Config is built once by Load and passed explicitly to
// the components that need it.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes the environment variables that override
// configuration keys. The key workload.executable, for example, is
// overridden by ASMCBENCH_WORKLOAD_EXECUTABLE.
const EnvPrefix = "ASMCBENCH"

const (
	DefaultDriver      = "sqlite3"
	DefaultDSN         = "asmc-benchmark.db"
	DefaultBusyTimeout = 30 * time.Second
	DefaultCommitURL   = "https://github.com/OxfordRSE/ASMC/commit/%s"
	DefaultLabelLength = 7
	DefaultLogLevel    = "info"
)

// Config is the complete asmc-benchmark configuration.
type Config struct {
	// BaseDir anchors the default workload paths.
	BaseDir  string         `yaml:"base_dir" mapstructure:"base_dir"`
	LogLevel string         `yaml:"log_level" mapstructure:"log_level"`
	Workload WorkloadConfig `yaml:"workload" mapstructure:"workload"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Charts   ChartsConfig   `yaml:"charts" mapstructure:"charts"`
	Publish  PublishConfig  `yaml:"publish" mapstructure:"publish"`
}

// WorkloadConfig locates the ASMC checkout, its build and its inputs.
type WorkloadConfig struct {
	SourceDir         string `yaml:"source_dir" mapstructure:"source_dir"`
	Executable        string `yaml:"executable" mapstructure:"executable"`
	DecodingQuantFile string `yaml:"decoding_quant_file" mapstructure:"decoding_quant_file"`
	HapsFileRoot      string `yaml:"haps_file_root" mapstructure:"haps_file_root"`
}

// DatabaseConfig selects the results store.
type DatabaseConfig struct {
	Driver      string        `yaml:"driver" mapstructure:"driver"`
	DSN         string        `yaml:"dsn" mapstructure:"dsn"`
	BusyTimeout time.Duration `yaml:"busy_timeout" mapstructure:"busy_timeout"`
	// CloudSQL, when its Instance is set, replaces DSN for the mysql
	// driver with a connection through the Cloud SQL proxy dialer.
	CloudSQL CloudSQLConfig `yaml:"cloudsql,omitempty" mapstructure:"cloudsql"`
}

// CloudSQLConfig names a Cloud SQL for MySQL database.
type CloudSQLConfig struct {
	// Instance is the connection name, "project:region:instance".
	Instance string `yaml:"instance,omitempty" mapstructure:"instance"`
	User     string `yaml:"user,omitempty" mapstructure:"user"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	Database string `yaml:"database,omitempty" mapstructure:"database"`
}

// ChartsConfig controls chart output.
type ChartsConfig struct {
	OutputDir   string `yaml:"output_dir" mapstructure:"output_dir"`
	CommitURL   string `yaml:"commit_url" mapstructure:"commit_url"`
	LabelLength int    `yaml:"label_length" mapstructure:"label_length"`
	CSV         bool   `yaml:"csv" mapstructure:"csv"`
	Index       bool   `yaml:"index" mapstructure:"index"`
}

// PublishConfig selects at most one destination for rendered charts.
type PublishConfig struct {
	S3  S3Config  `yaml:"s3,omitempty" mapstructure:"s3"`
	GCS GCSConfig `yaml:"gcs,omitempty" mapstructure:"gcs"`
	// Dir is a local directory, such as a web server root.
	Dir string `yaml:"dir,omitempty" mapstructure:"dir"`
}

// S3Config describes an S3 or S3-compatible bucket.
type S3Config struct {
	Bucket          string `yaml:"bucket,omitempty" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style,omitempty" mapstructure:"force_path_style"`
}

// GCSConfig describes a Google Cloud Storage bucket.
type GCSConfig struct {
	Bucket          string `yaml:"bucket,omitempty" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	CredentialsFile string `yaml:"credentials_file,omitempty" mapstructure:"credentials_file"`
	// Token is a static OAuth2 access token, used instead of
	// CredentialsFile when set.
	Token string `yaml:"token,omitempty" mapstructure:"token"`
}

// defaults lists every key with its default value. Registering every
// key lets environment variables override keys absent from the file.
var defaults = map[string]interface{}{
	"base_dir":                     ".",
	"log_level":                    DefaultLogLevel,
	"workload.source_dir":          "",
	"workload.executable":          "",
	"workload.decoding_quant_file": "",
	"workload.haps_file_root":      "",
	"database.driver":              DefaultDriver,
	"database.dsn":                 DefaultDSN,
	"database.busy_timeout":        DefaultBusyTimeout,
	"database.cloudsql.instance":   "",
	"database.cloudsql.user":       "",
	"database.cloudsql.password":   "",
	"database.cloudsql.database":   "",
	"charts.output_dir":            ".",
	"charts.commit_url":            DefaultCommitURL,
	"charts.label_length":          DefaultLabelLength,
	"charts.csv":                   false,
	"charts.index":                 false,
	"publish.s3.bucket":            "",
	"publish.s3.prefix":            "",
	"publish.s3.region":            "",
	"publish.s3.endpoint_url":      "",
	"publish.s3.access_key_id":     "",
	"publish.s3.secret_access_key": "",
	"publish.s3.force_path_style":  false,
	"publish.gcs.bucket":           "",
	"publish.gcs.prefix":           "",
	"publish.gcs.credentials_file": "",
	"publish.gcs.token":            "",
	"publish.dir":                  "",
}

// Load reads the configuration file at path, if path is not empty,
// applies environment overrides and fills in defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults derives the workload paths left unset from BaseDir,
// following the layout of an ASMC checkout next to its build directory.
func (c *Config) applyDefaults() {
	w := &c.Workload
	if w.SourceDir == "" {
		w.SourceDir = filepath.Join(c.BaseDir, "ASMC")
	}
	if w.Executable == "" {
		w.Executable = filepath.Join(c.BaseDir, "__asmc_build", "ASMC_exe")
	}
	if w.DecodingQuantFile == "" {
		w.DecodingQuantFile = filepath.Join(w.SourceDir, "FILES", "DECODING_QUANTITIES", "30-100-2000.decodingQuantities.gz")
	}
	if w.HapsFileRoot == "" {
		w.HapsFileRoot = filepath.Join(w.SourceDir, "FILES", "EXAMPLE", "exampleFile.n300.array")
	}
}

var drivers = map[string]bool{
	"sqlite3": true,
	"mysql":   true,
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if !drivers[c.Database.Driver] {
		return fmt.Errorf("database.driver: unsupported driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if c.Database.BusyTimeout <= 0 {
		return fmt.Errorf("database.busy_timeout must be positive, got %v", c.Database.BusyTimeout)
	}
	if sql := c.Database.CloudSQL; sql.Instance != "" {
		if c.Database.Driver != "mysql" {
			return fmt.Errorf("database.cloudsql requires the mysql driver, got %q", c.Database.Driver)
		}
		if sql.User == "" || sql.Database == "" {
			return errors.New("database.cloudsql: user and database are required")
		}
	}
	if u := c.Charts.CommitURL; u != "" && (strings.Count(u, "%") != 1 || !strings.Contains(u, "%s")) {
		return fmt.Errorf("charts.commit_url %q must contain exactly one %%s", u)
	}
	if c.Charts.LabelLength <= 0 {
		return fmt.Errorf("charts.label_length must be positive, got %d", c.Charts.LabelLength)
	}
	return c.Publish.validate()
}

func (p *PublishConfig) validate() error {
	n := 0
	if p.S3.Bucket != "" {
		n++
		if p.S3.Region == "" && p.S3.EndpointURL == "" {
			return errors.New("publish.s3: region or endpoint_url is required")
		}
		if (p.S3.AccessKeyID == "") != (p.S3.SecretAccessKey == "") {
			return errors.New("publish.s3: access_key_id and secret_access_key must be set together")
		}
	}
	if p.GCS.Bucket != "" {
		n++
	}
	if p.Dir != "" {
		n++
	}
	if n > 1 {
		return errors.New("publish: at most one of s3, gcs and dir may be configured")
	}
	return nil
}

// YAML renders c as a YAML document.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
