// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/OxfordRSE/asmc-benchmark/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the benchmark and re-plot the history",
	Long:  `Run ASMC once, record its timings, then regenerate every chart.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
			_, err := p.Run(ctx)
			return err
		})
	},
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Run the benchmark and record its timings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
			_, err := p.Record(ctx)
			return err
		})
	},
}

var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Plot every recorded run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
			files, err := p.Plot(ctx)
			if err != nil {
				return err
			}
			log.WithField("files", files).Debug("Charts written")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd, recordCmd, plotCmd)
}

// withPipeline builds the pipeline from the loaded configuration and
// calls f with a context cancelled on SIGINT or SIGTERM.
func withPipeline(f func(ctx context.Context, p *pipeline.Pipeline) error) error {
	p, err := pipeline.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			log.WithFields(logrus.Fields{"signal": sig}).Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	return f(ctx, p)
}
