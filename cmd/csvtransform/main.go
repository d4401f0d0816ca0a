//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoETL.
//
// GoETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoETL. If not, see https://www.gnu.org/licenses/.

// Command csvtransform runs the weather CSV job: it reads the weather table
// from the catalog, maps every column, evaluates data quality and writes the
// records as CSV.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/aaronlmathis/weatheretl/awsconf"
	"github.com/aaronlmathis/weatheretl/catalog"
	"github.com/aaronlmathis/weatheretl/job"
	"github.com/aaronlmathis/weatheretl/metrics"
	"github.com/aaronlmathis/weatheretl/quality"
)

// CLI is the command line of csvtransform. Every flag can also be set from
// the environment or a .env file in the working directory.
type CLI struct {
	CSVTransformation string `name:"csvTransformation" required:"" env:"WEATHERETL_CSV_TRANSFORMATION" help:"Job name for this run."`

	JobFile   string        `name:"job-file" type:"existingfile" env:"WEATHERETL_JOB_FILE" help:"YAML job definition. Defaults to the built-in weather job."`
	Catalog   string        `default:"glue" env:"WEATHERETL_CATALOG" help:"Catalog to resolve tables with: 'glue' or the path of a YAML catalog file."`
	CatalogID string        `name:"glue-catalog-id" env:"WEATHERETL_GLUE_CATALOG_ID" help:"Glue catalog ID (account) to query."`
	Output    string        `env:"WEATHERETL_OUTPUT" help:"Override the sink location (s3://bucket/prefix or a local directory)."`
	Timeout   time.Duration `env:"WEATHERETL_TIMEOUT" help:"Abort the run after this long. Zero means no limit."`

	DQPublish          []string `name:"dq-publish" default:"log" sep:"," env:"WEATHERETL_DQ_PUBLISH" help:"Data quality result publishers: log, pushgateway+http://host:port, postgres://..., sqlite://path, mongodb://..."`
	MetricsPushgateway string   `name:"metrics-pushgateway" env:"WEATHERETL_METRICS_PUSHGATEWAY" help:"Pushgateway URL for job metrics."`

	AWSRegion   string `name:"aws-region" env:"WEATHERETL_AWS_REGION,AWS_REGION" help:"AWS region."`
	AWSProfile  string `name:"aws-profile" env:"WEATHERETL_AWS_PROFILE,AWS_PROFILE" help:"AWS shared config profile."`
	S3Endpoint  string `name:"s3-endpoint" env:"WEATHERETL_S3_ENDPOINT" help:"Custom S3 endpoint for S3 compatible stores."`
	S3PathStyle bool   `name:"s3-path-style" env:"WEATHERETL_S3_PATH_STYLE" help:"Use path-style S3 addressing."`

	LogLevel  string `name:"log-level" default:"info" enum:"debug,info,warn,error" env:"WEATHERETL_LOG_LEVEL" help:"Log level."`
	LogFormat string `name:"log-format" default:"text" enum:"text,json" env:"WEATHERETL_LOG_FORMAT" help:"Log format."`
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(2)
	}

	var cli CLI
	kong.Parse(&cli,
		kong.Name("csvtransform"),
		kong.Description("Read the weather table from the catalog, map it, check it and write it as CSV."),
		kong.UsageOnError(),
	)

	logger := newLogger(os.Stderr, cli.LogLevel, cli.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cli, logger); err != nil {
		logger.Error("csvtransform failed", slog.Any("error", err))
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cli CLI, logger *slog.Logger) error {
	if cli.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cli.Timeout)
		defer cancel()
	}

	def := job.WeatherCSV()
	if cli.JobFile != "" {
		loaded, err := job.LoadDefinition(cli.JobFile)
		if err != nil {
			return err
		}
		def = loaded
	}

	args := cli.args(def.NameArg)
	name, err := def.JobName(args)
	if err != nil {
		return err
	}
	r := job.Init(name, args)

	awsOpts := cli.awsOptions()
	cat, err := openCatalog(ctx, cli, awsOpts)
	if err != nil {
		return err
	}

	publisher, err := openPublishers(ctx, cli.DQPublish, def.Quality, logger, r.JobName)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close()
	}

	recorder := metrics.New()
	opts := []job.RunnerOption{
		job.WithLogger(logger),
		job.WithRecorder(recorder),
		job.WithAWSOptions(awsOpts),
		job.WithOutput(cli.Output),
	}
	if publisher != nil {
		opts = append(opts, job.WithPublisher(publisher))
	}

	runner, err := job.NewRunner(def, r, cat, opts...)
	if err != nil {
		return err
	}
	summary, runErr := runner.Run(ctx)

	if cli.MetricsPushgateway != "" {
		// Push with a fresh context so failed and cancelled runs are still reported.
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := recorder.Push(pushCtx, cli.MetricsPushgateway, r.JobName); err != nil {
			logger.Warn("metrics push failed", slog.Any("error", err))
		}
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(os.Stdout, "%s %s: %d records written to %s (xxh3 %s)\n",
		summary.JobName, summary.RunID, summary.RecordsWritten, summary.OutputURI, summary.Digest)
	return nil
}

// args are the resolved job arguments, keyed the way the job reads them.
func (c CLI) args(nameArg string) map[string]string {
	args := map[string]string{
		nameArg:   c.CSVTransformation,
		"catalog": c.Catalog,
	}
	if c.Output != "" {
		args["output"] = c.Output
	}
	if c.JobFile != "" {
		args["job_file"] = c.JobFile
	}
	return args
}

func (c CLI) awsOptions() awsconf.Options {
	return awsconf.Options{
		Region:         c.AWSRegion,
		Profile:        c.AWSProfile,
		EndpointURL:    c.S3Endpoint,
		ForcePathStyle: c.S3PathStyle,
	}
}

func openCatalog(ctx context.Context, cli CLI, awsOpts awsconf.Options) (catalog.Catalog, error) {
	if cli.Catalog == "" || cli.Catalog == "glue" {
		var opts []catalog.GlueOption
		if cli.CatalogID != "" {
			opts = append(opts, catalog.WithGlueCatalogID(cli.CatalogID))
		}
		return catalog.NewGlueCatalogFromConfig(ctx, awsOpts, opts...)
	}
	return catalog.LoadFileCatalog(cli.Catalog)
}

// openPublishers returns nil when publishing is disabled or no publisher is
// usable. Stores that cannot be reached only fail the run under SYNC.
func openPublishers(ctx context.Context, uris []string, stage job.QualityStage, logger *slog.Logger, jobName string) (quality.Publisher, error) {
	if !stage.EnablePublishing {
		return nil, nil
	}
	strategy, err := quality.ParseStrategy(stage.Strategy)
	if err != nil {
		return nil, err
	}
	var cleaned []string
	for _, uri := range uris {
		if uri = strings.TrimSpace(uri); uri != "" && uri != "none" {
			cleaned = append(cleaned, uri)
		}
	}
	if len(cleaned) == 0 {
		return nil, nil
	}
	return quality.NewPublishers(ctx, cleaned, quality.PublisherOptions{
		Logger:   logger,
		JobName:  jobName,
		Strategy: strategy,
	})
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
