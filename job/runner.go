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

package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aaronlmathis/weatheretl/awsconf"
	"github.com/aaronlmathis/weatheretl/catalog"
	"github.com/aaronlmathis/weatheretl/dag"
	"github.com/aaronlmathis/weatheretl/dag/tasks"
	"github.com/aaronlmathis/weatheretl/location"
	"github.com/aaronlmathis/weatheretl/metrics"
	"github.com/aaronlmathis/weatheretl/quality"
	"github.com/aaronlmathis/weatheretl/readers"
	"github.com/aaronlmathis/weatheretl/transform"
)

// Summary describes a finished run.
type Summary struct {
	JobName        string
	RunID          string
	RecordsRead    int64
	RecordsWritten int64
	Quality        *quality.Result
	OutputURI      string
	Digest         string
	BytesWritten   int64
	StartedAt      time.Time
	FinishedAt     time.Time
	Committed      bool
	Tasks          map[string]tasks.TaskResultMetadata
}

// Duration is the wall time of the run.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger passed to every stage.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithPublisher sets where data quality results are published.
func WithPublisher(p quality.Publisher) RunnerOption {
	return func(r *Runner) { r.publisher = p }
}

// WithRecorder records task, quality and job metrics.
func WithRecorder(rec *metrics.Recorder) RunnerOption {
	return func(r *Runner) { r.recorder = rec }
}

// WithAWSOptions sets the AWS configuration for s3:// sources and sinks.
func WithAWSOptions(opts awsconf.Options) RunnerOption {
	return func(r *Runner) { r.aws = opts }
}

// WithS3Client reads s3:// tables through an existing client.
func WithS3Client(client readers.S3API) RunnerOption {
	return func(r *Runner) { r.s3Client = client }
}

// WithUploader writes s3:// sinks through an existing uploader.
func WithUploader(u location.Uploader) RunnerOption {
	return func(r *Runner) { r.uploader = u }
}

// WithOutput overrides the sink path of the definition.
func WithOutput(uri string) RunnerOption {
	return func(r *Runner) { r.output = uri }
}

// WithClock sets the clock used to name output objects.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithMaxWorkers limits concurrently running tasks.
func WithMaxWorkers(n int) RunnerOption {
	return func(r *Runner) { r.maxWorkers = n }
}

// Runner executes a job definition for one run.
type Runner struct {
	def        *Definition
	run        *Run
	catalog    catalog.Catalog
	logger     *slog.Logger
	publisher  quality.Publisher
	recorder   *metrics.Recorder
	aws        awsconf.Options
	s3Client   readers.S3API
	uploader   location.Uploader
	output     string
	now        func() time.Time
	maxWorkers int
}

// NewRunner creates a runner. The definition is validated here.
func NewRunner(def *Definition, run *Run, cat catalog.Catalog, opts ...RunnerOption) (*Runner, error) {
	if def == nil || run == nil || cat == nil {
		return nil, errors.New("job runner: definition, run and catalog are required")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		def:        def,
		run:        run,
		catalog:    cat,
		logger:     slog.Default(),
		now:        time.Now,
		maxWorkers: 1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run reads, maps, checks and writes the job's records, then commits the
// run. The run is committed only when the sink task succeeded. The summary
// is returned on failure too, as far as the run got.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	def := r.def
	logger := r.logger.With(
		slog.String("job", r.run.JobName),
		slog.String("run_id", r.run.RunID),
	)
	summary := &Summary{
		JobName:   r.run.JobName,
		RunID:     r.run.RunID,
		StartedAt: r.now().UTC(),
	}

	sink, d, err := r.prepare(ctx, logger)
	if err != nil {
		return r.finish(ctx, logger, summary, nil, err)
	}
	summary.OutputURI = sink.URI()

	executor := dag.NewDAGExecutor(r.executorOptions(logger)...)
	result, err := executor.Execute(ctx, d)

	if result != nil {
		summary.Tasks = result.TaskResults
		summary.RecordsRead = result.TaskResults[def.Source.TransformationCtx].RecordsOut
		summary.RecordsWritten = result.TaskResults[def.Sink.TransformationCtx].RecordsOut
		if q, ok := tasks.QualityResult(result.Context, def.Quality.TransformationCtx); ok {
			summary.Quality = q
		}
	}
	if result == nil || !result.TaskResults[def.Sink.TransformationCtx].Success {
		if err == nil {
			err = errors.New("sink task did not complete")
		}
		sink.Abort(err)
	}
	return r.finish(ctx, logger, summary, sink, err)
}

// prepare opens the source and sink and builds the task graph.
func (r *Runner) prepare(ctx context.Context, logger *slog.Logger) (*location.Sink, *dag.DAG, error) {
	def := r.def

	mapper, err := transform.NewMapper(def.Mapping.Mappings)
	if err != nil {
		return nil, nil, err
	}
	ruleset, err := quality.ParseRuleset(def.Quality.Ruleset)
	if err != nil {
		return nil, nil, err
	}
	format, err := def.Sink.format()
	if err != nil {
		return nil, nil, err
	}
	gate, err := r.gate(logger, ruleset, mapper.OutputSchema().Names())
	if err != nil {
		return nil, nil, err
	}

	srcOpts := []readers.ReaderOptionCatalog{readers.WithCatalogAWSOptions(r.aws)}
	if r.s3Client != nil {
		srcOpts = append(srcOpts, readers.WithCatalogS3Client(r.s3Client))
	}
	source, err := readers.NewCatalogSource(ctx, r.catalog, def.Source.Database, def.Source.Table, srcOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", def.Source.TransformationCtx, err)
	}

	output := def.Sink.Path
	if r.output != "" {
		output = r.output
	}
	locOpts := []location.Option{location.WithAWSOptions(r.aws)}
	if r.uploader != nil {
		locOpts = append(locOpts, location.WithUploader(r.uploader))
	}
	loc, err := location.Parse(output, locOpts...)
	if err != nil {
		source.Close()
		return nil, nil, fmt.Errorf("%s: %w", def.Sink.TransformationCtx, err)
	}
	sink, err := loc.NewSink(ctx, format, mapper.OutputSchema(), location.RunName(r.now()))
	if err != nil {
		source.Close()
		return nil, nil, fmt.Errorf("%s: %w", def.Sink.TransformationCtx, err)
	}

	logger.InfoContext(ctx, "job prepared",
		slog.String("source", source.Table.Location),
		slog.String("output", sink.URI()),
		slog.String("format", string(format)),
		slog.Int("columns", len(mapper.OutputSchema())),
	)

	d, err := dag.NewDAG(def.Name, r.run.JobName).
		WithDescription(fmt.Sprintf("%s.%s to %s", def.Source.Database, def.Source.Table, output)).
		WithGlobalContext(map[string]interface{}{
			"job_name": r.run.JobName,
			"run_id":   r.run.RunID,
		}).
		AddSourceTask(def.Source.TransformationCtx, source,
			tasks.WithDescription("read catalog table "+def.Source.Database+"."+def.Source.Table)).
		AddTransformTask(def.Mapping.TransformationCtx, mapper,
			[]string{def.Source.TransformationCtx},
			tasks.WithDescription("apply mapping")).
		AddQualityTask(def.Quality.TransformationCtx, gate,
			[]string{def.Mapping.TransformationCtx},
			tasks.WithDescription("evaluate data quality")).
		AddSinkTask(def.Sink.TransformationCtx, sink,
			[]string{def.Quality.TransformationCtx},
			tasks.WithDescription("write "+string(format))).
		Build()
	if err != nil {
		source.Close()
		sink.Abort(err)
		return nil, nil, err
	}
	d.LogStructure(ctx, logger)
	return sink, d, nil
}

func (r *Runner) gate(logger *slog.Logger, ruleset *quality.Ruleset, columns []string) (*quality.Gate, error) {
	q := r.def.Quality

	strategy := quality.StrategyBestEffort
	if q.Strategy != "" {
		s, err := quality.ParseStrategy(q.Strategy)
		if err != nil {
			return nil, err
		}
		strategy = s
	}
	scope := quality.ObservationsAll
	if q.ObservationScope != "" {
		s, err := quality.ParseObservationScope(q.ObservationScope)
		if err != nil {
			return nil, err
		}
		scope = s
	}

	opts := []quality.GateOption{
		quality.WithPublishing(q.EnablePublishing),
		quality.WithStrategy(strategy),
		quality.WithObservations(scope),
		quality.WithStopJobOnFailure(q.StopJobOnFailure),
		quality.WithRun(r.run.JobName, r.run.RunID),
		quality.WithColumns(columns...),
		quality.WithLogger(logger.With(slog.String("transformation_ctx", q.TransformationCtx))),
	}
	if r.publisher != nil {
		opts = append(opts, quality.WithPublisher(r.publisher))
	}
	return quality.NewGate(q.EvaluationContext, ruleset, opts...), nil
}

func (r *Runner) executorOptions(logger *slog.Logger) []dag.DAGExecutorOption {
	opts := []dag.DAGExecutorOption{
		dag.WithLogger(logger),
		dag.WithMaxWorkers(r.maxWorkers),
	}
	if r.recorder != nil {
		opts = append(opts, dag.WithObserver(r.recorder))
	}
	return opts
}

// finish commits a successful run and records the outcome.
func (r *Runner) finish(ctx context.Context, logger *slog.Logger, summary *Summary, sink *location.Sink, err error) (*Summary, error) {
	if err == nil {
		err = r.run.Commit()
	}
	summary.FinishedAt = r.now().UTC()
	summary.Committed = r.run.Committed()
	if sink != nil && err == nil {
		summary.Digest = sink.Digest()
		summary.BytesWritten = sink.BytesWritten()
	}

	if r.recorder != nil {
		if summary.Quality != nil {
			r.recorder.QualityEvaluated(summary.Quality)
		}
		r.recorder.JobFinished(summary.JobName, err, summary.Duration(), summary.BytesWritten, summary.FinishedAt)
	}

	if err != nil {
		logger.ErrorContext(ctx, "job failed",
			slog.Int64("records_read", summary.RecordsRead),
			slog.Any("error", err),
		)
		return summary, fmt.Errorf("job %s: %w", summary.JobName, err)
	}

	attrs := []any{
		slog.Int64("records_read", summary.RecordsRead),
		slog.Int64("records_written", summary.RecordsWritten),
		slog.String("output", summary.OutputURI),
		slog.String("digest", summary.Digest),
		slog.Int64("bytes", summary.BytesWritten),
		slog.Duration("duration", summary.Duration()),
	}
	if summary.Quality != nil {
		attrs = append(attrs,
			slog.Bool("dq_passed", summary.Quality.Passed()),
			slog.Float64("dq_score", summary.Quality.Score()),
		)
	}
	logger.InfoContext(ctx, "job committed", attrs...)
	return summary, nil
}
