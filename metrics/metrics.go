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

// Package metrics records job, task and data quality metrics in a Prometheus
// registry and pushes them to a Pushgateway at the end of a run.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/aaronlmathis/weatheretl/dag/tasks"
	"github.com/aaronlmathis/weatheretl/quality"
)

// Recorder owns a registry and the job's collectors.
type Recorder struct {
	reg *prometheus.Registry

	TaskRuns     *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
	TaskRecords  *prometheus.CounterVec
	TaskAttempts *prometheus.CounterVec
	DQRules      *prometheus.CounterVec
	JobRuns      *prometheus.CounterVec
	JobDuration  prometheus.Gauge
	LastSuccess  prometheus.Gauge
	BytesWritten prometheus.Counter
}

// New creates a recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		reg: reg,
		TaskRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weatheretl_task_runs_total",
				Help: "Task executions by task, type and status",
			},
			[]string{"task", "type", "status"},
		),
		TaskDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "weatheretl_task_duration_seconds",
				Help:    "Task duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"task", "type"},
		),
		TaskRecords: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weatheretl_task_records_total",
				Help: "Records consumed and produced per task",
			},
			[]string{"task", "direction"},
		),
		TaskAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weatheretl_task_attempts_total",
				Help: "Task attempts including retries",
			},
			[]string{"task"},
		),
		DQRules: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weatheretl_dq_rule_outcomes_total",
				Help: "Data quality rule outcomes by evaluation context",
			},
			[]string{"dq_context", "outcome"},
		),
		JobRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weatheretl_job_runs_total",
				Help: "Job runs by status",
			},
			[]string{"job_name", "status"},
		),
		JobDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "weatheretl_job_duration_seconds",
			Help: "Duration of the last job run",
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "weatheretl_job_last_success_timestamp_seconds",
			Help: "Completion time of the last committed run",
		}),
		BytesWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "weatheretl_sink_bytes_total",
			Help: "Bytes written to the output location",
		}),
	}
}

// Registry returns the recorder's registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// TaskFinished records one task execution.
func (r *Recorder) TaskFinished(dagID, taskID string, taskType tasks.TaskType, result tasks.TaskResultMetadata) {
	r.TaskRuns.WithLabelValues(taskID, string(taskType), status(result.Success)).Inc()
	r.TaskDuration.WithLabelValues(taskID, string(taskType)).Observe(result.Duration().Seconds())
	r.TaskRecords.WithLabelValues(taskID, "in").Add(float64(result.RecordsIn))
	r.TaskRecords.WithLabelValues(taskID, "out").Add(float64(result.RecordsOut))
	r.TaskAttempts.WithLabelValues(taskID).Add(float64(result.AttemptCount))
}

// QualityEvaluated records the outcome of every rule in result.
func (r *Recorder) QualityEvaluated(result *quality.Result) {
	for _, o := range result.Outcomes {
		r.DQRules.WithLabelValues(result.ContextName, string(o.Outcome)).Inc()
	}
}

// JobFinished records the end of a run. finishedAt is used as the last
// success timestamp when err is nil.
func (r *Recorder) JobFinished(job string, err error, d time.Duration, bytes int64, finishedAt time.Time) {
	r.JobRuns.WithLabelValues(job, status(err == nil)).Inc()
	r.JobDuration.Set(d.Seconds())
	if err == nil {
		r.LastSuccess.Set(float64(finishedAt.Unix()))
		r.BytesWritten.Add(float64(bytes))
	}
}

// Push sends the registry to a Pushgateway, replacing the job's group.
func (r *Recorder) Push(ctx context.Context, gatewayURL, job string) error {
	if gatewayURL == "" {
		return fmt.Errorf("metrics: gateway URL is required")
	}
	if err := push.New(gatewayURL, job).Gatherer(r.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("metrics: push: %w", err)
	}
	return nil
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
