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

// dag_builder.go - Fluent API for DAG construction
package dag

import (
	"fmt"
	"time"

	"github.com/aaronlmathis/weatheretl/core"
	"github.com/aaronlmathis/weatheretl/dag/tasks"
)

// DAGBuilder provides a fluent API for constructing DAGs. The first error
// encountered is reported by Build.
type DAGBuilder struct {
	dag *DAG
	err error
}

// NewDAG creates a new DAG builder
func NewDAG(id, name string) *DAGBuilder {
	return &DAGBuilder{
		dag: &DAG{
			id:           id,
			name:         name,
			tasks:        make(map[string]tasks.Task),
			dependencies: make(map[string][]string),
			metadata: DAGMetadata{
				MaxParallelism: 4,
				DefaultTimeout: 30 * time.Minute,
			},
		},
	}
}

// AddTask adds any task to the DAG.
func (db *DAGBuilder) AddTask(task tasks.Task) *DAGBuilder {
	if db.err != nil {
		return db
	}
	id := task.ID()
	if _, exists := db.dag.tasks[id]; exists {
		db.err = fmt.Errorf("task %s: %w", id, ErrDuplicateTask)
		return db
	}
	if md := task.Metadata(); md.TaskType.SingleAttempt() && md.RetryConfig != nil && md.RetryConfig.MaxRetries > 0 {
		db.err = fmt.Errorf("task %s: %w", id, ErrNotRetryable)
		return db
	}
	db.dag.tasks[id] = task
	if deps := uniqueDependencies(task.Dependencies()); len(deps) > 0 {
		db.dag.dependencies[id] = deps
	}
	return db
}

// AddSourceTask adds a data source task to the DAG
func (db *DAGBuilder) AddSourceTask(id string, source core.DataSource, opts ...tasks.TaskOption) *DAGBuilder {
	return db.AddTask(tasks.NewSourceTask(id, source, opts...))
}

// AddTransformTask adds a transformation task to the DAG
func (db *DAGBuilder) AddTransformTask(id string, transformer core.Transformer, dependencies []string, opts ...tasks.TaskOption) *DAGBuilder {
	return db.AddTask(tasks.NewTransformTask(id, transformer, dependencies, opts...))
}

// AddQualityTask adds a data quality evaluation task to the DAG
func (db *DAGBuilder) AddQualityTask(id string, checker tasks.QualityChecker, dependencies []string, opts ...tasks.TaskOption) *DAGBuilder {
	return db.AddTask(tasks.NewQualityTask(id, checker, dependencies, opts...))
}

// AddSinkTask adds a data sink task to the DAG
func (db *DAGBuilder) AddSinkTask(id string, sink core.DataSink, dependencies []string, opts ...tasks.TaskOption) *DAGBuilder {
	return db.AddTask(tasks.NewSinkTask(id, sink, dependencies, opts...))
}

// WithDescription sets the DAG description
func (db *DAGBuilder) WithDescription(description string) *DAGBuilder {
	db.dag.metadata.Description = description
	return db
}

// WithMaxParallelism sets the maximum number of concurrent tasks per level
func (db *DAGBuilder) WithMaxParallelism(n int) *DAGBuilder {
	db.dag.metadata.MaxParallelism = n
	return db
}

// WithDefaultTimeout sets the timeout for tasks that do not set their own
func (db *DAGBuilder) WithDefaultTimeout(timeout time.Duration) *DAGBuilder {
	db.dag.metadata.DefaultTimeout = timeout
	return db
}

// WithDefaultRetries sets the retry policy for tasks that do not set their own
func (db *DAGBuilder) WithDefaultRetries(config *tasks.RetryConfig) *DAGBuilder {
	db.dag.metadata.DefaultRetries = config
	return db
}

// WithGlobalContext sets global context available to all tasks
func (db *DAGBuilder) WithGlobalContext(ctx map[string]interface{}) *DAGBuilder {
	db.dag.metadata.GlobalContext = ctx
	return db
}

// validateDAG checks for missing dependencies and cycles
func (db *DAGBuilder) validateDAG() error {
	for _, taskID := range db.dag.TaskIDs() {
		for _, dep := range db.dag.dependencies[taskID] {
			if _, exists := db.dag.tasks[dep]; !exists {
				return fmt.Errorf("task %s depends on %s: %w", taskID, dep, ErrMissingDependency)
			}
		}
	}
	if db.dag.hasCycle() {
		return ErrCycle
	}
	return nil
}

// Build validates and returns the constructed DAG
func (db *DAGBuilder) Build() (*DAG, error) {
	if db.err != nil {
		return nil, db.err
	}
	if err := db.validateDAG(); err != nil {
		return nil, err
	}
	return db.dag, nil
}

func uniqueDependencies(deps []string) []string {
	seen := make(map[string]bool, len(deps))
	out := make([]string, 0, len(deps))
	for _, d := range deps {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}
