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

package dag

import (
	"errors"
	"time"

	"github.com/aaronlmathis/weatheretl/dag/tasks"
)

var (
	// ErrCycle is returned when the task graph contains a cycle.
	ErrCycle = errors.New("DAG contains cycles")
	// ErrMissingDependency is returned when a task depends on an unknown task.
	ErrMissingDependency = errors.New("missing dependency")
	// ErrDuplicateTask is returned when two tasks share an ID.
	ErrDuplicateTask = errors.New("duplicate task")
	// ErrNotRetryable is returned when a source or sink task is given retries.
	ErrNotRetryable = errors.New("task type does not support retries")
)

// DAG represents a directed acyclic graph of tasks
type DAG struct {
	id           string
	name         string
	tasks        map[string]tasks.Task
	dependencies map[string][]string
	metadata     DAGMetadata
}

// DAGMetadata contains DAG-level configuration
type DAGMetadata struct {
	Description    string
	MaxParallelism int
	DefaultTimeout time.Duration
	DefaultRetries *tasks.RetryConfig
	GlobalContext  map[string]interface{}
}

// DAGResult contains the results of DAG execution
type DAGResult struct {
	Success     bool
	StartTime   time.Time
	EndTime     time.Time
	TaskResults map[string]tasks.TaskResultMetadata
	Context     map[string]interface{}
	Error       error
}

// Duration is the wall time of the whole run.
func (r *DAGResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}
