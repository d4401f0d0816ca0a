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

// Package dag builds and executes task graphs. Tasks run level by level in
// dependency order and pass their output records downstream.
package dag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aaronlmathis/weatheretl/dag/tasks"
)

// ID returns the DAG's unique identifier
func (d *DAG) ID() string { return d.id }

// Name returns the DAG's name
func (d *DAG) Name() string { return d.name }

// Metadata returns the DAG's configuration
func (d *DAG) Metadata() DAGMetadata { return d.metadata }

// Task returns the task with the given ID.
func (d *DAG) Task(id string) (tasks.Task, bool) {
	t, ok := d.tasks[id]
	return t, ok
}

// TaskIDs returns all task IDs in sorted order.
func (d *DAG) TaskIDs() []string {
	ids := make([]string, 0, len(d.tasks))
	for id := range d.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dependencies returns the upstream task IDs of taskID.
func (d *DAG) Dependencies(taskID string) []string {
	if deps, ok := d.dependencies[taskID]; ok {
		return deps
	}
	return []string{}
}

// Downstream returns the IDs of tasks that depend on taskID, sorted.
func (d *DAG) Downstream(taskID string) []string {
	var downstream []string
	for id, deps := range d.dependencies {
		for _, dep := range deps {
			if dep == taskID {
				downstream = append(downstream, id)
				break
			}
		}
	}
	sort.Strings(downstream)
	return downstream
}

// TasksByType returns the IDs of tasks of the given type, sorted.
func (d *DAG) TasksByType(taskType tasks.TaskType) []string {
	var ids []string
	for id, task := range d.tasks {
		if task.Metadata().TaskType == taskType {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// SetGlobalContextValue sets a value in the global context
func (d *DAG) SetGlobalContextValue(key string, value interface{}) {
	if d.metadata.GlobalContext == nil {
		d.metadata.GlobalContext = make(map[string]interface{})
	}
	d.metadata.GlobalContext[key] = value
}

// ExecutionOrder returns task IDs in topological order.
func (d *DAG) ExecutionOrder() ([]string, error) {
	return d.topologicalSort()
}

// Validate reports every structural problem found in the DAG.
func (d *DAG) Validate() []error {
	var errs []error

	for _, taskID := range d.TaskIDs() {
		for _, dep := range d.dependencies[taskID] {
			if _, ok := d.tasks[dep]; !ok {
				errs = append(errs, fmt.Errorf("task %s depends on %s: %w", taskID, dep, ErrMissingDependency))
			}
		}
	}

	if len(d.tasks) > 1 {
		for _, taskID := range d.TaskIDs() {
			if len(d.Dependencies(taskID)) == 0 && len(d.Downstream(taskID)) == 0 {
				errs = append(errs, fmt.Errorf("task %s is orphaned (no connections)", taskID))
			}
		}
	}

	if d.hasCycle() {
		errs = append(errs, ErrCycle)
	}

	for _, taskID := range d.TaskIDs() {
		md := d.tasks[taskID].Metadata()
		if md.Timeout < 0 {
			errs = append(errs, fmt.Errorf("task %s has invalid negative timeout", taskID))
		}
		if md.RetryConfig != nil && md.RetryConfig.MaxRetries < 0 {
			errs = append(errs, fmt.Errorf("task %s has invalid negative retry count", taskID))
		}
		if md.TaskType.SingleAttempt() && md.RetryConfig != nil && md.RetryConfig.MaxRetries > 0 {
			errs = append(errs, fmt.Errorf("task %s: %w", taskID, ErrNotRetryable))
		}
	}

	return errs
}

// String renders the DAG structure for debugging.
func (d *DAG) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "DAG: %s (%s)", d.name, d.id)
	if d.metadata.Description != "" {
		fmt.Fprintf(&b, " - %s", d.metadata.Description)
	}
	b.WriteString("\n")

	order, err := d.ExecutionOrder()
	if err != nil {
		order = d.TaskIDs()
	}
	for _, id := range order {
		md := d.tasks[id].Metadata()
		fmt.Fprintf(&b, "  %s [%s]", id, md.TaskType)
		if deps := d.Dependencies(id); len(deps) > 0 {
			fmt.Fprintf(&b, " <- %s", strings.Join(deps, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// LogStructure logs one line per task in execution order.
func (d *DAG) LogStructure(ctx context.Context, logger *slog.Logger) {
	order, err := d.ExecutionOrder()
	if err != nil {
		logger.ErrorContext(ctx, "invalid DAG", slog.String("dag", d.id), slog.Any("error", err))
		return
	}
	logger.DebugContext(ctx, "DAG structure",
		slog.String("dag", d.id),
		slog.String("name", d.name),
		slog.Int("tasks", len(d.tasks)),
		slog.Int("max_depth", d.maxDepth()),
	)
	for _, id := range order {
		md := d.tasks[id].Metadata()
		logger.DebugContext(ctx, "DAG task",
			slog.String("task", id),
			slog.String("type", string(md.TaskType)),
			slog.Any("depends_on", d.Dependencies(id)),
			slog.Any("triggers", d.Downstream(id)),
			slog.Duration("timeout", md.Timeout),
		)
	}
}

func (d *DAG) hasCycle() bool {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, taskID := range d.TaskIDs() {
		if !visited[taskID] && d.dfsHasCycle(taskID, visited, recStack) {
			return true
		}
	}
	return false
}

func (d *DAG) dfsHasCycle(taskID string, visited, recStack map[string]bool) bool {
	visited[taskID] = true
	recStack[taskID] = true

	for _, dep := range d.dependencies[taskID] {
		if !visited[dep] {
			if d.dfsHasCycle(dep, visited, recStack) {
				return true
			}
		} else if recStack[dep] {
			return true
		}
	}

	recStack[taskID] = false
	return false
}

func (d *DAG) maxDepth() int {
	depths := make(map[string]int)

	var depth func(taskID string) int
	depth = func(taskID string) int {
		if v, ok := depths[taskID]; ok {
			return v
		}
		deepest := 0
		for _, dep := range d.Dependencies(taskID) {
			deepest = max(deepest, depth(dep))
		}
		depths[taskID] = deepest + 1
		return depths[taskID]
	}

	deepest := 0
	for taskID := range d.tasks {
		deepest = max(deepest, depth(taskID))
	}
	return deepest
}

// topologicalSort performs Kahn's algorithm. Ties are broken by task ID so
// the order is stable.
func (d *DAG) topologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(d.tasks))
	for taskID := range d.tasks {
		inDegree[taskID] = len(d.dependencies[taskID])
	}

	var queue []string
	for _, taskID := range d.TaskIDs() {
		if inDegree[taskID] == 0 {
			queue = append(queue, taskID)
		}
	}

	var result []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, taskID := range d.Downstream(current) {
			inDegree[taskID]--
			if inDegree[taskID] == 0 {
				queue = append(queue, taskID)
			}
		}
	}

	if len(result) != len(d.tasks) {
		return nil, ErrCycle
	}
	return result, nil
}
