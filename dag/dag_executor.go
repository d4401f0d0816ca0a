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

// dag_executor.go - DAG execution engine with topological sort
package dag

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/aaronlmathis/weatheretl/core"
	"github.com/aaronlmathis/weatheretl/dag/tasks"
)

// Observer is notified after every task finishes, successfully or not.
type Observer interface {
	TaskFinished(dagID, taskID string, taskType tasks.TaskType, result tasks.TaskResultMetadata)
}

// DAGExecutor executes DAGs with topological sorting and parallelism
type DAGExecutor struct {
	maxWorkers int
	logger     *slog.Logger
	observers  []Observer
}

// DAGExecutorOption configures a DAGExecutor
type DAGExecutorOption func(*DAGExecutor)

// WithMaxWorkers sets the maximum number of concurrent workers
func WithMaxWorkers(workers int) DAGExecutorOption {
	return func(de *DAGExecutor) {
		if workers > 0 {
			de.maxWorkers = workers
		}
	}
}

// WithLogger sets the logger for task progress
func WithLogger(logger *slog.Logger) DAGExecutorOption {
	return func(de *DAGExecutor) {
		if logger != nil {
			de.logger = logger
		}
	}
}

// WithObserver registers an observer for task results
func WithObserver(o Observer) DAGExecutorOption {
	return func(de *DAGExecutor) {
		if o != nil {
			de.observers = append(de.observers, o)
		}
	}
}

// NewDAGExecutor creates a new DAG executor with options
func NewDAGExecutor(opts ...DAGExecutorOption) *DAGExecutor {
	de := &DAGExecutor{
		maxWorkers: runtime.NumCPU(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(de)
	}
	return de
}

// Execute runs the DAG level by level. On failure the partial result is
// returned together with the error.
func (de *DAGExecutor) Execute(ctx context.Context, dag *DAG) (*DAGResult, error) {
	sortedTasks, err := dag.topologicalSort()
	if err != nil {
		return nil, fmt.Errorf("topological sort failed: %w", err)
	}

	execCtx := &executionContext{
		dag:           dag,
		taskOutputs:   make(map[string]tasks.TaskOutput),
		taskResults:   make(map[string]tasks.TaskResultMetadata),
		globalContext: make(map[string]interface{}),
	}
	for k, v := range dag.metadata.GlobalContext {
		execCtx.globalContext[k] = v
	}

	start := time.Now()
	finish := func(err error) *DAGResult {
		execCtx.mu.RLock()
		defer execCtx.mu.RUnlock()
		results := make(map[string]tasks.TaskResultMetadata, len(execCtx.taskResults))
		for k, v := range execCtx.taskResults {
			results[k] = v
		}
		return &DAGResult{
			Success:     err == nil,
			StartTime:   start,
			EndTime:     time.Now(),
			TaskResults: results,
			Context:     execCtx.snapshotContextLocked(),
			Error:       err,
		}
	}

	for levelIdx, level := range de.groupTasksByLevel(dag, sortedTasks) {
		if err := ctx.Err(); err != nil {
			return finish(err), err
		}

		if err := de.executeLevel(ctx, execCtx, level); err != nil {
			err = fmt.Errorf("DAG execution failed: %w", err)
			return finish(err), err
		}

		de.logger.DebugContext(ctx, "completed level",
			slog.String("dag", dag.id),
			slog.Int("level", levelIdx),
			slog.Any("tasks", level),
		)
	}

	return finish(nil), nil
}

// groupTasksByLevel groups tasks by their dependency depth. Tasks within a
// level are sorted by ID.
func (de *DAGExecutor) groupTasksByLevel(dag *DAG, sortedTasks []string) [][]string {
	taskLevel := make(map[string]int, len(sortedTasks))
	maxLevel := 0

	for _, taskID := range sortedTasks {
		level := 0
		for _, dep := range dag.dependencies[taskID] {
			if depLevel, ok := taskLevel[dep]; ok && depLevel+1 > level {
				level = depLevel + 1
			}
		}
		taskLevel[taskID] = level
		maxLevel = max(maxLevel, level)
	}

	levels := make([][]string, maxLevel+1)
	for taskID, level := range taskLevel {
		levels[level] = append(levels[level], taskID)
	}
	for _, level := range levels {
		sort.Strings(level)
	}
	return levels
}

// executeLevel executes all tasks in a level concurrently. The first
// failure cancels the remaining tasks of the level.
func (de *DAGExecutor) executeLevel(ctx context.Context, execCtx *executionContext, taskIDs []string) error {
	if len(taskIDs) == 0 {
		return nil
	}

	limit := de.maxWorkers
	if mp := execCtx.dag.metadata.MaxParallelism; mp > 0 && mp < limit {
		limit = mp
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, taskID := range taskIDs {
		taskID := taskID
		g.Go(func() error {
			if err := de.executeTaskWithRetry(gctx, execCtx, taskID); err != nil {
				return fmt.Errorf("task %s failed: %w", taskID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// executeTaskWithRetry runs one task under its timeout and retry policy.
func (de *DAGExecutor) executeTaskWithRetry(ctx context.Context, execCtx *executionContext, taskID string) error {
	dag := execCtx.dag
	task := dag.tasks[taskID]
	md := task.Metadata()

	logger := de.logger.With(
		slog.String("dag", dag.id),
		slog.String("task", taskID),
		slog.String("type", string(md.TaskType)),
	)

	if !de.shouldExecuteTask(execCtx, task) {
		err := fmt.Errorf("trigger rule %s not satisfied", md.TriggerRule)
		de.record(ctx, logger, execCtx, task, tasks.TaskResultMetadata{
			StartTime: time.Now(),
			EndTime:   time.Now(),
			Error:     err,
		})
		return err
	}

	retry := md.RetryConfig
	if retry == nil && !md.TaskType.SingleAttempt() {
		retry = dag.metadata.DefaultRetries
	}
	timeout := md.Timeout
	if timeout == 0 {
		timeout = dag.metadata.DefaultTimeout
	}

	input := de.prepareTaskInput(execCtx, task)
	logger.DebugContext(ctx, "task started", slog.Int("records_in", len(input.Records)))

	var (
		output   tasks.TaskOutput
		attempts int
		start    = time.Now()
	)
	operation := func() error {
		attempts++
		taskCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			taskCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		defer cancel()

		out, err := task.Execute(taskCtx, input)
		if err != nil {
			if ctx.Err() != nil || !retry.Retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		output = out
		return nil
	}
	notify := func(err error, delay time.Duration) {
		logger.WarnContext(ctx, "task attempt failed, retrying",
			slog.Int("attempt", attempts),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(retry.BackOff(), ctx), notify); err != nil {
		de.record(ctx, logger, execCtx, task, tasks.TaskResultMetadata{
			StartTime:    start,
			EndTime:      time.Now(),
			RecordsIn:    int64(len(input.Records)),
			Error:        err,
			AttemptCount: attempts,
		})
		return err
	}

	output.Metadata.AttemptCount = attempts
	output.Metadata.Success = true

	execCtx.mu.Lock()
	execCtx.taskOutputs[taskID] = output
	for k, v := range output.Context {
		execCtx.globalContext[k] = v
	}
	execCtx.mu.Unlock()

	de.record(ctx, logger, execCtx, task, output.Metadata)
	return nil
}

// record stores a task result, logs it and notifies observers.
func (de *DAGExecutor) record(ctx context.Context, logger *slog.Logger, execCtx *executionContext, task tasks.Task, result tasks.TaskResultMetadata) {
	execCtx.mu.Lock()
	execCtx.taskResults[task.ID()] = result
	execCtx.mu.Unlock()

	if result.Success {
		logger.InfoContext(ctx, "task completed",
			slog.Int64("records_in", result.RecordsIn),
			slog.Int64("records_out", result.RecordsOut),
			slog.Duration("duration", result.Duration()),
			slog.Int("attempts", result.AttemptCount),
		)
	} else {
		logger.ErrorContext(ctx, "task failed",
			slog.Int("attempts", result.AttemptCount),
			slog.Any("error", result.Error),
		)
	}

	for _, o := range de.observers {
		o.TaskFinished(execCtx.dag.id, task.ID(), task.Metadata().TaskType, result)
	}
}

// shouldExecuteTask checks if a task should execute based on its trigger rule
func (de *DAGExecutor) shouldExecuteTask(execCtx *executionContext, task tasks.Task) bool {
	dependencies := task.Dependencies()
	if len(dependencies) == 0 {
		return true
	}

	execCtx.mu.RLock()
	defer execCtx.mu.RUnlock()

	var successCount, failureCount, completeCount int
	for _, depID := range dependencies {
		if result, ok := execCtx.taskResults[depID]; ok {
			completeCount++
			if result.Success {
				successCount++
			} else {
				failureCount++
			}
		}
	}

	switch task.Metadata().TriggerRule {
	case tasks.TriggerAllComplete:
		return completeCount == len(dependencies)
	case tasks.TriggerOneFailed:
		return failureCount > 0
	case tasks.TriggerOneSuccess:
		return successCount > 0
	case tasks.TriggerNoneFailed:
		return failureCount == 0 && completeCount == len(dependencies)
	default:
		return successCount == len(dependencies)
	}
}

// prepareTaskInput gathers the outputs of a task's dependencies.
func (de *DAGExecutor) prepareTaskInput(execCtx *executionContext, task tasks.Task) tasks.TaskInput {
	execCtx.mu.RLock()
	defer execCtx.mu.RUnlock()

	var allRecords []core.Record
	sourceMap := make(map[string][]core.Record)
	metadataMap := make(map[string]tasks.TaskResultMetadata)

	for _, depID := range task.Dependencies() {
		if output, ok := execCtx.taskOutputs[depID]; ok {
			allRecords = append(allRecords, output.Records...)
			sourceMap[depID] = output.Records
			metadataMap[depID] = output.Metadata
		}
	}

	return tasks.TaskInput{
		Records:   allRecords,
		Context:   execCtx.snapshotContextLocked(),
		SourceMap: sourceMap,
		Metadata:  metadataMap,
	}
}

// executionContext holds state during DAG execution
type executionContext struct {
	dag           *DAG
	taskOutputs   map[string]tasks.TaskOutput
	taskResults   map[string]tasks.TaskResultMetadata
	globalContext map[string]interface{}
	mu            sync.RWMutex
}

// snapshotContextLocked copies the global context. Callers hold mu.
func (ec *executionContext) snapshotContextLocked() map[string]interface{} {
	out := make(map[string]interface{}, len(ec.globalContext))
	for k, v := range ec.globalContext {
		out[k] = v
	}
	return out
}
