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
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/weatheretl/core"
	"github.com/aaronlmathis/weatheretl/dag/tasks"
	"github.com/aaronlmathis/weatheretl/quality"
)

type finished struct {
	taskID   string
	taskType tasks.TaskType
	result   tasks.TaskResultMetadata
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []finished
}

func (o *recordingObserver) TaskFinished(dagID, taskID string, taskType tasks.TaskType, result tasks.TaskResultMetadata) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, finished{taskID: taskID, taskType: taskType, result: result})
}

func sampleRecords() []core.Record {
	return []core.Record{
		{"ts": int64(1), "temp": 20.5},
		{"ts": int64(2), "temp": nil},
	}
}

func TestExecuteLinearPipeline(t *testing.T) {
	source := &sliceSource{records: sampleRecords()}
	sink := &memorySink{}
	gate := quality.NewGate("dq", quality.MustParseRuleset("Rules = [ ColumnCount > 0 ]"), quality.WithPublishing(false))
	observer := &recordingObserver{}

	d, err := NewDAG("weather", "weather").
		AddSourceTask("source", source).
		AddTransformTask("mapping", identity(), []string{"source"}).
		AddQualityTask("dq", gate, []string{"mapping"}).
		AddSinkTask("sink", sink, []string{"dq"}).
		Build()
	require.NoError(t, err)

	result, err := NewDAGExecutor(WithObserver(observer), WithMaxWorkers(2)).Execute(context.Background(), d)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.GreaterOrEqual(t, result.Duration(), time.Duration(0))

	assert.True(t, source.closed)
	assert.True(t, sink.flushed)
	assert.True(t, sink.closed)
	assert.Nil(t, sink.aborted)
	assert.Equal(t, sampleRecords(), sink.records)

	require.Len(t, result.TaskResults, 4)
	for id, r := range result.TaskResults {
		assert.True(t, r.Success, id)
		assert.Equal(t, 1, r.AttemptCount, id)
	}
	assert.Equal(t, int64(2), result.TaskResults["source"].RecordsOut)
	assert.Equal(t, int64(2), result.TaskResults["dq"].RecordsOut)
	assert.Equal(t, int64(2), result.TaskResults["sink"].RecordsOut)

	dq, ok := tasks.QualityResult(result.Context, "dq")
	require.True(t, ok)
	assert.True(t, dq.Passed())
	assert.Equal(t, "dq", dq.ContextName)

	require.Len(t, observer.calls, 4)
	assert.Equal(t, "source", observer.calls[0].taskID)
	assert.Equal(t, tasks.TaskTypeQuality, observer.calls[2].taskType)
	assert.Equal(t, "sink", observer.calls[3].taskID)
}

func TestExecuteStopsOnFailure(t *testing.T) {
	boom := errors.New("column missing")
	sink := &memorySink{}
	failing := core.TransformFunc(func(ctx context.Context, r core.Record) (core.Record, error) {
		return nil, boom
	})

	var logs bytes.Buffer
	d, err := NewDAG("weather", "weather").
		AddSourceTask("source", &sliceSource{records: sampleRecords()}).
		AddTransformTask("mapping", failing, []string{"source"}).
		AddSinkTask("sink", sink, []string{"mapping"}).
		Build()
	require.NoError(t, err)

	executor := NewDAGExecutor(WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	result, err := executor.Execute(context.Background(), d)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "task mapping failed")

	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.True(t, result.TaskResults["source"].Success)
	assert.False(t, result.TaskResults["mapping"].Success)
	assert.ErrorIs(t, result.TaskResults["mapping"].Error, boom)
	_, ran := result.TaskResults["sink"]
	assert.False(t, ran, "sink must not run after an upstream failure")
	assert.Empty(t, sink.records)

	assert.Contains(t, logs.String(), "task failed")
}

func TestExecuteRetries(t *testing.T) {
	transient := errors.New("throttled")
	var calls atomic.Int32
	flaky := core.TransformFunc(func(ctx context.Context, r core.Record) (core.Record, error) {
		if calls.Add(1) == 1 {
			return nil, transient
		}
		return r, nil
	})

	d, err := NewDAG("d", "d").
		AddSourceTask("source", &sliceSource{records: sampleRecords()}).
		AddTransformTask("mapping", flaky, []string{"source"}, tasks.WithRetries(2, time.Millisecond)).
		Build()
	require.NoError(t, err)

	result, err := NewDAGExecutor().Execute(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TaskResults["mapping"].AttemptCount)
	assert.Equal(t, int64(2), result.TaskResults["mapping"].RecordsOut)
}

func TestExecuteRetryOnFilter(t *testing.T) {
	permanent := errors.New("bad schema")
	var calls atomic.Int32
	failing := core.TransformFunc(func(ctx context.Context, r core.Record) (core.Record, error) {
		calls.Add(1)
		return nil, permanent
	})

	d, err := NewDAG("d", "d").
		AddSourceTask("source", &sliceSource{records: sampleRecords()}).
		AddTransformTask("mapping", failing, []string{"source"}, tasks.WithRetryConfig(&tasks.RetryConfig{
			MaxRetries: 3,
			Backoff:    time.Millisecond,
			RetryOn:    []error{context.DeadlineExceeded},
		})).
		Build()
	require.NoError(t, err)

	result, err := NewDAGExecutor().Execute(context.Background(), d)
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, result.TaskResults["mapping"].AttemptCount)
}

func TestExecuteNoRetriesByDefault(t *testing.T) {
	var calls atomic.Int32
	failing := core.TransformFunc(func(ctx context.Context, r core.Record) (core.Record, error) {
		calls.Add(1)
		return nil, errors.New("nope")
	})

	d, err := NewDAG("d", "d").
		AddSourceTask("source", &sliceSource{records: sampleRecords()}).
		AddTransformTask("mapping", failing, []string{"source"}).
		Build()
	require.NoError(t, err)

	_, err = NewDAGExecutor().Execute(context.Background(), d)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecuteDefaultRetriesSkipSink(t *testing.T) {
	writeErr := errors.New("disk full")
	sink := &memorySink{writeErr: writeErr}

	var calls atomic.Int32
	flaky := core.TransformFunc(func(ctx context.Context, r core.Record) (core.Record, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("throttled")
		}
		return r, nil
	})

	d, err := NewDAG("d", "d").
		WithDefaultRetries(&tasks.RetryConfig{MaxRetries: 2, Backoff: time.Millisecond}).
		AddSourceTask("source", &sliceSource{records: sampleRecords()}).
		AddTransformTask("mapping", flaky, []string{"source"}).
		AddSinkTask("sink", sink, []string{"mapping"}).
		Build()
	require.NoError(t, err)

	result, err := NewDAGExecutor().Execute(context.Background(), d)
	require.ErrorIs(t, err, writeErr)
	assert.Equal(t, 2, result.TaskResults["mapping"].AttemptCount)
	assert.Equal(t, 1, result.TaskResults["sink"].AttemptCount)
	assert.ErrorIs(t, sink.aborted, writeErr)
}

func TestExecuteSinkFailureAborts(t *testing.T) {
	writeErr := errors.New("disk full")
	sink := &memorySink{writeErr: writeErr, failAt: 1}

	d, err := NewDAG("d", "d").
		AddSourceTask("source", &sliceSource{records: sampleRecords()}).
		AddSinkTask("sink", sink, []string{"source"}).
		Build()
	require.NoError(t, err)

	_, err = NewDAGExecutor().Execute(context.Background(), d)
	require.ErrorIs(t, err, writeErr)
	assert.ErrorIs(t, sink.aborted, writeErr)
	assert.False(t, sink.closed)
}

func TestExecuteTimeout(t *testing.T) {
	slow := core.TransformFunc(func(ctx context.Context, r core.Record) (core.Record, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	d, err := NewDAG("d", "d").
		AddSourceTask("source", &sliceSource{records: sampleRecords()}).
		AddTransformTask("mapping", slow, []string{"source"}, tasks.WithTimeout(10*time.Millisecond)).
		Build()
	require.NoError(t, err)

	_, err = NewDAGExecutor().Execute(context.Background(), d)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecuteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := NewDAG("d", "d").AddSourceTask("source", &sliceSource{records: sampleRecords()}).Build()
	require.NoError(t, err)

	result, err := NewDAGExecutor().Execute(ctx, d)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.False(t, result.Success)
}

func TestExecuteGlobalContext(t *testing.T) {
	d, err := NewDAG("d", "d").
		WithGlobalContext(map[string]interface{}{"run_id": "abc"}).
		AddSourceTask("source", &sliceSource{}).
		AddTransformTask("t", identity(), []string{"source"}).
		Build()
	require.NoError(t, err)

	result, err := NewDAGExecutor().Execute(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "abc", result.Context["run_id"])
}
