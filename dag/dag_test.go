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
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/weatheretl/core"
	"github.com/aaronlmathis/weatheretl/dag/tasks"
)

type sliceSource struct {
	records []core.Record
	pos     int
	closed  bool
}

func (s *sliceSource) Read(ctx context.Context) (core.Record, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

type memorySink struct {
	mu       sync.Mutex
	records  []core.Record
	failAt   int
	closed   bool
	aborted  error
	flushed  bool
	writeErr error
}

func (m *memorySink) Write(ctx context.Context, r core.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil && len(m.records) == m.failAt {
		return m.writeErr
	}
	m.records = append(m.records, r)
	return nil
}

func (m *memorySink) Flush() error {
	m.flushed = true
	return nil
}

func (m *memorySink) Close() error {
	m.closed = true
	return nil
}

func (m *memorySink) Abort(cause error) error {
	m.aborted = cause
	return nil
}

func identity() core.TransformFunc {
	return func(ctx context.Context, r core.Record) (core.Record, error) {
		return r.Clone(), nil
	}
}

func TestBuildLinearDAG(t *testing.T) {
	d, err := NewDAG("weather", "Weather CSV").
		WithDescription("catalog to s3").
		AddSourceTask("source", &sliceSource{}).
		AddTransformTask("mapping", identity(), []string{"source"}).
		AddSinkTask("sink", &memorySink{}, []string{"mapping"}).
		Build()
	require.NoError(t, err)

	order, err := d.ExecutionOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"source", "mapping", "sink"}, order)

	assert.Equal(t, "weather", d.ID())
	assert.Equal(t, "Weather CSV", d.Name())
	assert.Equal(t, []string{"mapping", "sink", "source"}, d.TaskIDs())
	assert.Equal(t, []string{"mapping"}, d.Downstream("source"))
	assert.Equal(t, []string{"source"}, d.Dependencies("mapping"))
	assert.Empty(t, d.Dependencies("source"))
	assert.Equal(t, []string{"sink"}, d.TasksByType(tasks.TaskTypeSink))
	assert.Empty(t, d.Validate())

	s := d.String()
	assert.True(t, strings.HasPrefix(s, "DAG: Weather CSV (weather) - catalog to s3\n"))
	assert.Contains(t, s, "  mapping [transform] <- source\n")
}

func TestBuildErrors(t *testing.T) {
	t.Run("missing dependency", func(t *testing.T) {
		_, err := NewDAG("d", "d").
			AddTransformTask("mapping", identity(), []string{"source"}).
			Build()
		assert.ErrorIs(t, err, ErrMissingDependency)
	})

	t.Run("cycle", func(t *testing.T) {
		_, err := NewDAG("d", "d").
			AddTransformTask("a", identity(), []string{"b"}).
			AddTransformTask("b", identity(), []string{"a"}).
			Build()
		assert.ErrorIs(t, err, ErrCycle)
	})

	t.Run("retries on source", func(t *testing.T) {
		_, err := NewDAG("d", "d").
			AddSourceTask("source", &sliceSource{}, tasks.WithRetries(2, time.Millisecond)).
			Build()
		assert.ErrorIs(t, err, ErrNotRetryable)
	})

	t.Run("retries on sink", func(t *testing.T) {
		_, err := NewDAG("d", "d").
			AddSourceTask("source", &sliceSource{}).
			AddSinkTask("sink", &memorySink{}, []string{"source"}, tasks.WithRetries(1, time.Millisecond)).
			Build()
		assert.ErrorIs(t, err, ErrNotRetryable)
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := NewDAG("d", "d").
			AddSourceTask("source", &sliceSource{}).
			AddSourceTask("source", &sliceSource{}).
			Build()
		assert.ErrorIs(t, err, ErrDuplicateTask)
	})
}

func TestValidateReportsOrphans(t *testing.T) {
	d, err := NewDAG("d", "d").
		AddSourceTask("a", &sliceSource{}).
		AddSourceTask("b", &sliceSource{}, tasks.WithTimeout(-1)).
		Build()
	require.NoError(t, err)

	errs := d.Validate()
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0].Error(), "task a is orphaned")
	assert.Contains(t, errs[1].Error(), "task b is orphaned")
	assert.Contains(t, errs[2].Error(), "negative timeout")
}

func TestExecutionOrderIsStable(t *testing.T) {
	d, err := NewDAG("d", "d").
		AddSourceTask("s2", &sliceSource{}).
		AddSourceTask("s1", &sliceSource{}).
		AddTransformTask("t", identity(), []string{"s2", "s1", "s2"}).
		Build()
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		order, err := d.ExecutionOrder()
		require.NoError(t, err)
		assert.Equal(t, []string{"s1", "s2", "t"}, order)
	}
	assert.Equal(t, []string{"s2", "s1"}, d.Dependencies("t"))

	levels := NewDAGExecutor().groupTasksByLevel(d, []string{"s1", "s2", "t"})
	assert.Equal(t, [][]string{{"s1", "s2"}, {"t"}}, levels)
}
