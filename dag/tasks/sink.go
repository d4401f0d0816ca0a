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

// sink.go - SinkTask implementation
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/aaronlmathis/weatheretl/core"
)

// Aborter is implemented by sinks that can discard partial output.
type Aborter interface {
	Abort(cause error) error
}

// SinkTask writes every input record to a DataSink, then flushes and closes
// it. A failed write aborts the sink when it supports Abort.
type SinkTask struct {
	baseTask
	sink core.DataSink
}

func (st *SinkTask) Execute(ctx context.Context, input TaskInput) (TaskOutput, error) {
	start := time.Now()
	var written int

	for _, record := range input.Records {
		if err := ctx.Err(); err != nil {
			return TaskOutput{}, st.fail(err)
		}
		if err := st.sink.Write(ctx, record); err != nil {
			return TaskOutput{}, st.fail(fmt.Errorf("sink write failed: %w", err))
		}
		written++
	}

	if err := st.sink.Flush(); err != nil {
		return TaskOutput{}, st.fail(fmt.Errorf("sink flush failed: %w", err))
	}
	if err := st.sink.Close(); err != nil {
		return TaskOutput{}, fmt.Errorf("sink close failed: %w", err)
	}

	return TaskOutput{
		Records:  []core.Record{},
		Context:  input.Context,
		Metadata: st.result(start, len(input.Records), written),
	}, nil
}

func (st *SinkTask) fail(err error) error {
	if a, ok := st.sink.(Aborter); ok {
		a.Abort(err)
	} else {
		st.sink.Close()
	}
	return err
}

// NewSinkTask creates a new SinkTask
func NewSinkTask(id string, sink core.DataSink, dependencies []string, options ...TaskOption) *SinkTask {
	task := &SinkTask{
		baseTask: newBaseTask(id, TaskTypeSink, dependencies),
		sink:     sink,
	}
	for _, opt := range options {
		opt(task)
	}
	return task
}
