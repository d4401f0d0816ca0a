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

// source.go - SourceTask implementation
package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aaronlmathis/weatheretl/core"
)

// SourceTask drains a DataSource into memory and closes it.
type SourceTask struct {
	baseTask
	source core.DataSource
}

func (st *SourceTask) Execute(ctx context.Context, input TaskInput) (TaskOutput, error) {
	start := time.Now()
	var records []core.Record

	for {
		if err := ctx.Err(); err != nil {
			st.source.Close()
			return TaskOutput{}, err
		}

		record, err := st.source.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			st.source.Close()
			return TaskOutput{}, fmt.Errorf("source read failed: %w", err)
		}
		records = append(records, record)
	}

	if err := st.source.Close(); err != nil {
		return TaskOutput{}, fmt.Errorf("source close failed: %w", err)
	}

	return TaskOutput{
		Records:  records,
		Context:  input.Context,
		Metadata: st.result(start, 0, len(records)),
	}, nil
}

// NewSourceTask creates a new SourceTask with the given ID and source
func NewSourceTask(id string, source core.DataSource, options ...TaskOption) *SourceTask {
	task := &SourceTask{
		baseTask: newBaseTask(id, TaskTypeSource, nil),
		source:   source,
	}
	for _, opt := range options {
		opt(task)
	}
	return task
}
