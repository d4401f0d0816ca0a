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

// transform.go - TransformTask implementation
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/aaronlmathis/weatheretl/core"
)

// TransformTask applies a Transformer to every input record. A nil result
// drops the record.
type TransformTask struct {
	baseTask
	transformer core.Transformer
}

func (tt *TransformTask) Execute(ctx context.Context, input TaskInput) (TaskOutput, error) {
	start := time.Now()
	transformed := make([]core.Record, 0, len(input.Records))

	for i, record := range input.Records {
		if err := ctx.Err(); err != nil {
			return TaskOutput{}, err
		}

		out, err := tt.transformer.Transform(ctx, record)
		if err != nil {
			return TaskOutput{}, fmt.Errorf("transform record %d: %w", i, err)
		}
		if out != nil {
			transformed = append(transformed, out)
		}
	}

	return TaskOutput{
		Records:  transformed,
		Context:  input.Context,
		Metadata: tt.result(start, len(input.Records), len(transformed)),
	}, nil
}

// NewTransformTask creates a new TransformTask
func NewTransformTask(id string, transformer core.Transformer, dependencies []string, options ...TaskOption) *TransformTask {
	task := &TransformTask{
		baseTask:    newBaseTask(id, TaskTypeTransform, dependencies),
		transformer: transformer,
	}
	for _, opt := range options {
		opt(task)
	}
	return task
}
