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

// quality.go - QualityTask implementation
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/aaronlmathis/weatheretl/core"
	"github.com/aaronlmathis/weatheretl/quality"
)

// ResultKeySuffix is appended to a quality task's ID to form the context
// key its evaluation result is stored under.
const ResultKeySuffix = "_dq_result"

// QualityChecker evaluates a batch of records.
type QualityChecker interface {
	Check(ctx context.Context, records []core.Record) (*quality.Result, error)
}

// QualityTask evaluates its input and passes the records through unchanged.
type QualityTask struct {
	baseTask
	checker QualityChecker
}

func (qt *QualityTask) Execute(ctx context.Context, input TaskInput) (TaskOutput, error) {
	start := time.Now()

	result, err := qt.checker.Check(ctx, input.Records)
	if err != nil {
		return TaskOutput{}, fmt.Errorf("data quality check failed: %w", err)
	}

	updated := copyContext(input.Context)
	updated[qt.id+ResultKeySuffix] = result

	return TaskOutput{
		Records:  input.Records,
		Context:  updated,
		Metadata: qt.result(start, len(input.Records), len(input.Records)),
	}, nil
}

// QualityResult returns the result a quality task stored in ctx.
func QualityResult(ctx map[string]interface{}, taskID string) (*quality.Result, bool) {
	r, ok := ctx[taskID+ResultKeySuffix].(*quality.Result)
	return r, ok
}

// NewQualityTask creates a new QualityTask
func NewQualityTask(id string, checker QualityChecker, dependencies []string, options ...TaskOption) *QualityTask {
	task := &QualityTask{
		baseTask: newBaseTask(id, TaskTypeQuality, dependencies),
		checker:  checker,
	}
	for _, opt := range options {
		opt(task)
	}
	return task
}
