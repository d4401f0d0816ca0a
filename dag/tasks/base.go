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

// base.go - Task interface and base types
package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aaronlmathis/weatheretl/core"
)

// TaskType represents the type of task
type TaskType string

const (
	TaskTypeSource    TaskType = "source"
	TaskTypeTransform TaskType = "transform"
	TaskTypeQuality   TaskType = "quality"
	TaskTypeSink      TaskType = "sink"
)

// SingleAttempt reports whether tasks of this type consume their reader or
// writer on the first attempt and therefore cannot be retried.
func (t TaskType) SingleAttempt() bool {
	return t == TaskTypeSource || t == TaskTypeSink
}

// TriggerRule defines when a task should be triggered
type TriggerRule string

const (
	TriggerAllSuccess  TriggerRule = "all_success"  // All dependencies succeeded
	TriggerAllComplete TriggerRule = "all_complete" // All dependencies completed (success or failure)
	TriggerOneFailed   TriggerRule = "one_failed"   // At least one dependency failed
	TriggerOneSuccess  TriggerRule = "one_success"  // At least one dependency succeeded
	TriggerNoneFailed  TriggerRule = "none_failed"  // No dependencies failed
)

// RetryConfig defines retry behavior for tasks. A nil config or zero
// MaxRetries means a single attempt.
type RetryConfig struct {
	MaxRetries      int
	Backoff         time.Duration // constant delay between attempts
	InitialInterval time.Duration // exponential backoff, used when Backoff is zero
	MaxInterval     time.Duration
	RetryOn         []error // retry only errors matching one of these; empty retries all
}

// BackOff builds the retry policy for one task execution.
func (rc *RetryConfig) BackOff() backoff.BackOff {
	if rc == nil || rc.MaxRetries <= 0 {
		return &backoff.StopBackOff{}
	}

	var b backoff.BackOff
	if rc.Backoff > 0 {
		b = backoff.NewConstantBackOff(rc.Backoff)
	} else {
		eb := backoff.NewExponentialBackOff()
		if rc.InitialInterval > 0 {
			eb.InitialInterval = rc.InitialInterval
		}
		if rc.MaxInterval > 0 {
			eb.MaxInterval = rc.MaxInterval
		}
		eb.MaxElapsedTime = 0
		eb.Reset()
		b = eb
	}
	return backoff.WithMaxRetries(b, uint64(rc.MaxRetries))
}

// Retryable reports whether err may be retried under this config.
func (rc *RetryConfig) Retryable(err error) bool {
	if rc == nil || len(rc.RetryOn) == 0 {
		return true
	}
	for _, target := range rc.RetryOn {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// TaskMetadata holds the static configuration of a task
type TaskMetadata struct {
	Name         string
	Description  string
	TaskType     TaskType
	RetryConfig  *RetryConfig
	Timeout      time.Duration
	TriggerRule  TriggerRule
	Tags         []string
	Owner        string
	CustomFields map[string]interface{}
}

// TaskInput represents input data for task execution
type TaskInput struct {
	Records   []core.Record
	Context   map[string]interface{}
	SourceMap map[string][]core.Record
	Metadata  map[string]TaskResultMetadata
}

// TaskOutput represents output data from task execution
type TaskOutput struct {
	Records  []core.Record
	Context  map[string]interface{}
	Metadata TaskResultMetadata
}

// TaskResultMetadata holds execution result metadata
type TaskResultMetadata struct {
	StartTime    time.Time
	EndTime      time.Time
	RecordsIn    int64
	RecordsOut   int64
	Success      bool
	Error        error
	AttemptCount int
}

// Duration is the wall time of the last attempt.
func (m TaskResultMetadata) Duration() time.Duration {
	if m.EndTime.IsZero() {
		return 0
	}
	return m.EndTime.Sub(m.StartTime)
}

// Task defines the interface that all tasks must implement
type Task interface {
	ID() string
	Dependencies() []string
	Execute(ctx context.Context, input TaskInput) (TaskOutput, error)
	Metadata() TaskMetadata
	SetRetryConfig(config *RetryConfig)
	SetTimeout(timeout time.Duration)
	SetTriggerRule(rule TriggerRule)
	SetDescription(description string)
	SetTags(tags ...string)
	SetOwner(owner string)
	SetCustomField(key string, value interface{})
}

// baseTask carries the identity and configuration shared by all tasks.
type baseTask struct {
	id           string
	dependencies []string
	metadata     TaskMetadata
}

func newBaseTask(id string, taskType TaskType, dependencies []string) baseTask {
	if dependencies == nil {
		dependencies = []string{}
	}
	return baseTask{
		id:           id,
		dependencies: dependencies,
		metadata: TaskMetadata{
			Name:        id,
			TaskType:    taskType,
			TriggerRule: TriggerAllSuccess,
		},
	}
}

func (b *baseTask) ID() string             { return b.id }
func (b *baseTask) Dependencies() []string { return b.dependencies }
func (b *baseTask) Metadata() TaskMetadata { return b.metadata }

func (b *baseTask) SetRetryConfig(config *RetryConfig) { b.metadata.RetryConfig = config }
func (b *baseTask) SetTimeout(timeout time.Duration)   { b.metadata.Timeout = timeout }
func (b *baseTask) SetTriggerRule(rule TriggerRule)    { b.metadata.TriggerRule = rule }
func (b *baseTask) SetDescription(description string)  { b.metadata.Description = description }
func (b *baseTask) SetOwner(owner string)              { b.metadata.Owner = owner }

func (b *baseTask) SetTags(tags ...string) {
	b.metadata.Tags = append(b.metadata.Tags, tags...)
}

func (b *baseTask) SetCustomField(key string, value interface{}) {
	if b.metadata.CustomFields == nil {
		b.metadata.CustomFields = make(map[string]interface{})
	}
	b.metadata.CustomFields[key] = value
}

// result builds the metadata of a successful execution.
func (b *baseTask) result(start time.Time, in, out int) TaskResultMetadata {
	return TaskResultMetadata{
		StartTime:  start,
		EndTime:    time.Now(),
		RecordsIn:  int64(in),
		RecordsOut: int64(out),
		Success:    true,
	}
}

// TaskOption is a functional option for configuring tasks
type TaskOption func(Task)

// WithRetries retries a task up to maxRetries times with a constant delay.
func WithRetries(maxRetries int, delay time.Duration) TaskOption {
	return func(t Task) {
		t.SetRetryConfig(&RetryConfig{
			MaxRetries: maxRetries,
			Backoff:    delay,
		})
	}
}

// WithRetryConfig sets the retry configuration for a task
func WithRetryConfig(config *RetryConfig) TaskOption {
	return func(t Task) {
		t.SetRetryConfig(config)
	}
}

// WithTimeout sets the timeout for a task
func WithTimeout(timeout time.Duration) TaskOption {
	return func(t Task) {
		t.SetTimeout(timeout)
	}
}

// WithTriggerRule sets the trigger rule for a task
func WithTriggerRule(rule TriggerRule) TaskOption {
	return func(t Task) {
		t.SetTriggerRule(rule)
	}
}

func WithDescription(description string) TaskOption {
	return func(t Task) {
		t.SetDescription(description)
	}
}

func WithTags(tags ...string) TaskOption {
	return func(t Task) {
		t.SetTags(tags...)
	}
}

func WithOwner(owner string) TaskOption {
	return func(t Task) {
		t.SetOwner(owner)
	}
}

func WithCustomField(key string, value interface{}) TaskOption {
	return func(t Task) {
		t.SetCustomField(key, value)
	}
}

// copyContext returns a copy of ctx with room for task outputs.
func copyContext(ctx map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(ctx)+1)
	for k, v := range ctx {
		out[k] = v
	}
	return out
}
