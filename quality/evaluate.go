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

package quality

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aaronlmathis/weatheretl/core"
)

// Outcome of a single rule.
type Outcome string

const (
	OutcomePassed Outcome = "Passed"
	OutcomeFailed Outcome = "Failed"
)

// ObservationScope selects which observations are recorded.
type ObservationScope string

const (
	ObservationsAll  ObservationScope = "ALL"
	ObservationsNone ObservationScope = "NONE"
)

// RuleOutcome is the evaluation of one rule.
type RuleOutcome struct {
	Rule            string  `json:"rule" bson:"rule"`
	Outcome         Outcome `json:"outcome" bson:"outcome"`
	PassedCount     int64   `json:"passed_count" bson:"passed_count"`
	FailedCount     int64   `json:"failed_count" bson:"failed_count"`
	Metric          string  `json:"metric" bson:"metric"`
	EvaluatedMetric float64 `json:"evaluated_metric" bson:"evaluated_metric"`
	FailureReason   string  `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`
}

// Observations are dataset statistics gathered alongside rule evaluation.
type Observations struct {
	RowCount   int64            `json:"row_count" bson:"row_count"`
	NullCounts map[string]int64 `json:"null_counts" bson:"null_counts"`
}

// Result is the outcome of evaluating a ruleset over one run's records.
type Result struct {
	ContextName  string        `json:"context_name" bson:"context_name"`
	JobName      string        `json:"job_name" bson:"job_name"`
	RunID        string        `json:"run_id" bson:"run_id"`
	Ruleset      string        `json:"ruleset" bson:"ruleset"`
	Outcomes     []RuleOutcome `json:"outcomes" bson:"outcomes"`
	Observations *Observations `json:"observations,omitempty" bson:"observations,omitempty"`
	StartedAt    time.Time     `json:"started_at" bson:"started_at"`
	CompletedAt  time.Time     `json:"completed_at" bson:"completed_at"`
}

// Passed reports whether every rule passed.
func (r *Result) Passed() bool {
	for _, o := range r.Outcomes {
		if o.Outcome != OutcomePassed {
			return false
		}
	}
	return true
}

// Score is the fraction of rules that passed.
func (r *Result) Score() float64 {
	if len(r.Outcomes) == 0 {
		return 1
	}
	var passed int
	for _, o := range r.Outcomes {
		if o.Outcome == OutcomePassed {
			passed++
		}
	}
	return float64(passed) / float64(len(r.Outcomes))
}

// Evaluator applies a ruleset to a batch of records.
type Evaluator struct {
	ruleset *Ruleset
	scope   ObservationScope
	columns []string
	now     func() time.Time
}

// NewEvaluator creates an evaluator. Scope defaults to ALL.
func NewEvaluator(rs *Ruleset, scope ObservationScope) *Evaluator {
	if scope == "" {
		scope = ObservationsAll
	}
	return &Evaluator{ruleset: rs, scope: scope, now: time.Now}
}

// WithColumns declares the dataset's columns so that null counts cover
// each of them even when no record carries it.
func (e *Evaluator) WithColumns(columns ...string) *Evaluator {
	e.columns = columns
	return e
}

// Evaluate checks every rule against records. Records are not modified.
// Row-level rules pass when no record fails them; dataset-level rules
// compare one metric against their threshold.
func (e *Evaluator) Evaluate(ctx context.Context, records []core.Record) (*Result, error) {
	result := &Result{
		Ruleset:   e.ruleset.Text,
		StartedAt: e.now(),
	}

	outcomes := make([]RuleOutcome, len(e.ruleset.Rules))
	for i, rule := range e.ruleset.Rules {
		outcomes[i] = RuleOutcome{Rule: rule.String(), Metric: metricName(rule)}
	}

	nulls := make(map[string]int64, len(e.columns))
	for _, c := range e.columns {
		nulls[c] = 0
	}
	maxColumns := 0

	for n, record := range records {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		if len(record) > maxColumns {
			maxColumns = len(record)
		}
		if e.scope == ObservationsAll {
			for k, v := range record {
				if v == nil {
					nulls[k]++
				} else if _, ok := nulls[k]; !ok {
					nulls[k] = 0
				}
			}
		}

		for i, rule := range e.ruleset.Rules {
			if !rule.RowLevel() {
				continue
			}
			if rowPasses(rule, record) {
				outcomes[i].PassedCount++
			} else {
				outcomes[i].FailedCount++
			}
		}
	}

	rows := int64(len(records))
	for i, rule := range e.ruleset.Rules {
		o := &outcomes[i]
		switch rule.Type {
		case RuleColumnCount:
			o.EvaluatedMetric = float64(maxColumns)
		case RuleRowCount:
			o.EvaluatedMetric = float64(rows)
		case RuleIsComplete, RuleColumnExists:
			o.EvaluatedMetric = float64(o.PassedCount)
		case RuleCompleteness:
			o.EvaluatedMetric = completeness(records, rule.Column)
		}

		if rule.RowLevel() {
			if o.FailedCount == 0 {
				o.Outcome = OutcomePassed
			} else {
				o.Outcome = OutcomeFailed
				o.FailureReason = fmt.Sprintf("%d of %d rows failed", o.FailedCount, rows)
			}
			continue
		}

		if rule.Condition.Matches(o.EvaluatedMetric) {
			o.Outcome = OutcomePassed
		} else {
			o.Outcome = OutcomeFailed
			o.FailureReason = fmt.Sprintf("value %s does not satisfy %s", formatNumber(o.EvaluatedMetric), rule.Condition)
		}
	}

	result.Outcomes = outcomes
	if e.scope == ObservationsAll {
		result.Observations = &Observations{RowCount: rows, NullCounts: nulls}
	}
	result.CompletedAt = e.now()
	return result, nil
}

func rowPasses(rule Rule, record core.Record) bool {
	switch rule.Type {
	case RuleColumnCount:
		return rule.Condition.Matches(float64(len(record)))
	case RuleIsComplete:
		v, ok := record[rule.Column]
		return ok && v != nil
	case RuleColumnExists:
		_, ok := record[rule.Column]
		return ok
	}
	return false
}

func completeness(records []core.Record, column string) float64 {
	if len(records) == 0 {
		return 0
	}
	var present int
	for _, r := range records {
		if v, ok := r[column]; ok && v != nil {
			present++
		}
	}
	return float64(present) / float64(len(records))
}

func metricName(rule Rule) string {
	if rule.Column == "" {
		return "Dataset.*." + string(rule.Type)
	}
	return "Column." + rule.Column + "." + string(rule.Type)
}

// Columns returns the observed column names in sorted order.
func (o *Observations) Columns() []string {
	cols := make([]string, 0, len(o.NullCounts))
	for k := range o.NullCounts {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
