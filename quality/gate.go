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
	"errors"
	"fmt"
	"log/slog"

	"github.com/aaronlmathis/weatheretl/core"
)

// ErrRulesFailed is returned by Gate.Check when StopJobOnFailure is set and
// at least one rule failed.
var ErrRulesFailed = errors.New("data quality rules failed")

// GateOptions configure a Gate.
type GateOptions struct {
	EnablePublishing bool
	Strategy         Strategy
	Observations     ObservationScope
	StopJobOnFailure bool
}

// GateOption is a functional option for NewGate.
type GateOption func(*Gate)

// WithPublisher sets where results are published.
func WithPublisher(p Publisher) GateOption {
	return func(g *Gate) { g.publisher = p }
}

// WithStrategy sets the publishing strategy.
func WithStrategy(s Strategy) GateOption {
	return func(g *Gate) { g.opts.Strategy = s }
}

// WithObservations sets the observation scope.
func WithObservations(scope ObservationScope) GateOption {
	return func(g *Gate) { g.opts.Observations = scope }
}

// WithPublishing enables or disables publishing.
func WithPublishing(enabled bool) GateOption {
	return func(g *Gate) { g.opts.EnablePublishing = enabled }
}

// WithStopJobOnFailure makes a failed rule fail the check.
func WithStopJobOnFailure(stop bool) GateOption {
	return func(g *Gate) { g.opts.StopJobOnFailure = stop }
}

// WithLogger sets the logger for publish warnings.
func WithLogger(l *slog.Logger) GateOption {
	return func(g *Gate) { g.logger = l }
}

// WithColumns sets the columns observed for null counts.
func WithColumns(columns ...string) GateOption {
	return func(g *Gate) { g.columns = columns }
}

// WithRun tags results with the job name and run id.
func WithRun(jobName, runID string) GateOption {
	return func(g *Gate) {
		g.jobName = jobName
		g.runID = runID
	}
}

// Gate evaluates a ruleset under an evaluation context name and publishes
// the result. It never modifies records.
type Gate struct {
	contextName string
	ruleset     *Ruleset
	publisher   Publisher
	opts        GateOptions
	logger      *slog.Logger
	jobName     string
	runID       string
	columns     []string
}

// NewGate creates a gate. Defaults: publishing enabled, BEST_EFFORT, ALL
// observations, no stop on failure.
func NewGate(contextName string, rs *Ruleset, options ...GateOption) *Gate {
	g := &Gate{
		contextName: contextName,
		ruleset:     rs,
		opts: GateOptions{
			EnablePublishing: true,
			Strategy:         StrategyBestEffort,
			Observations:     ObservationsAll,
		},
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// ContextName returns the evaluation context the gate publishes under.
func (g *Gate) ContextName() string {
	return g.contextName
}

// Options returns the effective gate options.
func (g *Gate) Options() GateOptions {
	return g.opts
}

// Check evaluates records and publishes the result. The returned error is
// non-nil when evaluation fails, when publishing fails under SYNC, or when
// rules fail with StopJobOnFailure set. The result is returned whenever
// evaluation completed.
func (g *Gate) Check(ctx context.Context, records []core.Record) (*Result, error) {
	result, err := NewEvaluator(g.ruleset, g.opts.Observations).WithColumns(g.columns...).Evaluate(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", g.contextName, err)
	}
	result.ContextName = g.contextName
	result.JobName = g.jobName
	result.RunID = g.runID

	if g.opts.EnablePublishing && g.publisher != nil {
		if err := g.publisher.Publish(ctx, result); err != nil {
			if g.opts.Strategy == StrategySync {
				return result, err
			}
			g.logger.Warn("data quality publishing failed",
				slog.String("dq_context", g.contextName),
				slog.String("strategy", string(g.opts.Strategy)),
				slog.Any("error", err),
			)
		}
	}

	if g.opts.StopJobOnFailure && !result.Passed() {
		return result, fmt.Errorf("%s: %w", g.contextName, ErrRulesFailed)
	}
	return result, nil
}
