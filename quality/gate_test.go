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
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/weatheretl/core"
)

const weatherContext = "EvaluateDataQuality_node1769546718242"

type recordingPublisher struct {
	mu      sync.Mutex
	results []*Result
	err     error
	closed  bool
}

func (p *recordingPublisher) Publish(ctx context.Context, result *Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, result)
	return p.err
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func TestGateDefaults(t *testing.T) {
	g := NewGate(weatherContext, MustParseRuleset("Rules = [ ColumnCount > 0 ]"))

	opts := g.Options()
	assert.True(t, opts.EnablePublishing)
	assert.Equal(t, StrategyBestEffort, opts.Strategy)
	assert.Equal(t, ObservationsAll, opts.Observations)
	assert.False(t, opts.StopJobOnFailure)
	assert.Equal(t, weatherContext, g.ContextName())
}

func TestGateCheckPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	g := NewGate(weatherContext, MustParseRuleset("Rules = [ ColumnCount > 0 ]"),
		WithPublisher(pub),
		WithRun("csvTransformation", "run-1"),
	)

	result, err := g.Check(context.Background(), weatherRecords())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, weatherContext, result.ContextName)
	assert.Equal(t, "csvTransformation", result.JobName)
	assert.Equal(t, "run-1", result.RunID)
	assert.True(t, result.Passed())

	require.Len(t, pub.results, 1)
	assert.Same(t, result, pub.results[0])
}

func TestGatePublishingDisabled(t *testing.T) {
	pub := &recordingPublisher{}
	g := NewGate(weatherContext, MustParseRuleset("Rules = [ ColumnCount > 0 ]"),
		WithPublisher(pub),
		WithPublishing(false),
	)

	_, err := g.Check(context.Background(), weatherRecords())
	require.NoError(t, err)
	assert.Empty(t, pub.results)
}

func TestGatePublishFailure(t *testing.T) {
	publishErr := errors.New("gateway unavailable")

	t.Run("best effort", func(t *testing.T) {
		var logs bytes.Buffer
		pub := &recordingPublisher{err: publishErr}
		g := NewGate(weatherContext, MustParseRuleset("Rules = [ ColumnCount > 0 ]"),
			WithPublisher(pub),
			WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		)

		result, err := g.Check(context.Background(), weatherRecords())
		require.NoError(t, err)
		assert.NotNil(t, result)
		assert.Contains(t, logs.String(), "data quality publishing failed")
		assert.Contains(t, logs.String(), "gateway unavailable")
	})

	t.Run("sync", func(t *testing.T) {
		pub := &recordingPublisher{err: publishErr}
		g := NewGate(weatherContext, MustParseRuleset("Rules = [ ColumnCount > 0 ]"),
			WithPublisher(pub),
			WithStrategy(StrategySync),
		)

		result, err := g.Check(context.Background(), weatherRecords())
		require.Error(t, err)
		assert.ErrorIs(t, err, publishErr)
		assert.NotNil(t, result)
	})
}

func TestGateStopJobOnFailure(t *testing.T) {
	records := []core.Record{{"ts": int64(1)}, {}}
	rs := MustParseRuleset("Rules = [ ColumnCount > 0 ]")

	t.Run("disabled", func(t *testing.T) {
		result, err := NewGate(weatherContext, rs).Check(context.Background(), records)
		require.NoError(t, err)
		assert.False(t, result.Passed())
	})

	t.Run("enabled", func(t *testing.T) {
		result, err := NewGate(weatherContext, rs, WithStopJobOnFailure(true)).Check(context.Background(), records)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRulesFailed)
		assert.Contains(t, err.Error(), weatherContext)
		assert.False(t, result.Passed())
	})
}
