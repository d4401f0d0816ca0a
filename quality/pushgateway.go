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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushgatewayPublisher pushes one metric group per evaluation context to a
// Prometheus Pushgateway. Each push replaces the previous group.
type PushgatewayPublisher struct {
	gatewayURL string
	jobName    string
	client     push.HTTPDoer
}

// NewPushgatewayPublisher creates a publisher for the gateway at gatewayURL.
func NewPushgatewayPublisher(gatewayURL, jobName string) (*PushgatewayPublisher, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("pushgateway: gateway URL is required")
	}
	if jobName == "" {
		jobName = "weatheretl"
	}
	return &PushgatewayPublisher{gatewayURL: gatewayURL, jobName: jobName}, nil
}

// WithHTTPClient overrides the HTTP client used for pushes.
func (p *PushgatewayPublisher) WithHTTPClient(c push.HTTPDoer) *PushgatewayPublisher {
	p.client = c
	return p
}

func (p *PushgatewayPublisher) Publish(ctx context.Context, result *Result) error {
	reg := prometheus.NewRegistry()

	rulePassed := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "weatheretl_dq_rule_passed",
		Help: "1 when the data quality rule passed, 0 otherwise.",
	}, []string{"rule"})
	ruleFailedRows := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "weatheretl_dq_rule_failed_rows",
		Help: "Rows that failed a row-level data quality rule.",
	}, []string{"rule"})
	ruleMetric := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "weatheretl_dq_rule_metric",
		Help: "Metric value evaluated by a data quality rule.",
	}, []string{"rule", "metric"})
	score := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "weatheretl_dq_score",
		Help: "Fraction of data quality rules that passed.",
	})
	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "weatheretl_dq_last_evaluation_timestamp_seconds",
		Help: "Completion time of the last data quality evaluation.",
	})
	reg.MustRegister(rulePassed, ruleFailedRows, ruleMetric, score, lastRun)

	for _, o := range result.Outcomes {
		passed := 0.0
		if o.Outcome == OutcomePassed {
			passed = 1
		}
		rulePassed.WithLabelValues(o.Rule).Set(passed)
		ruleFailedRows.WithLabelValues(o.Rule).Set(float64(o.FailedCount))
		ruleMetric.WithLabelValues(o.Rule, o.Metric).Set(o.EvaluatedMetric)
	}
	score.Set(result.Score())
	lastRun.Set(float64(result.CompletedAt.Unix()))

	if obs := result.Observations; obs != nil {
		rows := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "weatheretl_dq_rows",
			Help: "Rows evaluated.",
		})
		nulls := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "weatheretl_dq_null_values",
			Help: "Null values per column.",
		}, []string{"column"})
		reg.MustRegister(rows, nulls)

		rows.Set(float64(obs.RowCount))
		for col, n := range obs.NullCounts {
			nulls.WithLabelValues(col).Set(float64(n))
		}
	}

	pusher := push.New(p.gatewayURL, p.jobName).
		Gatherer(reg).
		Grouping("dq_context", result.ContextName)
	if p.client != nil {
		pusher = pusher.Client(p.client)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("pushgateway: %w", err)
	}
	return nil
}

func (p *PushgatewayPublisher) Close() error { return nil }
