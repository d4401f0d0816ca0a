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
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects SQL syntax and driver.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLPublisher stores results in two tables: dq_rule_results with one row
// per rule outcome and dq_observations with one row per observed column.
type SQLPublisher struct {
	db      *sql.DB
	dialect Dialect
	owned   bool
}

// OpenSQLPublisher opens a database and creates the result tables.
func OpenSQLPublisher(ctx context.Context, dialect Dialect, dsn string) (*SQLPublisher, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sql publisher: dsn is required")
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("sql publisher: open: %w", err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sql publisher: ping: %w", err)
	}

	p, err := NewSQLPublisher(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	p.owned = true
	return p, nil
}

// NewSQLPublisher uses an existing database handle. The caller keeps
// ownership of db.
func NewSQLPublisher(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLPublisher, error) {
	p := &SQLPublisher{db: db, dialect: dialect}
	if err := p.migrate(ctx); err != nil {
		return nil, fmt.Errorf("sql publisher: create tables: %w", err)
	}
	return p, nil
}

func (p *SQLPublisher) migrate(ctx context.Context) error {
	id := "BIGSERIAL PRIMARY KEY"
	ts := "TIMESTAMPTZ"
	if p.dialect == DialectSQLite {
		id = "INTEGER PRIMARY KEY AUTOINCREMENT"
		ts = "TIMESTAMP"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS dq_rule_results (
	id %s,
	context_name TEXT NOT NULL,
	job_name TEXT,
	run_id TEXT,
	ruleset TEXT,
	rule TEXT NOT NULL,
	outcome TEXT NOT NULL,
	passed_count BIGINT NOT NULL,
	failed_count BIGINT NOT NULL,
	metric TEXT,
	evaluated_metric DOUBLE PRECISION,
	failure_reason TEXT,
	started_at %s,
	completed_at %s
)`, id, ts, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS dq_observations (
	id %s,
	context_name TEXT NOT NULL,
	run_id TEXT,
	column_name TEXT NOT NULL,
	null_count BIGINT NOT NULL,
	row_count BIGINT NOT NULL,
	completed_at %s
)`, id, ts),
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// placeholders returns n bind parameters in the dialect's syntax.
func (p *SQLPublisher) placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		if p.dialect == DialectPostgres {
			ph[i] = fmt.Sprintf("$%d", i+1)
		} else {
			ph[i] = "?"
		}
	}
	return strings.Join(ph, ", ")
}

// Publish writes all rows for a result in one transaction.
func (p *SQLPublisher) Publish(ctx context.Context, result *Result) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sql publisher: begin: %w", err)
	}
	defer tx.Rollback()

	ruleStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO dq_rule_results (context_name, job_name, run_id, ruleset, rule, outcome, passed_count, failed_count, metric, evaluated_metric, failure_reason, started_at, completed_at) VALUES (%s)",
		p.placeholders(13)))
	if err != nil {
		return fmt.Errorf("sql publisher: prepare: %w", err)
	}
	defer ruleStmt.Close()

	for _, o := range result.Outcomes {
		_, err := ruleStmt.ExecContext(ctx,
			result.ContextName, result.JobName, result.RunID, result.Ruleset,
			o.Rule, string(o.Outcome), o.PassedCount, o.FailedCount,
			o.Metric, o.EvaluatedMetric, o.FailureReason,
			result.StartedAt.UTC(), result.CompletedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("sql publisher: insert rule result: %w", err)
		}
	}

	if obs := result.Observations; obs != nil {
		obsStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
			"INSERT INTO dq_observations (context_name, run_id, column_name, null_count, row_count, completed_at) VALUES (%s)",
			p.placeholders(6)))
		if err != nil {
			return fmt.Errorf("sql publisher: prepare: %w", err)
		}
		defer obsStmt.Close()

		for _, col := range obs.Columns() {
			_, err := obsStmt.ExecContext(ctx,
				result.ContextName, result.RunID, col, obs.NullCounts[col], obs.RowCount, result.CompletedAt.UTC())
			if err != nil {
				return fmt.Errorf("sql publisher: insert observation: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sql publisher: commit: %w", err)
	}
	return nil
}

// Close closes the database when the publisher opened it.
func (p *SQLPublisher) Close() error {
	if p.owned {
		return p.db.Close()
	}
	return nil
}
