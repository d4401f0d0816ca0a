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

package transform

import (
	"context"
	"fmt"
	"strings"

	"github.com/aaronlmathis/weatheretl/core"
	"github.com/aaronlmathis/weatheretl/schema"
)

// Package transform provides the schema mapping transformer used by the
// ChangeSchema stage of the job.
//
// A mapping table is a list of (source name, source type, target name, target
// type) rules. ApplyMapping renames and coerces every listed column and drops
// everything else.

// Mapping is a single column rule of a mapping table.
type Mapping struct {
	SourceName string      `yaml:"source_name" json:"source_name" validate:"required"`
	SourceType schema.Type `yaml:"source_type" json:"source_type" validate:"required"`
	TargetName string      `yaml:"target_name" json:"target_name" validate:"required"`
	TargetType schema.Type `yaml:"target_type" json:"target_type" validate:"required"`
}

// M is shorthand for building a Mapping from catalog type names.
func M(sourceName, sourceType, targetName, targetType string) Mapping {
	return Mapping{
		SourceName: sourceName,
		SourceType: schema.MustParseType(sourceType),
		TargetName: targetName,
		TargetType: schema.MustParseType(targetType),
	}
}

// String renders the rule in the tuple form used by mapping tables.
func (m Mapping) String() string {
	return fmt.Sprintf("(%q, %q, %q, %q)", m.SourceName, m.SourceType, m.TargetName, m.TargetType)
}

// MissingColumnError is returned when an input record lacks a mapped source column.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("apply mapping: source column %q not found in record", e.Column)
}

// CoercionError is returned when a value cannot be read as the declared type.
type CoercionError struct {
	Column string
	Type   schema.Type
	Err    error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("apply mapping: column %q as %s: %v", e.Column, e.Type, e.Err)
}

func (e *CoercionError) Unwrap() error {
	return e.Err
}

// resolvedMapping holds a rule with back-tick escaping removed.
type resolvedMapping struct {
	source     string
	sourceType schema.Type
	target     string
	targetType schema.Type
}

// Mapper applies a mapping table to records. It implements core.Transformer.
type Mapper struct {
	rules  []resolvedMapping
	output schema.Schema
}

// NewMapper validates a mapping table and returns a Mapper for it.
// Every target column must appear exactly once.
func NewMapper(mappings []Mapping) (*Mapper, error) {
	if len(mappings) == 0 {
		return nil, fmt.Errorf("apply mapping: mapping table is empty")
	}

	seen := make(map[string]int, len(mappings))
	m := &Mapper{
		rules:  make([]resolvedMapping, 0, len(mappings)),
		output: make(schema.Schema, 0, len(mappings)),
	}

	for i, rule := range mappings {
		source := schema.UnquoteName(rule.SourceName)
		target := schema.UnquoteName(rule.TargetName)
		if source == "" || target == "" {
			return nil, fmt.Errorf("apply mapping: rule %d has an empty column name", i)
		}
		for _, t := range []schema.Type{rule.SourceType, rule.TargetType} {
			if _, err := schema.ParseType(string(t)); err != nil {
				return nil, fmt.Errorf("apply mapping: rule %d: %w", i, err)
			}
		}
		if prev, dup := seen[target]; dup {
			return nil, fmt.Errorf("apply mapping: target column %q declared by rules %d and %d", target, prev, i)
		}
		seen[target] = i

		m.rules = append(m.rules, resolvedMapping{
			source:     source,
			sourceType: schema.MustParseType(string(rule.SourceType)),
			target:     target,
			targetType: schema.MustParseType(string(rule.TargetType)),
		})
		m.output = append(m.output, schema.Column{Name: target, Type: schema.MustParseType(string(rule.TargetType))})
	}

	return m, nil
}

// OutputSchema returns the target columns in mapping order.
func (m *Mapper) OutputSchema() schema.Schema {
	out := make(schema.Schema, len(m.output))
	copy(out, m.output)
	return out
}

// Transform implements core.Transformer.
func (m *Mapper) Transform(ctx context.Context, record core.Record) (core.Record, error) {
	result := make(core.Record, len(m.rules))
	for _, rule := range m.rules {
		value, exists := record[rule.source]
		if !exists {
			return nil, &MissingColumnError{Column: rule.source}
		}

		// The value must be readable as its declared source type before it
		// is converted to the target type.
		sourceValue, err := schema.Coerce(value, rule.sourceType)
		if err != nil {
			return nil, &CoercionError{Column: rule.source, Type: rule.sourceType, Err: err}
		}
		targetValue, err := schema.Coerce(sourceValue, rule.targetType)
		if err != nil {
			return nil, &CoercionError{Column: rule.target, Type: rule.targetType, Err: err}
		}
		result[rule.target] = targetValue
	}
	return result, nil
}

// ApplyMapping creates a transformer that applies the mapping table to each record.
// It panics if the table is invalid; use NewMapper to handle the error.
func ApplyMapping(mappings ...Mapping) core.Transformer {
	m, err := NewMapper(mappings)
	if err != nil {
		panic(err)
	}
	return m
}

// Identity builds an identity mapping table for a schema: every column maps
// to itself with its own type.
func Identity(columns schema.Schema) []Mapping {
	mappings := make([]Mapping, len(columns))
	for i, c := range columns {
		name := c.Name
		if strings.ContainsAny(name, "().` ") {
			name = "`" + strings.ReplaceAll(name, "`", "``") + "`"
		}
		mappings[i] = Mapping{SourceName: name, SourceType: c.Type, TargetName: name, TargetType: c.Type}
	}
	return mappings
}
