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

// Package catalog resolves named tables to a storage location, file format
// and column schema. Backends are the AWS Glue Data Catalog and a YAML file
// for local runs.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/aaronlmathis/weatheretl/schema"
)

// ErrTableNotFound is returned (wrapped) when a catalog has no such table.
var ErrTableNotFound = errors.New("table not found")

// CatalogError wraps catalog lookup failures with the table they concern.
type CatalogError struct {
	Op       string
	Database string
	Table    string
	Err      error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog %s %s.%s: %v", e.Op, e.Database, e.Table, e.Err)
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}

// Table is a resolved catalog table.
type Table struct {
	Database      string
	Name          string
	Location      string        // s3://bucket/prefix or a local path
	Format        string        // classification, e.g. "csv"
	Delimiter     rune          // field separator for delimited formats
	HasHeader     bool          // first line of every file is a header row
	Columns       schema.Schema // data columns in declared order
	PartitionKeys schema.Schema
}

// Catalog resolves tables by database and name.
type Catalog interface {
	GetTable(ctx context.Context, database, table string) (*Table, error)
}
