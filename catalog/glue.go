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

package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"

	"github.com/aaronlmathis/weatheretl/awsconf"
	"github.com/aaronlmathis/weatheretl/schema"
)

// GlueAPI is the subset of the Glue client used by GlueCatalog.
type GlueAPI interface {
	GetTable(ctx context.Context, params *glue.GetTableInput, optFns ...func(*glue.Options)) (*glue.GetTableOutput, error)
}

// GlueCatalog resolves tables from the AWS Glue Data Catalog.
type GlueCatalog struct {
	client    GlueAPI
	catalogID string
}

// GlueOption configures a GlueCatalog.
type GlueOption func(*GlueCatalog)

// WithGlueCatalogID selects a catalog other than the caller's account default.
func WithGlueCatalogID(id string) GlueOption {
	return func(g *GlueCatalog) { g.catalogID = id }
}

// NewGlueCatalog wraps an existing Glue client.
func NewGlueCatalog(client GlueAPI, opts ...GlueOption) *GlueCatalog {
	g := &GlueCatalog{client: client}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewGlueCatalogFromConfig loads AWS configuration and creates a Glue client.
func NewGlueCatalogFromConfig(ctx context.Context, awsOpts awsconf.Options, opts ...GlueOption) (*GlueCatalog, error) {
	cfg, err := awsconf.Load(ctx, awsOpts)
	if err != nil {
		return nil, fmt.Errorf("glue catalog: load aws config: %w", err)
	}
	return NewGlueCatalog(glue.NewFromConfig(cfg), opts...), nil
}

// GetTable implements Catalog.
func (g *GlueCatalog) GetTable(ctx context.Context, database, table string) (*Table, error) {
	input := &glue.GetTableInput{
		DatabaseName: aws.String(database),
		Name:         aws.String(table),
	}
	if g.catalogID != "" {
		input.CatalogId = aws.String(g.catalogID)
	}

	out, err := g.client.GetTable(ctx, input)
	if err != nil {
		var notFound *gluetypes.EntityNotFoundException
		if errors.As(err, &notFound) {
			return nil, &CatalogError{Op: "get_table", Database: database, Table: table, Err: fmt.Errorf("%w: %v", ErrTableNotFound, err)}
		}
		return nil, &CatalogError{Op: "get_table", Database: database, Table: table, Err: err}
	}
	if out.Table == nil || out.Table.StorageDescriptor == nil {
		return nil, &CatalogError{Op: "get_table", Database: database, Table: table, Err: fmt.Errorf("table has no storage descriptor")}
	}

	return tableFromGlue(database, out.Table)
}

// tableFromGlue converts a Glue table definition into a Table.
func tableFromGlue(database string, t *gluetypes.Table) (*Table, error) {
	sd := t.StorageDescriptor
	result := &Table{
		Database:  database,
		Name:      aws.ToString(t.Name),
		Location:  aws.ToString(sd.Location),
		Format:    strings.ToLower(t.Parameters["classification"]),
		Delimiter: ',',
		HasHeader: true,
	}
	if result.Format == "" {
		result.Format = "csv"
	}

	params := make(map[string]string)
	for k, v := range t.Parameters {
		params[k] = v
	}
	if sd.SerdeInfo != nil {
		for k, v := range sd.SerdeInfo.Parameters {
			params[k] = v
		}
	}
	for _, key := range []string{"field.delim", "separatorChar", "delimiter"} {
		if d := params[key]; d != "" {
			result.Delimiter = []rune(d)[0]
			break
		}
	}
	if skip, ok := params["skip.header.line.count"]; ok {
		n, err := strconv.Atoi(skip)
		if err != nil {
			return nil, fmt.Errorf("table %s: skip.header.line.count: %w", result.Name, err)
		}
		result.HasHeader = n > 0
	}

	var err error
	if result.Columns, err = columnsFromGlue(sd.Columns); err != nil {
		return nil, fmt.Errorf("table %s: %w", result.Name, err)
	}
	if result.PartitionKeys, err = columnsFromGlue(t.PartitionKeys); err != nil {
		return nil, fmt.Errorf("table %s: partition keys: %w", result.Name, err)
	}
	return result, nil
}

func columnsFromGlue(cols []gluetypes.Column) (schema.Schema, error) {
	out := make(schema.Schema, 0, len(cols))
	for _, c := range cols {
		t, err := schema.ParseType(aws.ToString(c.Type))
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", aws.ToString(c.Name), err)
		}
		out = append(out, schema.Column{Name: aws.ToString(c.Name), Type: t})
	}
	return out, nil
}
