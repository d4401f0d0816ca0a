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

package readers

import (
	"context"
	"fmt"
	"strings"

	"github.com/aaronlmathis/weatheretl/awsconf"
	"github.com/aaronlmathis/weatheretl/catalog"
	"github.com/aaronlmathis/weatheretl/core"
)

// CatalogSource is a core.DataSource over a catalog table.
type CatalogSource struct {
	core.DataSource
	Table *catalog.Table
}

// CatalogSourceOptions configures NewCatalogSource.
type CatalogSourceOptions struct {
	AWS         awsconf.Options
	S3Client    S3API
	LocalSuffix string // Suffix filter for local directory tables
	S3Suffix    string // Suffix filter for S3 tables
}

// ReaderOptionCatalog configures a catalog source.
type ReaderOptionCatalog func(*CatalogSourceOptions)

// WithCatalogAWSOptions sets AWS options used when no S3 client is given.
func WithCatalogAWSOptions(opts awsconf.Options) ReaderOptionCatalog {
	return func(o *CatalogSourceOptions) { o.AWS = opts }
}

// WithCatalogS3Client uses an existing S3 client for s3:// tables.
func WithCatalogS3Client(client S3API) ReaderOptionCatalog {
	return func(o *CatalogSourceOptions) { o.S3Client = client }
}

// WithCatalogLocalSuffix filters files when a local table points at a directory.
func WithCatalogLocalSuffix(suffix string) ReaderOptionCatalog {
	return func(o *CatalogSourceOptions) { o.LocalSuffix = suffix }
}

// WithCatalogS3Suffix filters object keys of s3:// tables.
func WithCatalogS3Suffix(suffix string) ReaderOptionCatalog {
	return func(o *CatalogSourceOptions) { o.S3Suffix = suffix }
}

// NewCatalogSource resolves database.table and opens a reader over its location.
func NewCatalogSource(ctx context.Context, cat catalog.Catalog, database, table string, options ...ReaderOptionCatalog) (*CatalogSource, error) {
	opts := CatalogSourceOptions{LocalSuffix: ".csv"}
	for _, option := range options {
		option(&opts)
	}

	t, err := cat.GetTable(ctx, database, table)
	if err != nil {
		return nil, err
	}
	if t.Format != "csv" {
		return nil, fmt.Errorf("table %s.%s: unsupported format %q", database, table, t.Format)
	}
	if t.Location == "" {
		return nil, fmt.Errorf("table %s.%s: location is empty", database, table)
	}

	csvOpts := []ReaderOptionCSV{
		WithCSVComma(t.Delimiter),
		WithCSVHasHeaders(t.HasHeader),
		WithCSVSchema(t.Columns),
	}
	if !t.HasHeader {
		csvOpts = append(csvOpts, WithCSVHeaders(t.Columns.Names()))
	}

	var src core.DataSource
	if awsconf.IsS3URI(t.Location) {
		bucket, prefix, err := awsconf.ParseS3URI(t.Location)
		if err != nil {
			return nil, err
		}
		// The location is a folder; keep sibling prefixes out of the listing.
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		s3Opts := []ReaderOptionS3{
			WithS3Bucket(bucket),
			WithS3Prefix(prefix),
			WithS3Suffix(opts.S3Suffix),
			WithS3AWSOptions(opts.AWS),
			WithS3CSVOptions(csvOpts...),
		}
		if opts.S3Client != nil {
			s3Opts = append(s3Opts, WithS3Client(opts.S3Client))
		}
		if src, err = NewS3Reader(ctx, s3Opts...); err != nil {
			return nil, err
		}
	} else {
		if src, err = NewFileReader(t.Location, opts.LocalSuffix, csvOpts...); err != nil {
			return nil, err
		}
	}

	return &CatalogSource{DataSource: src, Table: t}, nil
}
