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
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/aaronlmathis/weatheretl/awsconf"
	"github.com/aaronlmathis/weatheretl/schema"
)

// FileCatalog is a catalog loaded from a YAML document:
//
//	databases:
//	  - name: csv-data-pipline-catalog
//	    tables:
//	      - name: weather_data_csv
//	        location: ./data/weather
//	        format: csv
//	        columns:
//	          - {name: ghi, type: long}
type FileCatalog struct {
	Databases []fileDatabase `yaml:"databases"`
}

type fileDatabase struct {
	Name   string      `yaml:"name"`
	Tables []fileTable `yaml:"tables"`
}

type fileTable struct {
	Name          string       `yaml:"name"`
	Location      string       `yaml:"location"`
	Format        string       `yaml:"format"`
	Delimiter     string       `yaml:"delimiter"`
	HasHeader     *bool        `yaml:"has_header"`
	Columns       []fileColumn `yaml:"columns"`
	PartitionKeys []fileColumn `yaml:"partition_keys"`
}

type fileColumn struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// LoadFileCatalog reads a YAML catalog. Relative local table locations are
// resolved against the directory of the catalog file.
func LoadFileCatalog(path string) (*FileCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("file catalog: %w", err)
	}
	cat, err := ParseFileCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("file catalog %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range cat.Databases {
		for j := range cat.Databases[i].Tables {
			t := &cat.Databases[i].Tables[j]
			if t.Location != "" && !awsconf.IsS3URI(t.Location) && !filepath.IsAbs(t.Location) {
				t.Location = filepath.Join(base, t.Location)
			}
		}
	}
	return cat, nil
}

// ParseFileCatalog decodes a YAML catalog document and validates column types.
func ParseFileCatalog(data []byte) (*FileCatalog, error) {
	var cat FileCatalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	for _, db := range cat.Databases {
		for _, t := range db.Tables {
			if _, err := t.schema(t.Columns); err != nil {
				return nil, fmt.Errorf("table %s.%s: %w", db.Name, t.Name, err)
			}
		}
	}
	return &cat, nil
}

// GetTable implements Catalog.
func (f *FileCatalog) GetTable(ctx context.Context, database, table string) (*Table, error) {
	for _, db := range f.Databases {
		if db.Name != database {
			continue
		}
		for _, t := range db.Tables {
			if t.Name == table {
				return t.resolve(database)
			}
		}
	}
	return nil, &CatalogError{Op: "get_table", Database: database, Table: table, Err: ErrTableNotFound}
}

func (t fileTable) resolve(database string) (*Table, error) {
	result := &Table{
		Database:  database,
		Name:      t.Name,
		Location:  t.Location,
		Format:    t.Format,
		Delimiter: ',',
		HasHeader: true,
	}
	if result.Format == "" {
		result.Format = "csv"
	}
	if t.Delimiter != "" {
		result.Delimiter = []rune(t.Delimiter)[0]
	}
	if t.HasHeader != nil {
		result.HasHeader = *t.HasHeader
	}

	var err error
	if result.Columns, err = t.schema(t.Columns); err != nil {
		return nil, err
	}
	if result.PartitionKeys, err = t.schema(t.PartitionKeys); err != nil {
		return nil, err
	}
	return result, nil
}

func (t fileTable) schema(cols []fileColumn) (schema.Schema, error) {
	out := make(schema.Schema, 0, len(cols))
	for _, c := range cols {
		typ, err := schema.ParseType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		out = append(out, schema.Column{Name: c.Name, Type: typ})
	}
	return out, nil
}
