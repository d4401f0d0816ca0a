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

package job

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/weatheretl/schema"
)

func TestWeatherCSV(t *testing.T) {
	def := WeatherCSV()
	require.NoError(t, def.Validate())

	assert.Equal(t, "csv-data-pipline-catalog", def.Source.Database)
	assert.Equal(t, "weather_data_csv", def.Source.Table)
	assert.Equal(t, "s3://weather-csv-final-data", def.Sink.Path)
	assert.Empty(t, def.Sink.PartitionKeys)
	assert.Equal(t, "BEST_EFFORT", def.Quality.Strategy)
	assert.Equal(t, "ALL", def.Quality.ObservationScope)
	assert.True(t, def.Quality.EnablePublishing)
	assert.False(t, def.Quality.StopJobOnFailure)

	require.Len(t, def.Mapping.Mappings, 33)
	for _, m := range def.Mapping.Mappings {
		assert.Equal(t, m.SourceName, m.TargetName)
		assert.Equal(t, m.SourceType, m.TargetType)
	}
	assert.Equal(t, "`description(output)`", def.Mapping.Mappings[31].SourceName)
	assert.Equal(t, schema.TypeLong, def.Mapping.Mappings[32].TargetType)
}

func TestJobName(t *testing.T) {
	def := WeatherCSV()

	name, err := def.JobName(map[string]string{"csvTransformation": "weather-nightly"})
	require.NoError(t, err)
	assert.Equal(t, "weather-nightly", name)

	_, err = def.JobName(map[string]string{})
	assert.ErrorContains(t, err, "--csvTransformation")
}

const renameDefinition = `
name: weather-rename
name_arg: csvTransformation
source:
  transformation_ctx: read
  database: local
  table: weather
mapping:
  transformation_ctx: map
  mappings:
    - {source_name: temp, source_type: double, target_name: temperature, target_type: double}
    - {source_name: ts, source_type: bigint, target_name: ts, target_type: string}
quality:
  transformation_ctx: dq
  evaluation_context: dq
  ruleset: "Rules = [ IsComplete \"ts\" ]"
sink:
  transformation_ctx: write
  path: ./out
  format: json
`

func TestParseDefinition(t *testing.T) {
	def, err := ParseDefinition([]byte(renameDefinition))
	require.NoError(t, err)

	assert.Equal(t, "weather-rename", def.Name)
	require.Len(t, def.Mapping.Mappings, 2)
	assert.Equal(t, "temperature", def.Mapping.Mappings[0].TargetName)
	assert.Equal(t, schema.Type("bigint"), def.Mapping.Mappings[1].SourceType)
	assert.True(t, def.Quality.EnablePublishing, "publishing defaults to enabled")
	assert.Empty(t, def.Quality.Strategy)

	format, err := def.Sink.format()
	require.NoError(t, err)
	assert.Equal(t, "json", string(format))
}

func TestLoadDefinition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(renameDefinition), 0o644))

	def, err := LoadDefinition(path)
	require.NoError(t, err)
	assert.Equal(t, "weather-rename", def.Name)

	_, err = LoadDefinition(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefinitionValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Definition)
		want   string
	}{
		{"missing table", func(d *Definition) { d.Source.Table = "" }, "Table"},
		{"no mappings", func(d *Definition) { d.Mapping.Mappings = nil }, "Mappings"},
		{"bad strategy", func(d *Definition) { d.Quality.Strategy = "EVENTUALLY" }, "Strategy"},
		{"bad scope", func(d *Definition) { d.Quality.ObservationScope = "SOME" }, "ObservationScope"},
		{"bad format", func(d *Definition) { d.Sink.Format = "avro" }, "Format"},
		{"duplicate target", func(d *Definition) {
			d.Mapping.Mappings[1].TargetName = d.Mapping.Mappings[0].TargetName
		}, "declared by rules"},
		{"bad ruleset", func(d *Definition) { d.Quality.Ruleset = "Rules = [ ColumnCount >> 0 ]" }, "ruleset"},
		{"partitioned", func(d *Definition) { d.Sink.PartitionKeys = []string{"datetime"} }, "partition"},
		{"bad sink scheme", func(d *Definition) { d.Sink.Path = "ftp://host/out" }, "sink"},
		{"shared ctx", func(d *Definition) { d.Sink.TransformationCtx = d.Source.TransformationCtx }, "used twice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := WeatherCSV()
			tt.modify(def)
			err := def.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
