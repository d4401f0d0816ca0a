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

// Package job defines the csvTransformation job and runs it: catalog source,
// schema mapping, data quality evaluation and an unpartitioned sink.
package job

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/aaronlmathis/weatheretl/location"
	"github.com/aaronlmathis/weatheretl/quality"
	"github.com/aaronlmathis/weatheretl/transform"
)

// SourceStage reads a catalog table.
type SourceStage struct {
	TransformationCtx string `yaml:"transformation_ctx" validate:"required"`
	Database          string `yaml:"database" validate:"required"`
	Table             string `yaml:"table" validate:"required"`
}

// MappingStage applies a mapping table.
type MappingStage struct {
	TransformationCtx string              `yaml:"transformation_ctx" validate:"required"`
	Mappings          []transform.Mapping `yaml:"mappings" validate:"required,min=1,dive"`
}

// QualityStage evaluates a DQDL ruleset over the mapped records.
type QualityStage struct {
	TransformationCtx string `yaml:"transformation_ctx" validate:"required"`
	Ruleset           string `yaml:"ruleset" validate:"required"`
	EvaluationContext string `yaml:"evaluation_context" validate:"required"`
	EnablePublishing  bool   `yaml:"enable_publishing"`
	Strategy          string `yaml:"strategy" validate:"omitempty,oneof=BEST_EFFORT SYNC"`
	ObservationScope  string `yaml:"observation_scope" validate:"omitempty,oneof=ALL NONE"`
	StopJobOnFailure  bool   `yaml:"stop_job_on_failure"`
}

// SinkStage writes the mapped records.
type SinkStage struct {
	TransformationCtx string   `yaml:"transformation_ctx" validate:"required"`
	Path              string   `yaml:"path" validate:"required"`
	Format            string   `yaml:"format" validate:"omitempty,oneof=csv json parquet"`
	PartitionKeys     []string `yaml:"partition_keys"`
}

// Definition describes one job.
type Definition struct {
	Name    string       `yaml:"name" validate:"required"`
	NameArg string       `yaml:"name_arg" validate:"required"`
	Source  SourceStage  `yaml:"source"`
	Mapping MappingStage `yaml:"mapping"`
	Quality QualityStage `yaml:"quality"`
	Sink    SinkStage    `yaml:"sink"`
}

// DefaultRuleset is evaluated by the quality stage of WeatherCSV.
const DefaultRuleset = `
    Rules = [
        ColumnCount > 0
    ]
`

// WeatherCSV returns the built-in csvTransformation job: the weather table
// is read from the catalog, mapped column for column, checked and written
// as CSV to s3://weather-csv-final-data.
func WeatherCSV() *Definition {
	return &Definition{
		Name:    "csvTransformation",
		NameArg: "csvTransformation",
		Source: SourceStage{
			TransformationCtx: "AWSGlueDataCatalog_node1769546723816",
			Database:          "csv-data-pipline-catalog",
			Table:             "weather_data_csv",
		},
		Mapping: MappingStage{
			TransformationCtx: "ChangeSchema_node1769547381084",
			Mappings:          WeatherMappings(),
		},
		Quality: QualityStage{
			TransformationCtx: "EvaluateDataQuality_node1769546718242",
			Ruleset:           DefaultRuleset,
			EvaluationContext: "EvaluateDataQuality_node1769546718242",
			EnablePublishing:  true,
			Strategy:          string(quality.StrategyBestEffort),
			ObservationScope:  string(quality.ObservationsAll),
		},
		Sink: SinkStage{
			TransformationCtx: "AmazonS3_node1769547446076",
			Path:              "s3://weather-csv-final-data",
			Format:            string(location.FormatCSV),
			PartitionKeys:     []string{},
		},
	}
}

// WeatherMappings is the mapping table of the weather dataset.
func WeatherMappings() []transform.Mapping {
	return []transform.Mapping{
		transform.M("ghi", "long", "ghi", "long"),
		transform.M("dhi", "long", "dhi", "long"),
		transform.M("precip", "double", "precip", "double"),
		transform.M("timestamp_utc", "string", "timestamp_utc", "string"),
		transform.M("temp", "double", "temp", "double"),
		transform.M("app_temp", "double", "app_temp", "double"),
		transform.M("dni", "long", "dni", "long"),
		transform.M("snow_depth", "long", "snow_depth", "long"),
		transform.M("wind_cdir", "string", "wind_cdir", "string"),
		transform.M("rh", "long", "rh", "long"),
		transform.M("pod", "string", "pod", "string"),
		transform.M("pop", "long", "pop", "long"),
		transform.M("ozone", "long", "ozone", "long"),
		transform.M("clouds_hi", "long", "clouds_hi", "long"),
		transform.M("clouds", "long", "clouds", "long"),
		transform.M("vis", "double", "vis", "double"),
		transform.M("wind_spd", "double", "wind_spd", "double"),
		transform.M("wind_cdir_full", "string", "wind_cdir_full", "string"),
		transform.M("slp", "long", "slp", "long"),
		transform.M("datetime", "string", "datetime", "string"),
		transform.M("ts", "long", "ts", "long"),
		transform.M("pres", "long", "pres", "long"),
		transform.M("dewpt", "double", "dewpt", "double"),
		transform.M("uv", "long", "uv", "long"),
		transform.M("clouds_mid", "long", "clouds_mid", "long"),
		transform.M("wind_dir", "long", "wind_dir", "long"),
		transform.M("snow", "long", "snow", "long"),
		transform.M("clouds_low", "long", "clouds_low", "long"),
		transform.M("solar_rad", "double", "solar_rad", "double"),
		transform.M("wind_gust_spd", "double", "wind_gust_spd", "double"),
		transform.M("timestamp_local", "string", "timestamp_local", "string"),
		transform.M("`description(output)`", "string", "`description(output)`", "string"),
		transform.M("code", "long", "code", "long"),
	}
}

// LoadDefinition reads and validates a YAML job definition.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("job definition: %w", err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("job definition %s: %w", path, err)
	}
	return def, nil
}

// ParseDefinition decodes and validates a YAML job definition. Quality
// publishing defaults to enabled when the key is absent.
func ParseDefinition(data []byte) (*Definition, error) {
	def := &Definition{Quality: QualityStage{EnablePublishing: true}}
	if err := yaml.Unmarshal(data, def); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks required fields, the mapping table, the ruleset and the
// sink settings.
func (d *Definition) Validate() error {
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid job definition: %s failed on %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid job definition: %w", err)
	}
	if _, err := transform.NewMapper(d.Mapping.Mappings); err != nil {
		return fmt.Errorf("invalid job definition: %w", err)
	}
	if _, err := quality.ParseRuleset(d.Quality.Ruleset); err != nil {
		return fmt.Errorf("invalid job definition: ruleset: %w", err)
	}
	if err := location.ValidatePartitionKeys(d.Sink.PartitionKeys); err != nil {
		return fmt.Errorf("invalid job definition: %w", err)
	}
	if _, err := location.Parse(d.Sink.Path); err != nil {
		return fmt.Errorf("invalid job definition: sink: %w", err)
	}

	ids := map[string]bool{}
	for _, id := range []string{d.Source.TransformationCtx, d.Mapping.TransformationCtx, d.Quality.TransformationCtx, d.Sink.TransformationCtx} {
		if ids[id] {
			return fmt.Errorf("invalid job definition: transformation_ctx %q used twice", id)
		}
		ids[id] = true
	}
	return nil
}

// JobName resolves the job name from the run arguments: the value of the
// NameArg argument.
func (d *Definition) JobName(args map[string]string) (string, error) {
	name := args[d.NameArg]
	if name == "" {
		return "", fmt.Errorf("missing required argument --%s", d.NameArg)
	}
	return name, nil
}

// format returns the sink format, csv when unset.
func (s SinkStage) format() (location.Format, error) {
	if s.Format == "" {
		return location.FormatCSV, nil
	}
	return location.ParseFormat(s.Format)
}
