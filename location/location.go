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

// Package location turns an output URI into sinks that write one object per
// run. Local directories and S3 prefixes are supported.
package location

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aaronlmathis/weatheretl/awsconf"
	"github.com/aaronlmathis/weatheretl/core"
	"github.com/aaronlmathis/weatheretl/schema"
	"github.com/aaronlmathis/weatheretl/writers"
)

// ErrPartitioningUnsupported is returned for a non-empty partition key list.
var ErrPartitioningUnsupported = errors.New("partitioned output is not supported")

// Format represents a supported sink format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts csv, json (or jsonl) and parquet, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "json", "jsonl":
		return FormatJSON, nil
	case "parquet":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unsupported output format %q", s)
	}
}

// Extension returns the file extension including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

func (f Format) contentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}

// RunName names the output of a run started at t.
func RunName(t time.Time) string {
	return fmt.Sprintf("run-%d", t.UnixMilli())
}

// ObjectName is the file or object name a run writes under a location.
func ObjectName(runName string, format Format) string {
	return runName + "-part-r-00000" + format.Extension()
}

// ValidatePartitionKeys rejects any partition keys.
func ValidatePartitionKeys(keys []string) error {
	if len(keys) > 0 {
		return fmt.Errorf("%w: %s", ErrPartitioningUnsupported, strings.Join(keys, ","))
	}
	return nil
}

// Location creates sinks for one output location.
type Location interface {
	NewSink(ctx context.Context, format Format, columns schema.Schema, runName string) (*Sink, error)
	String() string
}

// Option configures Parse.
type Option func(*options)

type options struct {
	aws      awsconf.Options
	uploader Uploader
}

// WithAWSOptions sets the AWS configuration used for s3:// locations.
func WithAWSOptions(opts awsconf.Options) Option {
	return func(o *options) { o.aws = opts }
}

// WithUploader uses an existing uploader for s3:// locations.
func WithUploader(u Uploader) Option {
	return func(o *options) { o.uploader = u }
}

// Parse maps a URI to a Location. s3:// URIs become an S3Location; file://
// URIs and plain paths become a FileLocation.
func Parse(uri string, opts ...Option) (Location, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if uri == "" {
		return nil, fmt.Errorf("output location is empty")
	}
	if awsconf.IsS3URI(uri) {
		bucket, prefix, err := awsconf.ParseS3URI(uri)
		if err != nil {
			return nil, err
		}
		return &S3Location{Bucket: bucket, Prefix: prefix, AWS: o.aws, Uploader: o.uploader}, nil
	}
	if strings.HasPrefix(uri, "file://") {
		u, err := url.Parse(uri)
		if err != nil {
			return nil, fmt.Errorf("parse location %q: %w", uri, err)
		}
		return &FileLocation{Dir: u.Host + u.Path}, nil
	}
	if i := strings.Index(uri, "://"); i > 0 {
		return nil, fmt.Errorf("unsupported location scheme %q", uri[:i])
	}
	return &FileLocation{Dir: uri}, nil
}

// object is one destination file or object. Close commits it and Abort
// discards it.
type object interface {
	io.WriteCloser
	Abort(cause error) error
}

// Sink is a core.DataSink that writes one object and reports what it wrote.
type Sink struct {
	core.DataSink
	uri     string
	digest  *writers.DigestWriter
	obj     object
	mu      sync.Mutex
	aborted bool
}

func newSink(obj object, uri string, format Format, columns schema.Schema) (*Sink, error) {
	digest := writers.NewDigestWriter(obj)

	var (
		w   core.DataSink
		err error
	)
	switch format {
	case FormatCSV:
		w, err = writers.NewCSVWriter(digest, writers.WithSchemaHeaders(columns))
	case FormatJSON:
		w = writers.NewJSONWriter(digest)
	case FormatParquet:
		w, err = writers.NewParquetWriter(digest, columns)
	default:
		err = fmt.Errorf("unsupported output format %q", format)
	}
	if err != nil {
		obj.Abort(err)
		return nil, err
	}

	return &Sink{DataSink: w, uri: uri, digest: digest, obj: obj}, nil
}

// URI returns where the sink's object is committed on Close.
func (s *Sink) URI() string {
	return s.uri
}

// Digest returns the xxh3 digest of the bytes written.
func (s *Sink) Digest() string {
	return s.digest.Digest()
}

// BytesWritten returns the number of bytes written.
func (s *Sink) BytesWritten() int64 {
	return s.digest.BytesWritten()
}

// Close flushes the format writer and commits the object.
func (s *Sink) Close() error {
	s.mu.Lock()
	aborted := s.aborted
	s.mu.Unlock()
	if aborted {
		return nil
	}
	return s.DataSink.Close()
}

// Abort discards the object. Nothing is visible at the location afterwards.
func (s *Sink) Abort(cause error) error {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return nil
	}
	s.aborted = true
	s.mu.Unlock()

	if cause == nil {
		cause = errors.New("sink aborted")
	}
	err := s.obj.Abort(cause)
	// Release the format writer; its writes now fail against the aborted object.
	_ = s.DataSink.Close()
	return err
}
