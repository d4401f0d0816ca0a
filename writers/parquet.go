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

package writers

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/weatheretl/core"
	"github.com/aaronlmathis/weatheretl/schema"
)

// ParquetWriterError wraps Parquet-specific write errors with context about the operation.
type ParquetWriterError struct {
	Op  string // Operation that failed (e.g., "schema", "append_value", "write_batch")
	Err error  // Underlying error
}

// Error returns the error string for ParquetWriterError.
func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for ParquetWriterError.
func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// ParquetWriterOptions configures the Parquet writer.
type ParquetWriterOptions struct {
	BatchSize    int64                // Number of records to buffer before writing
	Compression  compress.Compression // Compression algorithm
	RowGroupSize int64                // Maximum rows per row group
	Metadata     map[string]string    // Arrow schema metadata stored in the file
}

// WriterStats holds statistics about the Parquet writer's performance.
type WriterStats struct {
	RecordsWritten  int64
	BatchesWritten  int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// WriterOption represents a configuration function for ParquetWriterOptions.
type WriterOption func(*ParquetWriterOptions)

// WithBatchSize sets the number of records to buffer before writing a batch.
func WithBatchSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCompression sets the Parquet compression algorithm.
func WithCompression(compression compress.Compression) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Compression = compression
	}
}

// WithRowGroupSize sets the row group size for the Parquet file.
func WithRowGroupSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.RowGroupSize = size
	}
}

// WithMetadata sets key/value metadata on the Arrow schema.
func WithMetadata(metadata map[string]string) WriterOption {
	return func(opts *ParquetWriterOptions) {
		if opts.Metadata == nil {
			opts.Metadata = make(map[string]string)
		}
		for k, v := range metadata {
			opts.Metadata[k] = v
		}
	}
}

// ParquetWriter implements core.DataSink for Parquet output. The Arrow schema
// is derived from the column schema given at construction, so every batch has
// the same layout regardless of which values happen to be null.
type ParquetWriter struct {
	closer       io.Closer
	writer       *pqarrow.FileWriter
	columns      schema.Schema
	arrowSchema  *arrow.Schema
	builder      *array.RecordBuilder
	recordBuffer []core.Record
	opts         ParquetWriterOptions
	stats        WriterStats
	errorState   bool
	closed       bool
	mu           sync.Mutex
}

// NewParquetWriter creates a Parquet writer over w for the given columns.
func NewParquetWriter(w io.WriteCloser, columns schema.Schema, options ...WriterOption) (*ParquetWriter, error) {
	if len(columns) == 0 {
		return nil, &ParquetWriterError{Op: "schema", Err: fmt.Errorf("at least one column is required")}
	}

	opts := ParquetWriterOptions{
		BatchSize:    1000,
		Compression:  compress.Codecs.Snappy,
		RowGroupSize: 10000,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}

	arrowSchema, err := ArrowSchema(columns, opts.Metadata)
	if err != nil {
		return nil, &ParquetWriterError{Op: "schema", Err: err}
	}

	props := parquet.NewWriterProperties(
		parquet.WithCompression(opts.Compression),
		parquet.WithMaxRowGroupLength(opts.RowGroupSize),
	)

	// The pqarrow writer closes sinks that implement io.Closer; the
	// underlying writer is closed here instead so Close can report it.
	fw, err := pqarrow.NewFileWriter(arrowSchema, struct{ io.Writer }{w}, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return nil, &ParquetWriterError{Op: "create_writer", Err: err}
	}

	return &ParquetWriter{
		closer:       w,
		writer:       fw,
		columns:      columns,
		arrowSchema:  arrowSchema,
		builder:      array.NewRecordBuilder(memory.NewGoAllocator(), arrowSchema),
		recordBuffer: make([]core.Record, 0, opts.BatchSize),
		opts:         opts,
		stats:        WriterStats{NullValueCounts: make(map[string]int64)},
	}, nil
}

// ArrowSchema converts a column schema to a nullable Arrow schema.
func ArrowSchema(columns schema.Schema, metadata map[string]string) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, len(columns))
	for _, col := range columns {
		dt, err := arrowType(col.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		fields = append(fields, arrow.Field{Name: col.Name, Type: dt, Nullable: true})
	}
	var md *arrow.Metadata
	if len(metadata) > 0 {
		m := arrow.MetadataFrom(metadata)
		md = &m
	}
	return arrow.NewSchema(fields, md), nil
}

func arrowType(t schema.Type) (arrow.DataType, error) {
	switch t {
	case schema.TypeLong:
		return arrow.PrimitiveTypes.Int64, nil
	case schema.TypeInt:
		return arrow.PrimitiveTypes.Int32, nil
	case schema.TypeDouble:
		return arrow.PrimitiveTypes.Float64, nil
	case schema.TypeFloat:
		return arrow.PrimitiveTypes.Float32, nil
	case schema.TypeString:
		return arrow.BinaryTypes.String, nil
	case schema.TypeBoolean:
		return arrow.FixedWidthTypes.Boolean, nil
	default:
		return nil, fmt.Errorf("unsupported type %q", t)
	}
}

// Stats returns the current statistics of the Parquet writer.
func (p *ParquetWriter) Stats() WriterStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	stats := p.stats
	stats.NullValueCounts = make(map[string]int64, len(p.stats.NullValueCounts))
	for k, v := range p.stats.NullValueCounts {
		stats.NullValueCounts[k] = v
	}
	return stats
}

// Schema returns the Arrow schema of the output file.
func (p *ParquetWriter) Schema() *arrow.Schema {
	return p.arrowSchema
}

// Write implements the core.DataSink interface.
// Buffers records and writes in batches.
func (p *ParquetWriter) Write(ctx context.Context, record core.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("parquet writer is closed")}
	}
	if p.errorState {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}
	if err := ctx.Err(); err != nil {
		return &ParquetWriterError{Op: "write", Err: err}
	}

	p.recordBuffer = append(p.recordBuffer, record)
	p.stats.RecordsWritten++

	if int64(len(p.recordBuffer)) >= p.opts.BatchSize {
		if err := p.flushBatch(); err != nil {
			p.errorState = true
			return err
		}
	}
	return nil
}

// Flush implements the core.DataSink interface.
func (p *ParquetWriter) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.flushBatch(); err != nil {
		p.errorState = true
		return err
	}
	return nil
}

// Close implements the core.DataSink interface.
// Flushes buffered records, writes the file footer and closes the underlying writer.
func (p *ParquetWriter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	defer p.builder.Release()

	var firstErr error
	if !p.errorState {
		firstErr = p.flushBatch()
	}
	if err := p.writer.Close(); err != nil && firstErr == nil {
		firstErr = &ParquetWriterError{Op: "close_writer", Err: err}
	}
	if err := p.closer.Close(); err != nil && firstErr == nil {
		firstErr = &ParquetWriterError{Op: "close", Err: err}
	}
	return firstErr
}

// flushBatch writes the current buffer as one Arrow record (must hold mutex).
func (p *ParquetWriter) flushBatch() error {
	if len(p.recordBuffer) == 0 {
		return nil
	}

	start := time.Now()

	row := make([]interface{}, len(p.columns))
	for _, record := range p.recordBuffer {
		// Coerce the whole row first so builders never hold a partial row.
		for i, col := range p.columns {
			v, err := schema.Coerce(record[col.Name], col.Type)
			if err != nil {
				return &ParquetWriterError{Op: "append_value", Err: fmt.Errorf("column %s: %w", col.Name, err)}
			}
			row[i] = v
		}
		for i, col := range p.columns {
			if row[i] == nil {
				p.builder.Field(i).AppendNull()
				p.stats.NullValueCounts[col.Name]++
				continue
			}
			appendValue(p.builder.Field(i), row[i])
		}
	}

	rec := p.builder.NewRecord()
	defer rec.Release()

	if err := p.writer.Write(rec); err != nil {
		return &ParquetWriterError{Op: "write_batch", Err: err}
	}

	p.stats.BatchesWritten++
	p.stats.FlushDuration += time.Since(start)
	p.stats.LastFlushTime = time.Now()
	p.recordBuffer = p.recordBuffer[:0]
	return nil
}

// appendValue appends a value already coerced to the builder's column type.
func appendValue(b array.Builder, v interface{}) {
	switch b := b.(type) {
	case *array.Int64Builder:
		b.Append(v.(int64))
	case *array.Int32Builder:
		b.Append(int32(v.(int64)))
	case *array.Float64Builder:
		b.Append(v.(float64))
	case *array.Float32Builder:
		b.Append(float32(v.(float64)))
	case *array.StringBuilder:
		b.Append(v.(string))
	case *array.BooleanBuilder:
		b.Append(v.(bool))
	}
}
