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
	"encoding/csv"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/weatheretl/core"
	"github.com/aaronlmathis/weatheretl/schema"
)

// mockWriteCloser records output and can be told to fail.
type mockWriteCloser struct {
	strings.Builder
	closed    bool
	failWrite bool
	failClose bool
	mu        sync.Mutex
}

func (m *mockWriteCloser) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return 0, io.ErrUnexpectedEOF
	}
	return m.Builder.Write(p)
}

func (m *mockWriteCloser) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.failClose {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func (m *mockWriteCloser) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Builder.String()
}

func (m *mockWriteCloser) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func readCSV(t *testing.T, s string) [][]string {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(s)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVWriter_BasicFunctionality(t *testing.T) {
	mock := &mockWriteCloser{}
	writer, err := NewCSVWriter(mock)
	require.NoError(t, err)

	err = writer.Write(context.Background(), core.Record{"name": "John Doe", "id": int64(1), "age": int64(30)})
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	rows := readCSV(t, mock.String())
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"age", "id", "name"}, rows[0])
	assert.Equal(t, []string{"30", "1", "John Doe"}, rows[1])
	assert.True(t, mock.IsClosed())
}

func TestCSVWriter_SchemaHeaders(t *testing.T) {
	s := schema.Schema{
		{Name: "temp", Type: schema.TypeDouble},
		{Name: "ghi", Type: schema.TypeLong},
		{Name: "description(output)", Type: schema.TypeString},
	}
	mock := &mockWriteCloser{}
	writer, err := NewCSVWriter(mock, WithSchemaHeaders(s))
	require.NoError(t, err)

	err = writer.Write(context.Background(), core.Record{
		"ghi":                 int64(0),
		"temp":                float64(7.5),
		"description(output)": "Overcast clouds, light wind",
	})
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	rows := readCSV(t, mock.String())
	assert.Equal(t, []string{"temp", "ghi", "description(output)"}, rows[0])
	assert.Equal(t, []string{"7.5", "0", "Overcast clouds, light wind"}, rows[1])
	assert.Equal(t, s.Names(), writer.Headers())
}

func TestCSVWriter_CustomDelimiter(t *testing.T) {
	mock := &mockWriteCloser{}
	writer, err := NewCSVWriter(mock, WithComma(';'), WithHeaders([]string{"name", "value"}))
	require.NoError(t, err)

	require.NoError(t, writer.Write(context.Background(), core.Record{"name": "test", "value": "data"}))
	require.NoError(t, writer.Close())

	assert.Equal(t, "name;value\ntest;data\n", mock.String())
}

func TestCSVWriter_NoHeaders(t *testing.T) {
	mock := &mockWriteCloser{}
	writer, err := NewCSVWriter(mock, WithWriteHeader(false), WithHeaders([]string{"name", "value"}))
	require.NoError(t, err)

	require.NoError(t, writer.Write(context.Background(), core.Record{"name": "test", "value": "data"}))
	require.NoError(t, writer.Close())

	assert.Equal(t, "test,data\n", mock.String())
}

func TestCSVWriter_EmptyOutputKeepsHeader(t *testing.T) {
	mock := &mockWriteCloser{}
	writer, err := NewCSVWriter(mock, WithHeaders([]string{"a", "b"}))
	require.NoError(t, err)

	require.NoError(t, writer.Close())
	assert.Equal(t, "a,b\n", mock.String())
}

func TestCSVWriter_BatchedWrites(t *testing.T) {
	mock := &mockWriteCloser{}
	writer, err := NewCSVWriter(mock, WithCSVBatchSize(3), WithHeaders([]string{"id", "value"}))
	require.NoError(t, err)

	ctx := context.Background()
	for i := int64(0); i < 5; i++ {
		require.NoError(t, writer.Write(ctx, core.Record{"id": i, "value": i * 10}))
	}

	stats := writer.Stats()
	assert.Equal(t, int64(1), stats.FlushCount)

	require.NoError(t, writer.Flush())
	require.NoError(t, writer.Close())

	rows := readCSV(t, mock.String())
	assert.Len(t, rows, 6)
	assert.Equal(t, []string{"4", "40"}, rows[5])

	stats = writer.Stats()
	assert.Equal(t, int64(5), stats.RecordsWritten)
	assert.Equal(t, int64(2), stats.FlushCount)
}

func TestCSVWriter_NullValueTracking(t *testing.T) {
	mock := &mockWriteCloser{}
	writer, err := NewCSVWriter(mock, WithHeaders([]string{"name", "age", "email"}))
	require.NoError(t, err)

	ctx := context.Background()
	records := []core.Record{
		{"name": "Alice", "age": int64(30), "email": nil},
		{"name": "Bob", "age": nil, "email": "bob@test.com"},
		{"name": nil, "age": int64(25), "email": nil},
	}
	for _, record := range records {
		require.NoError(t, writer.Write(ctx, record))
	}
	require.NoError(t, writer.Close())

	stats := writer.Stats()
	assert.Equal(t, int64(2), stats.NullValueCounts["email"])
	assert.Equal(t, int64(1), stats.NullValueCounts["age"])
	assert.Equal(t, int64(1), stats.NullValueCounts["name"])

	rows := readCSV(t, mock.String())
	assert.Equal(t, []string{"Alice", "30", ""}, rows[1])
	assert.Equal(t, []string{"Bob", "", "bob@test.com"}, rows[2])
	assert.Equal(t, []string{"", "25", ""}, rows[3])
}

func TestCSVWriter_ValueFormatting(t *testing.T) {
	mock := &mockWriteCloser{}
	writer, err := NewCSVWriter(mock, WithHeaders([]string{"string", "long", "double", "whole", "small", "bool"}))
	require.NoError(t, err)

	err = writer.Write(context.Background(), core.Record{
		"string": "hello world",
		"long":   int64(42),
		"double": 3.14159,
		"whole":  float64(1013),
		"small":  0.000012,
		"bool":   true,
	})
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	rows := readCSV(t, mock.String())
	assert.Equal(t, []string{"hello world", "42", "3.14159", "1013", "0.000012", "true"}, rows[1])
}

func TestCSVWriter_ErrorHandling(t *testing.T) {
	t.Run("write_after_error", func(t *testing.T) {
		mock := &mockWriteCloser{failWrite: true}
		writer, err := NewCSVWriter(mock, WithCSVBatchSize(1))
		require.NoError(t, err)

		ctx := context.Background()
		err = writer.Write(ctx, core.Record{"test": "value"})
		require.Error(t, err)
		var csvErr *CSVWriterError
		assert.ErrorAs(t, err, &csvErr)

		mock.failWrite = false
		err = writer.Write(ctx, core.Record{"test": "value"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error state")
	})

	t.Run("close_error", func(t *testing.T) {
		mock := &mockWriteCloser{failClose: true}
		writer, err := NewCSVWriter(mock)
		require.NoError(t, err)

		require.NoError(t, writer.Write(context.Background(), core.Record{"test": "value"}))
		assert.Error(t, writer.Close())
	})

	t.Run("flush_error_on_close", func(t *testing.T) {
		mock := &mockWriteCloser{}
		writer, err := NewCSVWriter(mock)
		require.NoError(t, err)

		require.NoError(t, writer.Write(context.Background(), core.Record{"test": "value"}))
		mock.failWrite = true
		assert.Error(t, writer.Close())
		assert.True(t, mock.IsClosed())
	})

	t.Run("cancelled_context", func(t *testing.T) {
		writer, err := NewCSVWriter(&mockWriteCloser{})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, writer.Write(ctx, core.Record{"test": "value"}), context.Canceled)
	})

	t.Run("double_close", func(t *testing.T) {
		writer, err := NewCSVWriter(&mockWriteCloser{})
		require.NoError(t, err)
		require.NoError(t, writer.Close())
		assert.NoError(t, writer.Close())
	})
}

func TestCSVWriter_ConcurrentWrites(t *testing.T) {
	mock := &mockWriteCloser{}
	writer, err := NewCSVWriter(mock, WithHeaders([]string{"worker", "n"}), WithCSVBatchSize(10))
	require.NoError(t, err)

	ctx := context.Background()
	var wg sync.WaitGroup
	for w := int64(0); w < 4; w++ {
		wg.Add(1)
		go func(w int64) {
			defer wg.Done()
			for n := int64(0); n < 25; n++ {
				assert.NoError(t, writer.Write(ctx, core.Record{"worker": w, "n": n}))
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, writer.Close())

	rows := readCSV(t, mock.String())
	assert.Len(t, rows, 101)
}

func TestCSVWriter_RowsAreSnapshots(t *testing.T) {
	mock := &mockWriteCloser{}
	writer, err := NewCSVWriter(mock, WithHeaders([]string{"pod", "temp"}))
	require.NoError(t, err)

	record := core.Record{"pod": "n", "temp": 12.3}
	require.NoError(t, writer.Write(context.Background(), record))
	record["temp"] = 99.9
	require.NoError(t, writer.Close())

	rows := readCSV(t, mock.String())
	assert.Equal(t, []string{"n", "12.3"}, rows[1])

	err = writer.Write(context.Background(), record)
	assert.ErrorContains(t, err, "closed")
}
