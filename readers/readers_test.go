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
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/weatheretl/catalog"
	"github.com/aaronlmathis/weatheretl/core"
	"github.com/aaronlmathis/weatheretl/schema"
)

func readAll(t *testing.T, src core.DataSource) []core.Record {
	t.Helper()
	var out []core.Record
	for {
		rec, err := src.Read(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestCSVReaderInference(t *testing.T) {
	in := "\ufeffts, temp ,pod,flag\n1704067200,12.3,n,true\n1704070800,,d,false\n"
	r, err := NewCSVReader(io.NopCloser(strings.NewReader(in)))
	require.NoError(t, err)
	assert.Equal(t, []string{"ts", "temp", "pod", "flag"}, r.Headers())

	records := readAll(t, r)
	require.Len(t, records, 2)
	assert.Equal(t, core.Record{"ts": int64(1704067200), "temp": 12.3, "pod": "n", "flag": true}, records[0])
	assert.Nil(t, records[1]["temp"])

	stats := r.Stats()
	assert.Equal(t, int64(2), stats.RecordsRead)
	assert.Equal(t, int64(1), stats.NullValueCounts["temp"])
	require.NoError(t, r.Close())
}

func TestCSVReaderSchema(t *testing.T) {
	in := "ts;temp;wind_cdir\n1704067200;7;045\n"
	r, err := NewCSVReader(io.NopCloser(strings.NewReader(in)),
		WithCSVComma(';'),
		WithCSVSchema(schema.Schema{
			{Name: "ts", Type: schema.TypeLong},
			{Name: "temp", Type: schema.TypeDouble},
			{Name: "wind_cdir", Type: schema.TypeString},
		}),
	)
	require.NoError(t, err)

	records := readAll(t, r)
	require.Len(t, records, 1)
	assert.Equal(t, core.Record{"ts": int64(1704067200), "temp": 7.0, "wind_cdir": "045"}, records[0])
}

func TestCSVReaderSchemaMismatch(t *testing.T) {
	in := "ts\nyesterday\n"
	r, err := NewCSVReader(io.NopCloser(strings.NewReader(in)),
		WithCSVSchema(schema.Schema{{Name: "ts", Type: schema.TypeLong}}))
	require.NoError(t, err)

	_, err = r.Read(context.Background())
	var csvErr *CSVReaderError
	require.ErrorAs(t, err, &csvErr)
	assert.Equal(t, "parse_value", csvErr.Op)
	assert.Contains(t, err.Error(), `column "ts"`)
}

func TestCSVReaderNoHeader(t *testing.T) {
	r, err := NewCSVReader(io.NopCloser(strings.NewReader("1,2,3\n")),
		WithCSVHasHeaders(false),
		WithCSVHeaders([]string{"a", "b"}))
	require.NoError(t, err)

	records := readAll(t, r)
	require.Len(t, records, 1)
	assert.Equal(t, core.Record{"a": int64(1), "b": int64(2), "col_2": int64(3)}, records[0])
}

func TestCSVReaderCancelled(t *testing.T) {
	r, err := NewCSVReader(io.NopCloser(strings.NewReader("a\n1\n")))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCSVReaderEmptyInput(t *testing.T) {
	_, err := NewCSVReader(io.NopCloser(strings.NewReader("")))
	assert.ErrorIs(t, err, io.EOF)
}

// fakeS3 serves objects from memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	gets    []string
	listErr error
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	prefix := aws.ToString(in.Prefix)
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, s3types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(f.objects[k]))),
			LastModified: aws.Time(time.Unix(1704067200, 0)),
			ETag:         aws.String(`"etag"`),
		})
	}
	return out, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	body, ok := f.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	f.gets = append(f.gets, key)
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewBufferString(body))}, nil
}

func weatherBucket() *fakeS3 {
	return &fakeS3{objects: map[string]string{
		"weather/part-0001.csv":     "ts,temp\n2,2.5\n",
		"weather/part-0000.csv":     "ts,temp\n1,1.5\n",
		"weather/empty.csv":         "",
		"weather/_SUCCESS":          "",
		"weather/nested/part-a.csv": "ts,temp\n3,3.5\n",
		"weather/notes.txt":         "not csv",
		"weather-archive/old.csv":   "ts,temp\n9,9.5\n",
	}}
}

func TestS3ReaderReadsObjectsInKeyOrder(t *testing.T) {
	client := weatherBucket()
	r, err := NewS3Reader(context.Background(),
		WithS3Client(client),
		WithS3Bucket("weather-raw"),
		WithS3Prefix("weather/"),
		WithS3Suffix(".csv"),
	)
	require.NoError(t, err)

	var keys []string
	for _, o := range r.Objects() {
		keys = append(keys, o.Key)
	}
	assert.Equal(t, []string{"weather/empty.csv", "weather/nested/part-a.csv", "weather/part-0000.csv", "weather/part-0001.csv"}, keys)

	records := readAll(t, r)
	require.Len(t, records, 3)
	assert.Equal(t, int64(3), records[0]["ts"])
	assert.Equal(t, int64(1), records[1]["ts"])
	assert.Equal(t, int64(2), records[2]["ts"])

	stats := r.Stats()
	assert.Equal(t, int64(3), stats.RecordsRead)
	assert.Equal(t, int64(3), stats.ObjectsRead)
	require.NoError(t, r.Close())
}

func TestS3ReaderNonRecursive(t *testing.T) {
	r, err := NewS3Reader(context.Background(),
		WithS3Client(weatherBucket()),
		WithS3Bucket("weather-raw"),
		WithS3Prefix("weather/"),
		WithS3Recursive(false),
		WithS3FilePattern(`^part-\d+\.csv$`),
	)
	require.NoError(t, err)
	assert.Len(t, r.Objects(), 2)
}

func TestS3ReaderErrors(t *testing.T) {
	_, err := NewS3Reader(context.Background(), WithS3Client(weatherBucket()))
	var s3Err *S3ReaderError
	require.ErrorAs(t, err, &s3Err)
	assert.Equal(t, "validate_options", s3Err.Op)

	_, err = NewS3Reader(context.Background(),
		WithS3Client(&fakeS3{listErr: errors.New("AccessDenied")}),
		WithS3Bucket("weather-raw"))
	require.ErrorAs(t, err, &s3Err)
	assert.Equal(t, "list_objects", s3Err.Op)
	assert.ErrorContains(t, err, "AccessDenied")

	_, err = NewS3Reader(context.Background(),
		WithS3Client(weatherBucket()),
		WithS3Bucket("weather-raw"),
		WithS3FilePattern("("))
	assert.Error(t, err)
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func TestFileReader(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"b.csv":         "ts\n2\n",
		"a.csv":         "ts\n1\n",
		"empty.csv":     "",
		"_SUCCESS":      "",
		".hidden/c.csv": "ts\n99\n",
		"sub/c.csv":     "ts\n3\n",
		"readme.md":     "# data",
	})

	r, err := NewFileReader(dir, ".csv")
	require.NoError(t, err)
	assert.Len(t, r.Files(), 4)

	records := readAll(t, r)
	var got []int64
	for _, rec := range records {
		got = append(got, rec["ts"].(int64))
	}
	assert.Equal(t, []int64{1, 2, 3}, got)
	assert.Equal(t, int64(3), r.RecordsRead())
	require.NoError(t, r.Close())
}

func TestFileReaderSingleFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{"weather.txt": "ts|temp\n1|2.5\n"})

	r, err := NewFileReader(filepath.Join(dir, "weather.txt"), ".csv", WithCSVComma('|'))
	require.NoError(t, err)
	records := readAll(t, r)
	require.Len(t, records, 1)
	assert.Equal(t, 2.5, records[0]["temp"])
}

func TestFileReaderMissing(t *testing.T) {
	_, err := NewFileReader(filepath.Join(t.TempDir(), "missing"), ".csv")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type staticCatalog map[string]*catalog.Table

func (c staticCatalog) GetTable(ctx context.Context, database, table string) (*catalog.Table, error) {
	t, ok := c[database+"."+table]
	if !ok {
		return nil, &catalog.CatalogError{Op: "get_table", Database: database, Table: table, Err: catalog.ErrTableNotFound}
	}
	return t, nil
}

func weatherTable(location string) *catalog.Table {
	return &catalog.Table{
		Database:  "csv-data-pipline-catalog",
		Name:      "weather_data_csv",
		Location:  location,
		Format:    "csv",
		Delimiter: ',',
		HasHeader: true,
		Columns: schema.Schema{
			{Name: "ts", Type: schema.TypeLong},
			{Name: "temp", Type: schema.TypeDouble},
		},
	}
}

func TestCatalogSourceS3(t *testing.T) {
	client := weatherBucket()
	cat := staticCatalog{"csv-data-pipline-catalog.weather_data_csv": weatherTable("s3://weather-raw/weather")}

	src, err := NewCatalogSource(context.Background(), cat, "csv-data-pipline-catalog", "weather_data_csv",
		WithCatalogS3Client(client),
		WithCatalogS3Suffix(".csv"),
	)
	require.NoError(t, err)
	assert.Equal(t, "weather_data_csv", src.Table.Name)

	records := readAll(t, src)
	assert.Len(t, records, 3, "weather-archive/ is not part of the table")
	for _, rec := range records {
		assert.IsType(t, float64(0), rec["temp"])
	}
}

func TestCatalogSourceLocal(t *testing.T) {
	dir := writeFiles(t, map[string]string{"part-0.csv": "1,1.5\n2,\n"})
	table := weatherTable(dir)
	table.HasHeader = false
	cat := staticCatalog{"csv-data-pipline-catalog.weather_data_csv": table}

	src, err := NewCatalogSource(context.Background(), cat, "csv-data-pipline-catalog", "weather_data_csv")
	require.NoError(t, err)

	records := readAll(t, src)
	require.Len(t, records, 2)
	assert.Equal(t, core.Record{"ts": int64(1), "temp": 1.5}, records[0])
	assert.Equal(t, core.Record{"ts": int64(2), "temp": nil}, records[1])
}

func TestCatalogSourceErrors(t *testing.T) {
	parquet := weatherTable("s3://weather-raw/weather")
	parquet.Format = "parquet"
	noLocation := weatherTable("")
	cat := staticCatalog{
		"db.parquet":     parquet,
		"db.no_location": noLocation,
	}

	_, err := NewCatalogSource(context.Background(), cat, "db", "missing")
	assert.ErrorIs(t, err, catalog.ErrTableNotFound)

	_, err = NewCatalogSource(context.Background(), cat, "db", "parquet")
	assert.ErrorContains(t, err, "unsupported format")

	_, err = NewCatalogSource(context.Background(), cat, "db", "no_location")
	assert.ErrorContains(t, err, "location is empty")
}
