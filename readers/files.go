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
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aaronlmathis/weatheretl/core"
)

// FileReaderError provides structured error information for local file reads.
type FileReaderError struct {
	Op  string
	Err error
}

func (e *FileReaderError) Error() string {
	return fmt.Sprintf("file reader %s: %v", e.Op, e.Err)
}

func (e *FileReaderError) Unwrap() error {
	return e.Err
}

// FileReader implements core.DataSource for a local CSV file or a directory
// tree of CSV files. Files are read in lexical path order.
type FileReader struct {
	files         []string
	currentIndex  int
	currentReader core.DataSource
	csvOpts       []ReaderOptionCSV
	recordsRead   int64
	mu            sync.Mutex
}

// NewFileReader lists the files under root and prepares to read them.
// Hidden files and marker files such as _SUCCESS are skipped.
func NewFileReader(root string, suffix string, csvOpts ...ReaderOptionCSV) (*FileReader, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &FileReaderError{Op: "stat", Err: err}
	}

	var files []string
	if !info.IsDir() {
		files = []string{root}
	} else {
		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if p != root && isHiddenFile(d.Name()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if suffix != "" && !strings.HasSuffix(d.Name(), suffix) {
				return nil
			}
			files = append(files, p)
			return nil
		})
		if err != nil {
			return nil, &FileReaderError{Op: "list_files", Err: err}
		}
		sort.Strings(files)
	}

	return &FileReader{files: files, csvOpts: csvOpts}, nil
}

// Files returns the files that will be read.
func (f *FileReader) Files() []string {
	return append([]string(nil), f.files...)
}

// Read implements the core.DataSource interface.
func (f *FileReader) Read(ctx context.Context) (core.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return nil, &FileReaderError{Op: "read", Err: ctx.Err()}
		default:
		}

		if f.currentReader == nil {
			if f.currentIndex >= len(f.files) {
				return nil, io.EOF
			}
			if err := f.openNext(); err != nil {
				return nil, &FileReaderError{Op: "open", Err: err}
			}
			continue
		}

		record, err := f.currentReader.Read(ctx)
		if err == io.EOF {
			if err := f.closeCurrent(); err != nil {
				return nil, &FileReaderError{Op: "close", Err: err}
			}
			continue
		}
		if err != nil {
			return nil, &FileReaderError{Op: "read_record", Err: fmt.Errorf("%s: %w", f.files[f.currentIndex], err)}
		}
		f.recordsRead++
		return record, nil
	}
}

// Close implements the core.DataSource interface.
func (f *FileReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCurrent()
}

// RecordsRead returns the number of records read so far.
func (f *FileReader) RecordsRead() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recordsRead
}

func (f *FileReader) openNext() error {
	name := f.files[f.currentIndex]
	file, err := os.Open(name)
	if err != nil {
		return err
	}
	reader, err := NewCSVReader(file, f.csvOpts...)
	if errors.Is(err, io.EOF) {
		file.Close()
		f.currentIndex++
		return nil
	}
	if err != nil {
		file.Close()
		return fmt.Errorf("%s: %w", name, err)
	}
	f.currentReader = reader
	return nil
}

func (f *FileReader) closeCurrent() error {
	if f.currentReader != nil {
		err := f.currentReader.Close()
		f.currentReader = nil
		f.currentIndex++
		return err
	}
	return nil
}
