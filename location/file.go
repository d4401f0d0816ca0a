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

package location

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aaronlmathis/weatheretl/schema"
)

// FileLocation writes output to a local directory.
type FileLocation struct {
	Dir string
}

func (f *FileLocation) String() string {
	return f.Dir
}

// NewSink creates the directory if needed and opens a hidden temporary file
// that is renamed into place on Close.
func (f *FileLocation) NewSink(ctx context.Context, format Format, columns schema.Schema, runName string) (*Sink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", f.Dir, err)
	}

	name := ObjectName(runName, format)
	final := filepath.Join(f.Dir, name)
	tmp := filepath.Join(f.Dir, "."+name+".tmp")

	file, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	return newSink(&fileObject{file: file, tmp: tmp, final: final}, final, format, columns)
}

type fileObject struct {
	file  *os.File
	tmp   string
	final string
	done  bool
	mu    sync.Mutex
}

func (o *fileObject) Write(p []byte) (int, error) {
	return o.file.Write(p)
}

func (o *fileObject) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		return nil
	}
	o.done = true

	if err := o.file.Close(); err != nil {
		os.Remove(o.tmp)
		return fmt.Errorf("close %s: %w", o.tmp, err)
	}
	if err := os.Rename(o.tmp, o.final); err != nil {
		os.Remove(o.tmp)
		return fmt.Errorf("commit %s: %w", o.final, err)
	}
	return nil
}

func (o *fileObject) Abort(cause error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		return nil
	}
	o.done = true

	o.file.Close()
	if err := os.Remove(o.tmp); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
