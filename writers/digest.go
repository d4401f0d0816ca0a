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
	"fmt"
	"io"
	"sync"

	"github.com/zeebo/xxh3"
)

// DigestWriter counts and hashes bytes on their way to an underlying writer.
// Two runs that write the same bytes report the same digest.
type DigestWriter struct {
	w      io.WriteCloser
	hasher *xxh3.Hasher
	n      int64
	mu     sync.Mutex
}

// NewDigestWriter wraps w.
func NewDigestWriter(w io.WriteCloser) *DigestWriter {
	return &DigestWriter{w: w, hasher: xxh3.New()}
}

func (d *DigestWriter) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.w.Write(p)
	d.hasher.Write(p[:n])
	d.n += int64(n)
	return n, err
}

func (d *DigestWriter) Close() error {
	return d.w.Close()
}

// Digest returns the xxh3 hash of the bytes written so far as 16 hex digits.
func (d *DigestWriter) Digest() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fmt.Sprintf("%016x", d.hasher.Sum64())
}

// BytesWritten returns the number of bytes passed through.
func (d *DigestWriter) BytesWritten() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.n
}
