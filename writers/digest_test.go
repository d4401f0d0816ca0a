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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/xxh3"

	"github.com/aaronlmathis/weatheretl/core"
)

func TestDigestWriter(t *testing.T) {
	out := &mockWriteCloser{}
	d := NewDigestWriter(out)

	_, err := d.Write([]byte("ghi,dhi\n"))
	require.NoError(t, err)
	_, err = d.Write([]byte("0,0\n"))
	require.NoError(t, err)
	require.NoError(t, d.Close())

	assert.Equal(t, "ghi,dhi\n0,0\n", out.String())
	assert.Equal(t, int64(12), d.BytesWritten())
	assert.Equal(t, fmt.Sprintf("%016x", xxh3.HashString("ghi,dhi\n0,0\n")), d.Digest())
	assert.True(t, out.IsClosed())
}

func TestDigestWriter_SameRecordsSameDigest(t *testing.T) {
	write := func() string {
		d := NewDigestWriter(&mockWriteCloser{})
		w, err := NewCSVWriter(d, WithHeaders([]string{"temp", "pod"}))
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			require.NoError(t, w.Write(context.Background(), core.Record{"temp": float64(i) / 4, "pod": "d"}))
		}
		require.NoError(t, w.Close())
		return d.Digest()
	}
	assert.Equal(t, write(), write())
}
