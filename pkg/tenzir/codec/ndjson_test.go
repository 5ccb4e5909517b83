// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNDJSONParseSplitsAcrossChunkBoundaries(t *testing.T) {
	chunks := NewSliceByteChunks([][]byte{
		[]byte(`{"a":1,"b":"x"}` + "\n" + `{"a":2,"b":`),
		[]byte(`"y"}` + "\n"),
	})
	n := NDJSON{}
	batches := n.Parse(chunks, "rec", Ctrl{})

	b, ok, err := batches.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, b.Rows())
	require.Equal(t, float64(1), b.Row(0)["a"])
	require.Equal(t, "y", b.Row(1)["b"])

	_, ok, err = batches.Next(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNDJSONParseSkipsMalformedLines(t *testing.T) {
	chunks := NewSliceByteChunks([][]byte{
		[]byte(`{"a":1}` + "\n" + `not json` + "\n" + `{"a":2}` + "\n"),
	})
	var warnings []string
	n := NDJSON{}
	batches := n.Parse(chunks, "rec", Ctrl{Warn: func(format string, args ...any) {
		warnings = append(warnings, format)
	}})

	b, ok, err := batches.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, b.Rows())
	require.Len(t, warnings, 1)
}

func TestNDJSONParseRespectsRowsPerBatch(t *testing.T) {
	chunks := NewSliceByteChunks([][]byte{
		[]byte(`{"a":1}` + "\n" + `{"a":2}` + "\n" + `{"a":3}` + "\n"),
	})
	n := NDJSON{RowsPerBatch: 2}
	batches := n.Parse(chunks, "rec", Ctrl{})

	first, ok, err := batches.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, first.Rows())

	second, ok, err := batches.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, second.Rows())

	_, ok, err = batches.Next(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNDJSONPrintEmitsOneLinePerRow(t *testing.T) {
	chunks := NewSliceByteChunks([][]byte{
		[]byte(`{"a":1}` + "\n" + `{"a":2}` + "\n"),
	})
	n := NDJSON{}
	batches := n.Parse(chunks, "rec", Ctrl{})

	out := n.Print(batches, Ctrl{})
	line1, ok, err := out.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, string(line1), `"a":1`)

	line2, ok, err := out.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, string(line2), `"a":2`)

	_, ok, err = out.Next(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}
