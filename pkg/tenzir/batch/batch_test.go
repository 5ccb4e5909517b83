// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package batch

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tenzir/pipeline-core/pkg/tenzir/typ"
)

func buildSample(t *testing.T) *Batch {
	t.Helper()
	b := NewBuilder("sample")
	for _, n := range []int64{1, 2, 3} {
		b.Field("n").Data(typ.Int64(), n)
		b.EndRow()
	}
	out := b.FinishAsRecordBatches(0)
	require.Len(t, out, 1)
	return out[0]
}

func TestBuilderRoundTrip(t *testing.T) {
	bt := buildSample(t)
	require.Equal(t, 3, bt.Rows())
	col, ok := bt.Column("n")
	require.True(t, ok)
	require.Equal(t, []any{int64(1), int64(2), int64(3)}, col.Values)
}

func TestBuilderSplitsAtRowCap(t *testing.T) {
	b := NewBuilder("s")
	for i := 0; i < 10; i++ {
		b.Field("n").Data(typ.Int64(), int64(i))
		b.EndRow()
	}
	batches := b.FinishAsRecordBatches(4)
	require.Len(t, batches, 3)
	require.Equal(t, 4, batches[0].Rows())
	require.Equal(t, 4, batches[1].Rows())
	require.Equal(t, 2, batches[2].Rows())
}

func TestBuilderNullBackfill(t *testing.T) {
	b := NewBuilder("s")
	b.Field("a").Data(typ.Int64(), int64(1))
	b.EndRow()
	b.Field("b").Data(typ.Int64(), int64(2)) // introduced on row 2
	b.EndRow()
	out := b.FinishAsRecordBatches(0)[0]
	a, _ := out.Column("a")
	b2, _ := out.Column("b")
	require.Equal(t, []any{int64(1), nil}, a.Values)
	require.Equal(t, []any{nil, int64(2)}, b2.Values)
}

func TestSliceIsZeroCopy(t *testing.T) {
	bt := buildSample(t)
	sl := bt.Slice(1, 3)
	require.Equal(t, 2, sl.Rows())
	col, _ := sl.Column("n")
	require.Equal(t, []any{int64(2), int64(3)}, col.Values)
}

func TestSelectRestrictsFields(t *testing.T) {
	b := NewBuilder("s")
	b.Field("a").Data(typ.Int64(), int64(1))
	b.Field("b").Data(typ.String(), "x")
	b.EndRow()
	out := b.FinishAsRecordBatches(0)[0]
	sel, err := out.Select([]string{"b"})
	require.NoError(t, err)
	require.Equal(t, 1, len(sel.Schema().Fields))
	require.Equal(t, "b", sel.Schema().Fields[0].Name)
}

func TestSelectUnknownFieldErrors(t *testing.T) {
	bt := buildSample(t)
	_, err := bt.Select([]string{"missing"})
	require.Error(t, err)
}

func TestFlattenNestedRecordColumn(t *testing.T) {
	schema := typ.Record(
		typ.Field{Name: "a", Type: typ.Record(typ.Field{Name: "b", Type: typ.Int64()})},
	)
	col := Column{Name: "a", Type: schema.Fields[0].Type, Values: []any{map[string]any{"b": int64(42)}}}
	bt := New(schema, []Column{col})

	flat := Flatten(bt, ".")
	c, ok := flat.Column("a.b")
	require.True(t, ok)
	require.Equal(t, []any{int64(42)}, c.Values)
}

func TestCastWidensNumeric(t *testing.T) {
	bt := buildSample(t)
	target := typ.Record(typ.Field{Name: "n", Type: typ.Double()}).Named("sample")
	out, err := Cast(bt, target)
	require.NoError(t, err)
	col, _ := out.Column("n")
	require.Equal(t, []any{1.0, 2.0, 3.0}, col.Values)
}

func TestCastFailsWithPerColumnReason(t *testing.T) {
	bt := buildSample(t)
	target := typ.Record(typ.Field{Name: "n", Type: typ.String()}).Named("sample")
	_, err := Cast(bt, target)
	require.Error(t, err)
	require.Contains(t, err.Error(), "n:")
}

func TestChunkRefCountingReleasesOnce(t *testing.T) {
	released := 0
	c := NewChunk([]byte("hi"), func() { released++ })
	c2 := c.Retain()
	c.Release()
	require.Equal(t, 0, released)
	c2.Release()
	require.Equal(t, 1, released)
}
