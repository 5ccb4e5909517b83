// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package expr

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tenzir/pipeline-core/pkg/tenzir/batch"
	"github.com/tenzir/pipeline-core/pkg/tenzir/diag"
	"github.com/tenzir/pipeline-core/pkg/tenzir/typ"
)

func sampleBatch(t *testing.T, field string, values []any, ty typ.Type) *batch.Batch {
	t.Helper()
	b := batch.NewBuilder("s")
	for _, v := range values {
		b.Field(field).Data(ty, v)
		b.EndRow()
	}
	return b.FinishAsRecordBatches(0)[0]
}

func TestEvalSimpleComparison(t *testing.T) {
	reg := NewRegistry()
	bt := sampleBatch(t, "a", []any{int64(1), int64(2), int64(3)}, typ.Int64())

	e, err := Compile("a > 1", diag.Location{}, reg)
	require.NoError(t, err)

	result := EvalBool(e, bt, nil)
	require.Equal(t, []bool{false, true, true}, result)
}

func TestEvalIntConversionNullsOnFailure(t *testing.T) {
	reg := NewRegistry()
	bt := sampleBatch(t, "x", []any{"1", "two"}, typ.String())

	e, err := Compile(`int(x)`, diag.Location{}, reg)
	require.NoError(t, err)

	sink := diag.NewRingBuffer("p", 8)
	session := diag.NewSession(sink)
	result := Eval(e, bt, session)

	require.Equal(t, int64(1), result.Values[0])
	require.Nil(t, result.Values[1])
	require.Len(t, sink.Snapshot(), 1)
	require.Equal(t, diag.Warning, sink.Snapshot()[0].Severity)
}

func TestEvalFileNameAndParentDir(t *testing.T) {
	reg := NewRegistry()
	bt := sampleBatch(t, "p", []any{"/a/b/c.log"}, typ.String())

	fname, err := Compile(`file_name(p)`, diag.Location{}, reg)
	require.NoError(t, err)
	dname, err := Compile(`parent_dir(p)`, diag.Location{}, reg)
	require.NoError(t, err)

	require.Equal(t, "c.log", Eval(fname, bt, nil).Values[0])
	require.Equal(t, "/a/b", Eval(dname, bt, nil).Values[0])
}

func TestEvalStartsWith(t *testing.T) {
	reg := NewRegistry()
	bt := sampleBatch(t, "s", []any{"foo", "bar"}, typ.String())

	e, err := Compile(`starts_with(s, "f")`, diag.Location{}, reg)
	require.NoError(t, err)
	require.Equal(t, []bool{true, false}, EvalBool(e, bt, nil))
}

// TQL also allows the method-call spelling of a registered function:
// `s.starts_with("f")` is equivalent to `starts_with(s, "f")`.
func TestEvalStartsWithMethodCallSyntax(t *testing.T) {
	reg := NewRegistry()
	bt := sampleBatch(t, "s", []any{"foo", "bar"}, typ.String())

	e, err := Compile(`s.starts_with("f")`, diag.Location{}, reg)
	require.NoError(t, err)
	require.Equal(t, []bool{true, false}, EvalBool(e, bt, nil))
}

func TestNormalizeMethodCallsLeavesPlainFieldPathsUntouched(t *testing.T) {
	reg := NewRegistry()
	require.Equal(t, "a.b", normalizeMethodCalls("a.b", reg))
	require.Equal(t, `starts_with(s, "f")`, normalizeMethodCalls(`starts_with(s, "f")`, reg))
	require.Equal(t, `starts_with(s, "f")`, normalizeMethodCalls(`s.starts_with("f")`, reg))
	require.Equal(t, `starts_with(a.b, "f")`, normalizeMethodCalls(`a.b.starts_with("f")`, reg))
}

func TestSumAggregationSaveRestore(t *testing.T) {
	reg := NewRegistry()
	agg, ok := reg.NewAggregation("sum")
	require.True(t, ok)

	require.NoError(t, agg.Update([]any{int64(1), int64(2), nil}))
	blob, err := agg.Save()
	require.NoError(t, err)

	restored, _ := reg.NewAggregation("sum")
	require.NoError(t, restored.Restore(blob))
	require.NoError(t, restored.Update([]any{int64(3)}))

	v, err := restored.Get()
	require.NoError(t, err)
	require.Equal(t, int64(6), v)
}

func TestMinMaxAggregation(t *testing.T) {
	reg := NewRegistry()
	min, _ := reg.NewAggregation("min")
	max, _ := reg.NewAggregation("max")
	vals := []any{int64(5), int64(1), int64(9)}
	require.NoError(t, min.Update(vals))
	require.NoError(t, max.Update(vals))

	mv, _ := min.Get()
	xv, _ := max.Get()
	require.Equal(t, int64(1), mv)
	require.Equal(t, int64(9), xv)
}

func TestCountDistinctAggregation(t *testing.T) {
	reg := NewRegistry()
	agg, _ := reg.NewAggregation("count_distinct")
	require.NoError(t, agg.Update([]any{int64(1), int64(1), int64(2), nil}))
	v, _ := agg.Get()
	require.Equal(t, int64(2), v)
}

func TestOnceAggregationIgnoresLaterUpdates(t *testing.T) {
	reg := NewRegistry()
	agg, _ := reg.NewAggregation("once")
	require.NoError(t, agg.Update([]any{nil, int64(7)}))
	require.NoError(t, agg.Update([]any{int64(99)}))
	v, _ := agg.Get()
	require.Equal(t, int64(7), v)
}
