// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package operators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tenzir/pipeline-core/pkg/tenzir/batch"
	"github.com/tenzir/pipeline-core/pkg/tenzir/diag"
	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
	"github.com/tenzir/pipeline-core/pkg/tenzir/typ"
)

func singleColumnBatch(field string, values []int64) *batch.Batch {
	b := batch.NewBuilder("events")
	for _, v := range values {
		b.Field(field).Data(typ.Int64(), v)
		b.EndRow()
	}
	return b.FinishAsRecordBatches(0)[0]
}

func collectInt64Column(t *testing.T, msgs []op.Message, field string) []int64 {
	t.Helper()
	var out []int64
	for _, m := range msgs {
		if m.Kind != op.MsgRecordBatch {
			continue
		}
		col, ok := m.Batch.Column(field)
		require.True(t, ok)
		for _, v := range col.Values {
			out = append(out, v.(int64))
		}
	}
	return out
}

func newOpenOctx() *op.Context {
	return &op.Context{Context: context.Background(), Session: diag.NewSession(diag.NewRingBuffer("p", 8))}
}

// Spec §8 property 4: "head N | tail N over any input of >= N rows emits
// exactly the first N rows".
func TestHeadThenTailEmitsFirstNRows(t *testing.T) {
	in := &sliceStream{msgs: []op.Message{
		op.BatchMessage(singleColumnBatch("n", []int64{1, 2, 3, 4})),
		op.Exhausted(),
	}}

	head := NewHead(2)
	headOut, err := head.Open(newOpenOctx(), in)
	require.NoError(t, err)

	tail := NewTail(2)
	tailOut, err := tail.Open(newOpenOctx(), streamOf(t, headOut))
	require.NoError(t, err)

	msgs := drainAll(t, tailOut)
	require.Equal(t, []int64{1, 2}, collectInt64Column(t, msgs, "n"))
}

// Spec §8 property 4: "tail N | head N over any input of >= N rows emits
// exactly the last N rows".
func TestTailThenHeadEmitsLastNRows(t *testing.T) {
	in := &sliceStream{msgs: []op.Message{
		op.BatchMessage(singleColumnBatch("n", []int64{1, 2, 3, 4})),
		op.Exhausted(),
	}}

	tail := NewTail(2)
	tailOut, err := tail.Open(newOpenOctx(), in)
	require.NoError(t, err)

	head := NewHead(2)
	headOut, err := head.Open(newOpenOctx(), streamOf(t, tailOut))
	require.NoError(t, err)

	msgs := drainAll(t, headOut)
	require.Equal(t, []int64{3, 4}, collectInt64Column(t, msgs, "n"))
}

// streamOf wraps an already-opened op.Stream so it can feed a second
// operator's Open call the same way a scheduler-backed buffer would.
func streamOf(t *testing.T, s op.Stream) op.Stream {
	t.Helper()
	return s
}

func TestHeadEmptyInputEmitsOnlyExhausted(t *testing.T) {
	in := &sliceStream{msgs: []op.Message{op.Exhausted()}}
	head := NewHead(3)
	out, err := head.Open(newOpenOctx(), in)
	require.NoError(t, err)

	msgs := drainAll(t, out)
	require.Len(t, msgs, 1)
	require.Equal(t, op.MsgExhausted, msgs[0].Kind)
}

func TestTailEmptyInputEmitsOnlyExhausted(t *testing.T) {
	in := &sliceStream{msgs: []op.Message{op.Exhausted()}}
	tail := NewTail(3)
	out, err := tail.Open(newOpenOctx(), in)
	require.NoError(t, err)

	msgs := drainAll(t, out)
	require.Len(t, msgs, 1)
	require.Equal(t, op.MsgExhausted, msgs[0].Kind)
}
