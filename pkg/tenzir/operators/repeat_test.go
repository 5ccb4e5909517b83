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
	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
	"github.com/tenzir/pipeline-core/pkg/tenzir/typ"
)

// Spec §8 property 5: "repeat K over input of R rows emits exactly K*R
// rows in K replays of identical content." Spec §8 scenario 4: `repeat 3
// from [{"k":1}]` emits three rows `{k:1}`.
func TestRepeatReplaysExactCount(t *testing.T) {
	in := &sliceStream{msgs: []op.Message{
		op.BatchMessage(singleColumnBatch("k", []int64{1, 2})),
		op.Exhausted(),
	}}

	r := NewRepeat(3)
	out, err := r.Open(newOpenOctx(), in)
	require.NoError(t, err)

	msgs := drainAll(t, out)
	got := collectInt64Column(t, msgs, "k")
	require.Equal(t, []int64{1, 2, 1, 2, 1, 2}, got)
	require.Equal(t, op.MsgExhausted, msgs[len(msgs)-1].Kind)
}

// Spec §9: unbounded repeat ("max uint64" replays) runs "until
// cancelled". A graceful Stop request (spec §4.6 "Stop after
// checkpoint") must end the current epoch rather than replay forever.
func TestRepeatUnboundedHonorsStopRequest(t *testing.T) {
	in := &sliceStream{msgs: []op.Message{
		op.BatchMessage(singleColumnBatch("k", []int64{1})),
		op.Exhausted(),
	}}

	r := NewRepeat(0)
	octx := newOpenOctx()
	stopped := false
	octx.StopRequested = func() bool { return stopped }
	out, err := r.Open(octx, in)
	require.NoError(t, err)

	// A handful of replays happen normally while stop has not been
	// requested.
	for i := 0; i < 5; i++ {
		msg, ok, err := out.Next(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		require.NotEqual(t, op.MsgExhausted, msg.(op.Message).Kind)
	}

	stopped = true
	msg, ok, err := out.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, op.MsgExhausted, msg.(op.Message).Kind)
}

func TestRepeatTreatsEmptyBatchesTransparently(t *testing.T) {
	schema := typ.Record(typ.Field{Name: "k", Type: typ.Int64()}).Named("events")
	in := &sliceStream{msgs: []op.Message{
		op.BatchMessage(batch.Empty(schema)),
		op.BatchMessage(singleColumnBatch("k", []int64{7})),
		op.Exhausted(),
	}}

	r := NewRepeat(2)
	out, err := r.Open(newOpenOctx(), in)
	require.NoError(t, err)

	msgs := drainAll(t, out)
	require.Equal(t, []int64{7, 7}, collectInt64Column(t, msgs, "k"))
}
