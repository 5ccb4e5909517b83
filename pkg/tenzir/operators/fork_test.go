// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package operators

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
)

// recordingSink is a minimal side-pipeline operator that records every
// row it sees on its own input, used to assert Fork's clone reaches the
// side pipeline independent of the main stream.
type recordingSink struct {
	baseOperator
	mu   sync.Mutex
	rows []int64
}

func newRecordingSink() *recordingSink {
	return &recordingSink{baseOperator: baseOperator{name: "recording-sink", sig: op.Signature{Sink: true, Input: op.RecordBatch}}}
}

func (r *recordingSink) Open(octx *op.Context, upstream op.Stream) (op.Stream, error) {
	return funcStream{next: func(ctx context.Context) (any, bool, error) {
		raw, ok, err := upstream.Next(ctx)
		if err != nil || !ok {
			return raw, ok, err
		}
		msg, isMsg := raw.(op.Message)
		if isMsg && msg.Kind == op.MsgRecordBatch {
			col, found := msg.Batch.Column("n")
			if found {
				r.mu.Lock()
				for _, v := range col.Values {
					r.rows = append(r.rows, v.(int64))
				}
				r.mu.Unlock()
			}
		}
		return raw, true, nil
	}}, nil
}

func (r *recordingSink) snapshot() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.rows...)
}

// Spec §4.7 `fork pipe`: "the original passes through, a clone runs pipe
// as a side-sink".
func TestForkPassesMainStreamThroughUnmodified(t *testing.T) {
	in := &sliceStream{msgs: []op.Message{
		op.BatchMessage(singleColumnBatch("n", []int64{1, 2, 3})),
		op.Exhausted(),
	}}

	side := newRecordingSink()
	f := NewFork(side)
	octx := newOpenOctx()
	out, err := f.Open(octx, in)
	require.NoError(t, err)

	msgs := drainAll(t, out)
	require.Equal(t, []int64{1, 2, 3}, collectInt64Column(t, msgs, "n"))
	require.Equal(t, op.MsgExhausted, msgs[len(msgs)-1].Kind)

	require.Eventually(t, func() bool {
		return len(side.snapshot()) == 3
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, []int64{1, 2, 3}, side.snapshot())
}
