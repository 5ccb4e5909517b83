// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package operators

import (
	"context"

	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
)

// Head emits at most N rows then closes gracefully:
// downstream sees `exhausted` once the quota is met, and Head pulls
// nothing more from upstream at that point. It sends no `stop` signal
// upstream.
type Head struct {
	baseOperator
	N int
}

func NewHead(n int) *Head {
	return &Head{baseOperator: baseOperator{name: "head", sig: op.Signature{Transformation: true, Input: op.RecordBatch, Output: op.RecordBatch}}, N: n}
}

func (h *Head) Open(octx *op.Context, upstream op.Stream) (op.Stream, error) {
	remaining := h.N
	done := false
	return funcStream{next: func(ctx context.Context) (any, bool, error) {
		if done {
			return nil, false, nil
		}
		if remaining <= 0 {
			done = true
			return op.Exhausted(), true, nil
		}
		raw, ok, err := upstream.Next(ctx)
		if err != nil || !ok {
			return raw, ok, err
		}
		msg, isMsg := raw.(op.Message)
		if !isMsg {
			return raw, true, nil
		}
		if msg.Kind != op.MsgRecordBatch {
			if msg.Kind == op.MsgExhausted {
				done = true
			}
			return raw, true, nil
		}
		rows := msg.Batch.Rows()
		if rows <= remaining {
			remaining -= rows
			return raw, true, nil
		}
		out := msg.Batch.Slice(0, remaining)
		remaining = 0
		return op.BatchMessage(out), true, nil
	}}, nil
}

// Tail buffers the full stream and emits only its last N rows at
// exhaustion.
type Tail struct {
	baseOperator
	N int
}

func NewTail(n int) *Tail {
	return &Tail{baseOperator: baseOperator{name: "tail", sig: op.Signature{Transformation: true, Input: op.RecordBatch, Output: op.RecordBatch}}, N: n}
}

func (t *Tail) Open(octx *op.Context, upstream op.Stream) (op.Stream, error) {
	var out []any
	built := false
	idx := 0
	return funcStream{next: func(ctx context.Context) (any, bool, error) {
		if !built {
			messages, err := drain(ctx, upstream)
			if err != nil {
				return nil, false, err
			}
			out = tailRows(messages, t.N)
			built = true
		}
		if idx >= len(out) {
			return nil, false, nil
		}
		v := out[idx]
		idx++
		return v, true, nil
	}}, nil
}

// tailRows keeps only the trailing N rows across every record batch in
// messages, preserving any checkpoint/exhausted markers untouched and
// appending a terminal exhausted if the drained stream did not already
// end with one.
func tailRows(messages []op.Message, n int) []any {
	total := 0
	for _, m := range messages {
		if m.Kind == op.MsgRecordBatch {
			total += m.Batch.Rows()
		}
	}
	skip := total - n
	if skip < 0 {
		skip = 0
	}

	out := make([]any, 0, len(messages))
	sawExhausted := false
	for _, m := range messages {
		if m.Kind != op.MsgRecordBatch {
			if m.Kind == op.MsgExhausted {
				sawExhausted = true
			}
			out = append(out, m)
			continue
		}
		rows := m.Batch.Rows()
		if skip >= rows {
			skip -= rows
			continue
		}
		if skip > 0 {
			out = append(out, op.BatchMessage(m.Batch.Slice(skip, rows)))
			skip = 0
			continue
		}
		out = append(out, m)
	}
	if !sawExhausted {
		out = append(out, op.Exhausted())
	}
	return out
}
