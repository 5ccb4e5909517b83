// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package operators

import (
	"context"

	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
)

// Repeat caches the input and replays it N total times, or forever if N
// is 0.
type Repeat struct {
	baseOperator
	N int // 0 means unbounded
}

func NewRepeat(n int) *Repeat {
	return &Repeat{baseOperator: baseOperator{name: "repeat", sig: op.Signature{Transformation: true, Input: op.RecordBatch, Output: op.RecordBatch}}, N: n}
}

func (r *Repeat) Open(octx *op.Context, upstream op.Stream) (op.Stream, error) {
	var cached []op.Message
	built := false
	replay := 0
	idx := 0

	return funcStream{next: func(ctx context.Context) (any, bool, error) {
		if !built {
			messages, err := drain(ctx, upstream)
			if err != nil {
				return nil, false, err
			}
			// Empty batches pass through transparently rather than being
			// cached and replayed (spec: "treats empty batches
			// transparently").
			cached = make([]op.Message, 0, len(messages))
			for _, m := range messages {
				if m.Kind == op.MsgRecordBatch && m.Batch.Rows() == 0 {
					continue
				}
				cached = append(cached, m)
			}
			built = true
		}

		for {
			if idx >= len(cached) {
				replay++
				idx = 0
				if r.N > 0 && replay >= r.N {
					return op.Exhausted(), true, nil
				}
				if len(cached) == 0 {
					return op.Exhausted(), true, nil
				}
				// An unbounded repeat (N == 0, spec §9: "until cancelled")
				// would otherwise replay forever; honor a graceful stop
				// request by ending the current epoch here instead of
				// starting another replay (spec §4.6 "Stop after
				// checkpoint").
				if r.N == 0 && octx.StopRequested != nil && octx.StopRequested() {
					return op.Exhausted(), true, nil
				}
				continue
			}
			m := cached[idx]
			idx++
			if m.Kind == op.MsgExhausted {
				// The cached exhausted marker only terminates the final
				// replay; interior ones are swallowed so replays concatenate
				// into one logical stream.
				if r.N > 0 && replay+1 >= r.N {
					return m, true, nil
				}
				continue
			}
			return m, true, nil
		}
	}}, nil
}
