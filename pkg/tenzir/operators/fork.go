// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package operators

import (
	"context"
	"sync"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/tenzir/pipeline-core/pkg/tenzir/checkpoint"
	"github.com/tenzir/pipeline-core/pkg/tenzir/diag"
	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
)

// Fork duplicates its input stream: the original passes through
// unmodified, and a clone feeds a side pipeline running concurrently
//. A failure in the side pipeline is reported as
// a diagnostic but never aborts the main chain. Fork is also the one
// operator that performs barrier alignment on checkpoint markers (spec
// §4.6): it only forwards a marker downstream once the side pipeline has
// also consumed it, giving exactly-once semantics across the fan-out.
type Fork struct {
	baseOperator
	Side op.Operator
}

func NewFork(side op.Operator) *Fork {
	return &Fork{
		baseOperator: baseOperator{name: "fork", sig: op.Signature{Transformation: true, Input: op.RecordBatch, Output: op.RecordBatch}},
		Side:         side,
	}
}

// sideFeedStream lets Fork push cloned messages into the side pipeline's
// upstream without the side operator knowing it is reading from a fork
// rather than a normal stage buffer.
type sideFeedStream struct {
	ch <-chan op.Message
}

func (s sideFeedStream) Next(ctx context.Context) (any, bool, error) {
	select {
	case m, ok := <-s.ch:
		if !ok {
			return nil, false, nil
		}
		return m, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (f *Fork) Open(octx *op.Context, upstream op.Stream) (op.Stream, error) {
	feed := make(chan op.Message, 16)
	sideStream, err := f.Side.Open(octx, sideFeedStream{ch: feed})
	if err != nil {
		return nil, err
	}

	barrier := checkpoint.NewBarrier(2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			raw, ok, err := sideStream.Next(octx.Context)
			if err != nil {
				diag.Errorf("fork: side pipeline failed: %v", err).Source("fork").Emit(octx.Session)
				return
			}
			if !ok {
				return
			}
			if msg, isMsg := raw.(op.Message); isMsg {
				if msg.Kind == op.MsgCheckpoint {
					barrier.Arrive(msg.CheckpointEpoch)
				}
				if msg.Kind == op.MsgExhausted {
					return
				}
			}
		}
	}()

	closed := false
	return funcStream{next: func(ctx context.Context) (any, bool, error) {
		raw, ok, err := upstream.Next(ctx)
		if err != nil || !ok {
			if !closed {
				close(feed)
				closed = true
			}
			return raw, ok, err
		}
		msg, isMsg := raw.(op.Message)
		if !isMsg {
			return raw, true, nil
		}

		select {
		case feed <- msg:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}

		if msg.Kind == op.MsgExhausted && !closed {
			close(feed)
			closed = true
		}
		if msg.Kind == op.MsgCheckpoint {
			barrier.Arrive(msg.CheckpointEpoch)
			if !barrier.Wait(ctx, msg.CheckpointEpoch) {
				cclog.Warnf("fork: side pipeline did not acknowledge checkpoint epoch %d before cancellation", msg.CheckpointEpoch)
			}
		}
		return raw, true, nil
	}}, nil
}
