// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package operators

import (
	"context"
	"time"

	"github.com/tenzir/pipeline-core/pkg/tenzir/diag"
	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
)

// AssertThroughput measures events per window of a fixed duration and
// warns (then eventually errors) when the stream runs dry.
type AssertThroughput struct {
	baseOperator
	MinEvents int
	Within    time.Duration
	Retries   int // R in the spec; R+1 consecutive failed windows escalates to error

	windowStart    time.Time
	windowEvents   int
	consecutiveBad int
	nowFunc        func() time.Time
}

func NewAssertThroughput(minEvents int, within time.Duration, retries int) *AssertThroughput {
	return &AssertThroughput{
		baseOperator: baseOperator{name: "assert_throughput", sig: op.Signature{Transformation: true, Input: op.RecordBatch, Output: op.RecordBatch}},
		MinEvents:    minEvents,
		Within:       within,
		Retries:      retries,
		nowFunc:      time.Now,
	}
}

func (a *AssertThroughput) Open(octx *op.Context, upstream op.Stream) (op.Stream, error) {
	a.windowStart = a.nowFunc()
	return funcStream{next: func(ctx context.Context) (any, bool, error) {
		raw, ok, err := upstream.Next(ctx)
		a.checkWindow(octx.Session)
		if err != nil || !ok {
			return raw, ok, err
		}
		if msg, isMsg := raw.(op.Message); isMsg && msg.Kind == op.MsgRecordBatch {
			a.windowEvents += msg.Batch.Rows()
		}
		return raw, true, nil
	}}, nil
}

// checkWindow rolls the window over if Within has elapsed, comparing
// this window's event count against MinEvents.
func (a *AssertThroughput) checkWindow(session *diag.Session) {
	now := a.nowFunc()
	if now.Sub(a.windowStart) < a.Within {
		return
	}
	if a.windowEvents < a.MinEvents {
		a.consecutiveBad++
		if a.consecutiveBad > a.Retries {
			diag.Errorf("assert_throughput: only %d events in the last %s, expected at least %d", a.windowEvents, a.Within, a.MinEvents).
				Source("assert_throughput").Emit(session)
		} else {
			diag.Warnf("assert_throughput: only %d events in the last %s, expected at least %d", a.windowEvents, a.Within, a.MinEvents).
				Source("assert_throughput").Emit(session)
		}
	} else {
		a.consecutiveBad = 0
	}
	a.windowStart = now
	a.windowEvents = 0
}
