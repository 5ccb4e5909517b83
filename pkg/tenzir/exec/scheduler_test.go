// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tenzir/pipeline-core/pkg/tenzir/diag"
	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
)

var errOpenFailed = errors.New("boom")

// fakeOperator is a minimal op.Operator used to exercise the scheduler
// without needing a concrete source/transform/sink from pkg/tenzir/operators.
// makeStream, when set, builds the Stream this operator's Open returns from
// its upstream; ownStream takes priority when makeStream is nil (sources
// ignore upstream entirely).
type fakeOperator struct {
	name       string
	sig        op.Signature
	ownStream  op.Stream
	makeStream func(upstream op.Stream) op.Stream
	openErr    error
	// openHook, when set, is called with the *op.Context Open receives —
	// used to inspect what the scheduler actually wires in (e.g.
	// StopRequested) rather than the Stage's internal flags.
	openHook func(ctx *op.Context)
}

func (f *fakeOperator) Name() string                                       { return f.name }
func (f *fakeOperator) Signature() op.Signature                            { return f.sig }
func (f *fakeOperator) InferType(in op.ElementKind) (op.ElementKind, error) { return in, nil }
func (f *fakeOperator) Location() op.Location                              { return op.Anywhere }
func (f *fakeOperator) Internal() bool                                     { return false }
func (f *fakeOperator) Optimize(filter string, order op.Order) op.OptimizeResult {
	return op.DoNotOptimize()
}
func (f *fakeOperator) IdleAfter() (float64, bool) { return 0, false }
func (f *fakeOperator) Open(ctx *op.Context, upstream op.Stream) (op.Stream, error) {
	if f.openHook != nil {
		f.openHook(ctx)
	}
	if f.openErr != nil {
		return nil, f.openErr
	}
	if f.makeStream != nil {
		return f.makeStream(upstream), nil
	}
	return f.ownStream, nil
}

// sourceStream emits n checkpoint markers then one exhausted message.
type sourceStream struct {
	remaining int
	done      bool
}

func (s *sourceStream) Next(ctx context.Context) (any, bool, error) {
	if s.remaining > 0 {
		s.remaining--
		return op.CheckpointMessage(uint64(s.remaining), 0), true, nil
	}
	if !s.done {
		s.done = true
		return op.Exhausted(), true, nil
	}
	return nil, false, nil
}

// recordingStream relays its upstream's messages while appending every one
// it sees into target, guarded by mu.
type recordingStream struct {
	upstream op.Stream
	target   *[]op.Message
	mu       *sync.Mutex
}

func (r *recordingStream) Next(ctx context.Context) (any, bool, error) {
	raw, ok, err := r.upstream.Next(ctx)
	if !ok || err != nil {
		return raw, ok, err
	}
	if msg, isMsg := raw.(op.Message); isMsg {
		r.mu.Lock()
		*r.target = append(*r.target, msg)
		r.mu.Unlock()
	}
	return raw, ok, err
}

func TestPipelineRunFlowsMessagesSourceToSink(t *testing.T) {
	source := &fakeOperator{name: "source", sig: op.Signature{Source: true}, ownStream: &sourceStream{remaining: 3}}

	var collected []op.Message
	var mu sync.Mutex
	sink := &fakeOperator{
		name: "sink",
		sig:  op.Signature{Sink: true},
		makeStream: func(upstream op.Stream) op.Stream {
			return &recordingStream{upstream: upstream, target: &collected, mu: &mu}
		},
	}

	session := diag.NewSession(diag.NewRingBuffer("p", 8))
	p := New(context.Background(), "p1", session, []op.Operator{source, sink})

	require.NoError(t, p.Run())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, collected, 4) // 3 checkpoints + exhausted
	require.Equal(t, op.MsgExhausted, collected[3].Kind)
	require.Equal(t, op.MsgCheckpoint, collected[0].Kind)
}

func TestPipelineRunFailsOpenAbortsStartup(t *testing.T) {
	source := &fakeOperator{name: "source", sig: op.Signature{Source: true}, ownStream: &sourceStream{remaining: 1}}
	bad := &fakeOperator{name: "bad", sig: op.Signature{Transformation: true}, openErr: errOpenFailed}

	session := diag.NewSession(diag.NewRingBuffer("p", 8))
	p := New(context.Background(), "p2", session, []op.Operator{source, bad})

	err := p.Run()
	require.Error(t, err)
}

func TestPipelineStopAndCancelSetFlags(t *testing.T) {
	source := &fakeOperator{name: "source", sig: op.Signature{Source: true}, ownStream: &sourceStream{remaining: 0}}
	session := diag.NewSession(diag.NewRingBuffer("p", 8))
	p := New(context.Background(), "p3", session, []op.Operator{source})

	done := make(chan struct{})
	go func() {
		_ = p.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pipeline did not finish after source exhaustion")
	}

	p.Stop()
	p.Cancel()
	require.True(t, p.stages[0].stopRequested.Load())
	require.True(t, p.stages[0].cancelled.Load())
}

// TestPipelineStopIsObservableThroughOperatorContext checks the actual
// wiring an operator relies on: op.Context.StopRequested, not just the
// internal Stage flag Stop() sets.
func TestPipelineStopIsObservableThroughOperatorContext(t *testing.T) {
	var capturedCtx *op.Context
	source := &fakeOperator{
		name: "source",
		sig:  op.Signature{Source: true},
		makeStream: func(upstream op.Stream) op.Stream {
			return &sourceStream{remaining: 0}
		},
	}
	source.openHook = func(ctx *op.Context) { capturedCtx = ctx }

	session := diag.NewSession(diag.NewRingBuffer("p", 8))
	p := New(context.Background(), "p4", session, []op.Operator{source})

	done := make(chan struct{})
	go func() {
		_ = p.Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pipeline did not finish after source exhaustion")
	}

	require.NotNil(t, capturedCtx)
	require.NotNil(t, capturedCtx.StopRequested)
	require.False(t, capturedCtx.StopRequested())
	p.Stop()
	require.True(t, capturedCtx.StopRequested())
}
