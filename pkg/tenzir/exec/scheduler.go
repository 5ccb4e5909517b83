// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"golang.org/x/time/rate"

	"github.com/tenzir/pipeline-core/pkg/tenzir/diag"
	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
)

// DefaultHighWaterBytes bounds a stage's outbound buffer absent an
// operator- or node-level override.
const DefaultHighWaterBytes = 8 << 20 // 8 MiB

// DefaultStallTimeout is the suggested default from spec §9's open
// question: "5 s idle without any message including keepalive triggers a
// warning".
const DefaultStallTimeout = 5 * time.Second

// Stage wires one operator instance into the running pipeline: its
// upstream buffer (nil for a source), its own outbound buffer (nil for a
// sink), and the signals that let the scheduler ask it to stop or cancel.
type Stage struct {
	Operator op.Operator
	Upstream *Buffer
	Outbound *Buffer

	stopRequested atomic.Bool
	cancelled     atomic.Bool
	lastActivity  atomic.Int64 // unix nanos
	pipelineID    string
	session       *diag.Session
}

// Pipeline drives an ordered chain of operator instances.
type Pipeline struct {
	ID      string
	Session *diag.Session
	stages  []*Stage
	cancel  context.CancelFunc
	ctx     context.Context
	wg      sync.WaitGroup

	stallTimeout time.Duration
	store        op.CheckpointStore
}

// SetCheckpointStore wires the runtime's checkpoint blob store into every
// stage this pipeline opens; nil disables Save/Restore plumbing (a cold
// node with no configured checkpoint directory), which per spec §7 is
// equivalent to "missing checkpoint state" for every stateful operator.
func (p *Pipeline) SetCheckpointStore(store op.CheckpointStore) {
	p.store = store
}

// New builds a runnable Pipeline from ordered operators. It does not
// start execution; call Run for that.
func New(ctx context.Context, id string, session *diag.Session, operators []op.Operator) *Pipeline {
	runCtx, cancel := context.WithCancel(ctx)
	p := &Pipeline{ID: id, Session: session, ctx: runCtx, cancel: cancel, stallTimeout: DefaultStallTimeout}
	p.stages = make([]*Stage, len(operators))
	for i, o := range operators {
		p.stages[i] = &Stage{Operator: o, pipelineID: id, session: session}
	}

	// Wire the buffers between adjacent stages up front, so WireMetrics
	// (called between New and Run) sees every outbound buffer. A stage's
	// Outbound buffer is independent of whether its operator has opened
	// yet; only the Open call order in Run matters.
	for i := 0; i < len(p.stages)-1; i++ {
		p.stages[i].Outbound = NewBuffer(DefaultHighWaterBytes)
		p.stages[i+1].Upstream = p.stages[i].Outbound
	}
	return p
}

// Run opens every stage right-to-left and then starts
// each stage's data loop as its own goroutine. Run blocks until every
// stage's goroutine has exited (normal exhaustion, error, or
// cancellation).
func (p *Pipeline) Run() error {
	n := len(p.stages)

	// inputOf[i] is the op.Stream operator i's Open call receives: a view
	// over stage i-1's Outbound buffer, or noopStream for the source.
	inputOf := make([]op.Stream, n)
	for i := 0; i < n; i++ {
		if i == 0 {
			inputOf[i] = noopStream{}
		} else {
			inputOf[i] = bufferBackedStream{stage: p.stages[i-1]}
		}
	}

	// operatorStream[i] is what stage i's pump goroutine reads from: the
	// operator's own Open-returned generator.
	operatorStream := make([]op.Stream, n)
	for i := n - 1; i >= 0; i-- {
		s := p.stages[i]
		s.lastActivity.Store(time.Now().UnixNano())

		octx := &op.Context{
			Context:       p.ctx,
			Session:       p.Session,
			PipelineID:    p.ID,
			Store:         p.store,
			Identity:      fmt.Sprintf("%s/%d-%s", p.ID, i, s.Operator.Name()),
			StopRequested: s.stopRequested.Load,
		}
		stream, err := s.Operator.Open(octx, inputOf[i])
		if err != nil {
			p.closeOpened(n)
			return fmt.Errorf("instantiation error: operator %s: %w", s.Operator.Name(), err)
		}
		operatorStream[i] = stream
	}

	for i, s := range p.stages {
		p.wg.Add(1)
		go p.runStage(i, s, operatorStream[i])
	}

	done := make(chan struct{})
	go func() { p.wg.Wait(); close(done) }()
	<-done
	return nil
}

// closeOpened closes the outbound buffers of stages [0, upto) after a
// failed Open, so any already-opened downstream stage unblocks instead of
// hanging.
func (p *Pipeline) closeOpened(upto int) {
	for i := 0; i < upto && i < len(p.stages); i++ {
		if p.stages[i].Outbound != nil {
			p.stages[i].Outbound.Close()
		}
	}
	p.cancel()
}

func (p *Pipeline) runStage(idx int, s *Stage, stream op.Stream) {
	defer p.wg.Done()
	defer func() {
		if s.Outbound != nil {
			s.Outbound.Close()
		}
	}()

	watchdog := p.startWatchdog(s)
	defer close(watchdog)

	for {
		raw, ok, err := stream.Next(p.ctx)
		s.lastActivity.Store(time.Now().UnixNano())
		if err != nil {
			cclog.Errorf("pipeline %s: operator %s: %v", p.ID, s.Operator.Name(), err)
			p.cancel()
			return
		}
		if !ok {
			return
		}
		msg, ok := raw.(op.Message)
		if !ok {
			cclog.Errorf("pipeline %s: operator %s yielded a non-message value %T", p.ID, s.Operator.Name(), raw)
			p.cancel()
			return
		}
		if s.Outbound != nil {
			if perr := s.Outbound.Push(p.ctx, msg); perr != nil {
				return
			}
		}
		if msg.Kind == op.MsgExhausted {
			return
		}
	}
}

// startWatchdog raises a stall diagnostic if the stage produces nothing —
// not even a keepalive — within the stall timeout.
func (p *Pipeline) startWatchdog(s *Stage) chan struct{} {
	stop := make(chan struct{})
	timeout := p.stallTimeout
	if d, ok := s.Operator.IdleAfter(); ok {
		timeout = time.Duration(d * float64(time.Second))
	}
	// warnLimiter throttles repeated stall warnings for an operator that
	// stays stalled across several ticks to one per timeout window,
	// rather than firing a fresh diagnostic on every tick while the
	// condition persists.
	warnLimiter := rate.NewLimiter(rate.Every(timeout), 1)
	go func() {
		ticker := time.NewTicker(timeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				last := time.Unix(0, s.lastActivity.Load())
				if time.Since(last) > timeout && warnLimiter.Allow() {
					diag.Warnf("operator %s stalled: no message for over %s", s.Operator.Name(), timeout).
						Source(s.Operator.Name()).
						Emit(p.Session)
				}
			}
		}
	}()
	return stop
}

// Stop requests graceful shutdown: every stage's op.Context.StopRequested
// flips to true, and each source operator that honors it (spec §4.5
// "Cancellation ... upstream via a stop signal", §4.6 "Stop after
// checkpoint") drains to its next checkpoint marker and then ceases data
// emission while still forwarding markers. Stop is cooperative and
// per-operator: a source that never checks StopRequested keeps producing
// until it exhausts or the pipeline is Cancelled outright.
func (p *Pipeline) Stop() {
	for _, s := range p.stages {
		s.stopRequested.Store(true)
	}
}

// Cancel tears the pipeline down immediately in both directions without
// waiting for epoch boundaries.
func (p *Pipeline) Cancel() {
	for _, s := range p.stages {
		s.cancelled.Store(true)
	}
	p.cancel()
}

type noopStream struct{}

func (noopStream) Next(ctx context.Context) (any, bool, error) { return nil, false, nil }

// bufferBackedStream adapts a Stage's own outbound Buffer into the
// op.Stream interface so the next-downstream operator's Open call can
// pull from it without knowing about Buffer directly.
type bufferBackedStream struct {
	stage *Stage
}

func (b bufferBackedStream) Next(ctx context.Context) (any, bool, error) {
	msg, ok := b.stage.Outbound.Pop(ctx)
	if !ok {
		return nil, false, nil
	}
	return msg, true, nil
}
