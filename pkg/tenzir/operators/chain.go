// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package operators

import "github.com/tenzir/pipeline-core/pkg/tenzir/op"

// Chain sequences multiple operators into a single op.Operator by
// wiring each stage's Open-returned stream as the next stage's upstream.
// Unlike pkg/tenzir/exec, which opens a top-level pipeline right-to-left,
// Chain opens its stages left-to-right, since each stage's Open needs the
// stream its predecessor returned. It exists so a multi-stage `fork`
// side pipeline (spec §4.7) can be handed to Fork as the single Side
// operator it expects, without duplicating the scheduler's buffering and
// backpressure machinery for what is always an in-process, best-effort
// side sink.
type Chain struct {
	Stages []op.Operator
}

func NewChain(stages []op.Operator) *Chain {
	return &Chain{Stages: stages}
}

func (c *Chain) Name() string {
	if len(c.Stages) == 0 {
		return "chain()"
	}
	return "chain(" + c.Stages[0].Name() + "...)"
}

func (c *Chain) Signature() op.Signature {
	if len(c.Stages) == 0 {
		return op.Signature{Transformation: true, Input: op.RecordBatch, Output: op.RecordBatch}
	}
	first, last := c.Stages[0].Signature(), c.Stages[len(c.Stages)-1].Signature()
	return op.Signature{Transformation: true, Input: first.Input, Output: last.Output}
}

func (c *Chain) Location() op.Location {
	loc := op.Anywhere
	for _, s := range c.Stages {
		if s.Location() != op.Anywhere {
			loc = s.Location()
		}
	}
	return loc
}

func (c *Chain) Internal() bool { return true }

func (c *Chain) InferType(in op.ElementKind) (op.ElementKind, error) {
	kind := in
	for _, s := range c.Stages {
		next, err := s.InferType(kind)
		if err != nil {
			return 0, err
		}
		kind = next
	}
	return kind, nil
}

func (c *Chain) Optimize(filter string, order op.Order) op.OptimizeResult {
	return op.DoNotOptimize()
}

func (c *Chain) IdleAfter() (float64, bool) { return 0, false }

func (c *Chain) Open(ctx *op.Context, upstream op.Stream) (op.Stream, error) {
	stream := upstream
	for _, s := range c.Stages {
		next, err := s.Open(ctx, stream)
		if err != nil {
			return nil, err
		}
		stream = next
	}
	return stream, nil
}
