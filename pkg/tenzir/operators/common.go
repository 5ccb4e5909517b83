// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package operators implements the builtin operator plugins named in
// spec §4.7 plus the read-only aspect sources of spec §6.4: set/select
// operations over record batches, windowed aggregates over the message
// stream, and small generator-style sources/sinks. Every operator
// implements op.Operator and is driven by the scheduler in
// pkg/tenzir/exec.
package operators

import (
	"context"

	"github.com/tenzir/pipeline-core/pkg/tenzir/batch"
	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
)

// funcStream adapts a plain pull function to op.Stream, the same
// "closure as generator" shape every operator in this package returns
// from Open.
type funcStream struct {
	next func(ctx context.Context) (any, bool, error)
}

func (f funcStream) Next(ctx context.Context) (any, bool, error) { return f.next(ctx) }

// drain pulls every remaining message off upstream, used by operators
// that must see the whole stream before producing output (tail, repeat).
func drain(ctx context.Context, upstream op.Stream) ([]op.Message, error) {
	var out []op.Message
	for {
		raw, ok, err := upstream.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		msg, isMsg := raw.(op.Message)
		if !isMsg {
			continue
		}
		out = append(out, msg)
		if msg.Kind == op.MsgExhausted {
			return out, nil
		}
	}
}

// baseOperator centralizes the Operator methods that are identical
// across nearly every operator in this package: no special location
// constraint, visible in diagnostics, no pushdown participation, and no
// fixed idle-after hint (the scheduler's default stall timeout applies).
type baseOperator struct {
	name string
	sig  op.Signature
}

func (b baseOperator) Name() string          { return b.name }
func (b baseOperator) Signature() op.Signature { return b.sig }
func (b baseOperator) Location() op.Location { return op.Anywhere }
func (b baseOperator) Internal() bool        { return false }
func (b baseOperator) Optimize(filter string, order op.Order) op.OptimizeResult {
	return op.DoNotOptimize()
}
func (b baseOperator) IdleAfter() (float64, bool) { return 0, false }
// filterBatch returns a new batch containing only the rows where keep is
// true, rebuilding every column.
func filterBatch(b *batch.Batch, keep []bool) *batch.Batch {
	cols := b.Columns()
	out := make([]batch.Column, len(cols))
	for i, c := range cols {
		values := make([]any, 0, len(keep))
		for r, k := range keep {
			if k {
				values = append(values, c.Values[r])
			}
		}
		out[i] = batch.Column{Name: c.Name, Type: c.Type, Values: values}
	}
	return batch.New(b.Schema(), out)
}

func (b baseOperator) InferType(in op.ElementKind) (op.ElementKind, error) {
	if b.sig.Source {
		return b.sig.Output, nil
	}
	if b.sig.Sink {
		if in != b.sig.Input {
			return 0, &op.TypeClashError{Operator: b.name, Input: in}
		}
		return op.Void, nil
	}
	if in != b.sig.Input {
		return 0, &op.TypeClashError{Operator: b.name, Input: in}
	}
	return b.sig.Output, nil
}
