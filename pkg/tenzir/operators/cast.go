// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package operators

import (
	"context"
	"fmt"

	"github.com/tenzir/pipeline-core/pkg/tenzir/batch"
	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
	"github.com/tenzir/pipeline-core/pkg/tenzir/typ"
)

// Cast demands every incoming batch be castable to Target, failing fast
// at instantiation when the first batch observed is incompatible (spec
// §4.7 `cast schema_name`: "fails fast at instantiation when
// incompatible"). Since the schema is only known once data starts
// flowing, "instantiation" here means on the first batch rather than in
// Open itself.
type Cast struct {
	baseOperator
	Target typ.Type
}

func NewCast(target typ.Type) *Cast {
	return &Cast{baseOperator: baseOperator{name: "cast", sig: op.Signature{Transformation: true, Input: op.RecordBatch, Output: op.RecordBatch}}, Target: target}
}

func (c *Cast) Open(octx *op.Context, upstream op.Stream) (op.Stream, error) {
	return funcStream{next: func(ctx context.Context) (any, bool, error) {
		raw, ok, err := upstream.Next(ctx)
		if err != nil || !ok {
			return raw, ok, err
		}
		msg, isMsg := raw.(op.Message)
		if !isMsg || msg.Kind != op.MsgRecordBatch {
			return raw, true, nil
		}
		out, err := batch.Cast(msg.Batch, c.Target)
		if err != nil {
			return nil, false, fmt.Errorf("cast: %w", err)
		}
		return op.BatchMessage(out), true, nil
	}}, nil
}

// Flatten expands nested records into sep-joined column names on every
// incoming batch.
type Flatten struct {
	baseOperator
	Sep string
}

func NewFlatten(sep string) *Flatten {
	if sep == "" {
		sep = "."
	}
	return &Flatten{baseOperator: baseOperator{name: "flatten", sig: op.Signature{Transformation: true, Input: op.RecordBatch, Output: op.RecordBatch}}, Sep: sep}
}

func (f *Flatten) Open(octx *op.Context, upstream op.Stream) (op.Stream, error) {
	return funcStream{next: func(ctx context.Context) (any, bool, error) {
		raw, ok, err := upstream.Next(ctx)
		if err != nil || !ok {
			return raw, ok, err
		}
		msg, isMsg := raw.(op.Message)
		if !isMsg || msg.Kind != op.MsgRecordBatch {
			return raw, true, nil
		}
		return op.BatchMessage(batch.Flatten(msg.Batch, f.Sep)), true, nil
	}}, nil
}
