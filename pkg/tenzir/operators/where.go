// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package operators

import (
	"context"

	"github.com/tenzir/pipeline-core/pkg/tenzir/diag"
	"github.com/tenzir/pipeline-core/pkg/tenzir/expr"
	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
)

// Where filters rows by a boolean predicate.
type Where struct {
	baseOperator
	Predicate *expr.Expression
}

// NewWhere compiles source against reg and returns a Where operator.
func NewWhere(source string, loc diag.Location, reg *expr.Registry) (*Where, error) {
	e, err := expr.Compile(source, loc, reg)
	if err != nil {
		return nil, err
	}
	return &Where{
		baseOperator: baseOperator{name: "where", sig: op.Signature{Transformation: true, Input: op.RecordBatch, Output: op.RecordBatch}},
		Predicate:    e,
	}, nil
}

func (w *Where) Open(octx *op.Context, upstream op.Stream) (op.Stream, error) {
	return funcStream{next: func(ctx context.Context) (any, bool, error) {
		for {
			raw, ok, err := upstream.Next(ctx)
			if err != nil || !ok {
				return raw, ok, err
			}
			msg, isMsg := raw.(op.Message)
			if !isMsg || msg.Kind != op.MsgRecordBatch {
				return raw, true, nil
			}
			keep := expr.EvalBool(w.Predicate, msg.Batch, octx.Session)
			n := 0
			for _, k := range keep {
				if k {
					n++
				}
			}
			if n == 0 {
				continue // every row dropped, pull the next upstream message
			}
			if n == msg.Batch.Rows() {
				return op.BatchMessage(msg.Batch), true, nil
			}
			return op.BatchMessage(filterBatch(msg.Batch, keep)), true, nil
		}
	}}, nil
}
