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

// Assignment is one `name=expr` clause shared by `set` and `select`.
type Assignment struct {
	Field string
	Expr  *expr.Expression // nil for a bare `select a` passthrough field
}

// Set creates or overwrites columns per its assignments, leaving every
// other column untouched.
type Set struct {
	baseOperator
	Assignments []Assignment
	session     *diag.Session
}

func NewSet(assignments []Assignment) *Set {
	return &Set{
		baseOperator: baseOperator{name: "set", sig: op.Signature{Transformation: true, Input: op.RecordBatch, Output: op.RecordBatch}},
		Assignments:  assignments,
	}
}

func (s *Set) Open(octx *op.Context, upstream op.Stream) (op.Stream, error) {
	return funcStream{next: func(ctx context.Context) (any, bool, error) {
		raw, ok, err := upstream.Next(ctx)
		if err != nil || !ok {
			return raw, ok, err
		}
		msg, isMsg := raw.(op.Message)
		if !isMsg || msg.Kind != op.MsgRecordBatch {
			return raw, true, nil
		}
		b := msg.Batch
		for _, a := range s.Assignments {
			result := expr.Eval(a.Expr, b, octx.Session)
			b = b.WithColumn(a.Field, result.Type, result.Values)
		}
		return op.BatchMessage(b), true, nil
	}}, nil
}

// Select restricts the batch to the named/derived fields, in order
//: a plain name passes an existing column
// through, a `name=expr` clause computes a fresh one.
type Select struct {
	baseOperator
	Assignments []Assignment
}

func NewSelect(assignments []Assignment) *Select {
	return &Select{
		baseOperator: baseOperator{name: "select", sig: op.Signature{Transformation: true, Input: op.RecordBatch, Output: op.RecordBatch}},
		Assignments:  assignments,
	}
}

func (s *Select) Open(octx *op.Context, upstream op.Stream) (op.Stream, error) {
	return funcStream{next: func(ctx context.Context) (any, bool, error) {
		raw, ok, err := upstream.Next(ctx)
		if err != nil || !ok {
			return raw, ok, err
		}
		msg, isMsg := raw.(op.Message)
		if !isMsg || msg.Kind != op.MsgRecordBatch {
			return raw, true, nil
		}
		b := msg.Batch
		names := make([]string, 0, len(s.Assignments))
		for _, a := range s.Assignments {
			if a.Expr == nil {
				names = append(names, a.Field)
				continue
			}
			result := expr.Eval(a.Expr, b, octx.Session)
			b = b.WithColumn(a.Field, result.Type, result.Values)
			names = append(names, a.Field)
		}
		projected, err := b.Select(names)
		if err != nil {
			octx.Session.WarnOnce(err.Error(), diag.Location{})
			return raw, true, nil
		}
		return op.BatchMessage(projected), true, nil
	}}, nil
}
