// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package series holds the typed column result of expression evaluation
//: given an expression and a batch of length N, the
// evaluator produces a Series of length N.
package series

import "github.com/tenzir/pipeline-core/pkg/tenzir/typ"

// Series is one typed column, not necessarily yet attached to a schema.
// It is the evaluator's unit of work; batch.Column is its on-disk,
// schema-attached counterpart.
type Series struct {
	Type   typ.Type
	Values []any
}

func Of(t typ.Type, values []any) Series {
	return Series{Type: t, Values: values}
}

// Const builds a Series of length n all holding the same value, used for
// literal expressions.
func Const(t typ.Type, value any, n int) Series {
	values := make([]any, n)
	for i := range values {
		values[i] = value
	}
	return Series{Type: t, Values: values}
}

func Nulls(n int) Series {
	return Series{Type: typ.Null(), Values: make([]any, n)}
}

func (s Series) Len() int { return len(s.Values) }

// Map applies fn element-wise, propagating null (fn is not called for
// null inputs) and returning a new Series of type rt.
func (s Series) Map(rt typ.Type, fn func(any) any) Series {
	out := make([]any, len(s.Values))
	for i, v := range s.Values {
		if v == nil {
			continue
		}
		out[i] = fn(v)
	}
	return Series{Type: rt, Values: out}
}

// Zip2 combines two equal-length series element-wise, nulling a row if
// either input is null.
func Zip2(a, b Series, rt typ.Type, fn func(x, y any) any) Series {
	n := a.Len()
	out := make([]any, n)
	for i := 0; i < n; i++ {
		if a.Values[i] == nil || b.Values[i] == nil {
			continue
		}
		out[i] = fn(a.Values[i], b.Values[i])
	}
	return Series{Type: rt, Values: out}
}
