// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package expr implements the expression & function evaluator (spec
// §3.4/§4.2): compiling TQL expression text into a runnable program and
// evaluating it row-by-row against a record batch, producing a typed
// series.Series and nulling individual rows (with a deduplicated warning)
// instead of aborting the batch on a runtime type error.
//
// Expressions are compiled with github.com/expr-lang/expr, the same
// engine the teacher already uses to compile and run user-supplied
// boolean/numeric rule expressions in internal/tagger/classifyJob.go. A
// Tenzir expression's field paths become expr-lang map-field accesses
// against the row's map[string]any view (batch.Batch.Row); builtin
// functions are registered as expr-lang custom functions (functions.go).
package expr

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/tenzir/pipeline-core/pkg/tenzir/batch"
	"github.com/tenzir/pipeline-core/pkg/tenzir/diag"
	"github.com/tenzir/pipeline-core/pkg/tenzir/series"
	"github.com/tenzir/pipeline-core/pkg/tenzir/typ"
)

// Expression is a compiled TQL expression: a parsed AST with a
// static kind hint ("any" if unknown, modeled as typ.KindNull meaning "not
// statically known") and a source location for diagnostics.
type Expression struct {
	Source   string
	program  *vm.Program
	Location diag.Location
	KindHint typ.Kind
	// HasHint is false when the static kind hint is "any".
	HasHint bool
}

// Compile parses and type-checks source as an expr-lang program extended
// with the builtin registry (functions.go, aggregation.go). loc attaches a
// source-location for diagnostics raised later during evaluation.
//
// TQL allows calling a registered function in either plain or method-call
// notation (`starts_with(s, "f")` or `s.starts_with("f")`); since our
// functions are registered as free expr-lang functions rather than
// methods on the row's map[string]any environment, the method form is
// rewritten to the plain form before compiling.
func Compile(source string, loc diag.Location, reg *Registry) (*Expression, error) {
	opts := []expr.Option{
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
	}
	opts = append(opts, reg.functionOptions()...)

	program, err := expr.Compile(normalizeMethodCalls(source, reg), opts...)
	if err != nil {
		return nil, fmt.Errorf("parse_error: %w", err)
	}
	return &Expression{Source: source, program: program, Location: loc}, nil
}

// Eval evaluates e against every row of b, producing a series of b.Rows()
// length. Per spec §4.2, a runtime type error on one row yields null for
// that row plus a deduplicated warning via session, rather than failing
// the whole batch.
func Eval(e *Expression, b *batch.Batch, session *diag.Session) series.Series {
	rows := b.Rows()
	out := make([]any, rows)
	for i := 0; i < rows; i++ {
		env := b.Row(i)
		v, err := expr.Run(e.program, env)
		if err != nil {
			if session != nil {
				session.WarnOnce(fmt.Sprintf("expression %q failed: %v", e.Source, err), e.Location)
			}
			continue
		}
		out[i] = v
	}
	return series.Of(inferResultType(out), out)
}

// EvalBool is a convenience for `where`-style boolean predicates: it
// returns one flag per row, true where e evaluated to boolean true.
func EvalBool(e *Expression, b *batch.Batch, session *diag.Session) []bool {
	s := Eval(e, b, session)
	out := make([]bool, len(s.Values))
	for i, v := range s.Values {
		if bv, ok := v.(bool); ok {
			out[i] = bv
		}
	}
	return out
}

func inferResultType(values []any) typ.Type {
	for _, v := range values {
		if v == nil {
			continue
		}
		switch v.(type) {
		case bool:
			return typ.Bool()
		case int, int64:
			return typ.Int64()
		case uint64:
			return typ.Uint64()
		case float64:
			return typ.Double()
		case string:
			return typ.String()
		}
	}
	return typ.Null()
}
