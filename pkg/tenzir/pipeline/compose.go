// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"fmt"

	"github.com/tenzir/pipeline-core/pkg/tenzir/diag"
	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
	"github.com/tenzir/pipeline-core/pkg/tenzir/tql"
)

// Pipeline is the fully composed result of spec §4.4: a flattened,
// type-checked, optimized, located ordered sequence of operator
// instances ready to hand to pkg/tenzir/exec.
type Pipeline struct {
	Operators []op.Operator
	Location  op.Location
}

// Compose parses src, instantiates every stage's operator plugin,
// flattens nested groups, type-checks adjacent element kinds, pushes
// predicate/order pushdown from the sink backwards, and determines the
// pipeline's overall location. It implements spec §4.4 steps 1-4 in
// order.
func Compose(src string, env *Env) (*Pipeline, error) {
	operators, err := composeOperators(src, env)
	if err != nil {
		return nil, err
	}
	if err := typeCheck(operators); err != nil {
		return nil, err
	}
	operators = optimize(operators)
	loc, err := locate(operators)
	if err != nil {
		return nil, err
	}
	return &Pipeline{Operators: operators, Location: loc}, nil
}

// composeOperators implements step 1 (Flatten) together with
// invocation parsing: tql.Split already flattens whole-group stages, so
// this just maps each stage string through tql.Parse and the matching
// plugin.
func composeOperators(src string, env *Env) ([]op.Operator, error) {
	stages, err := tql.Split(src)
	if err != nil {
		return nil, fmt.Errorf("parse_error: %w", err)
	}
	operators := make([]op.Operator, 0, len(stages))
	for _, stage := range stages {
		inv, err := tql.Parse(stage)
		if err != nil {
			return nil, fmt.Errorf("parse_error: %w", err)
		}
		fn, ok := env.Registry.Lookup(inv.Name)
		if !ok {
			diag.Errorf("unknown operator %q", inv.Name).
				Primary(inv.Location).
				Source(inv.Name).
				Emit(env.Session)
			return nil, &parseError{Stage: inv.Name, Err: fmt.Errorf("lookup_error: unknown operator %q", inv.Name)}
		}
		instance, err := fn(inv, env)
		if err != nil {
			diag.Errorf("failed to parse operator %q: %v", inv.Name, err).
				Primary(inv.Location).
				Source(inv.Name).
				Emit(env.Session)
			return nil, &parseError{Stage: inv.Name, Err: err}
		}
		operators = append(operators, instance)
	}
	return operators, nil
}

// typeCheck implements step 2: walk adjacent operators, rejecting on the
// first incompatible edge with a diagnostic pointing at it (spec §4.4,
// §3.5 "Composition is valid iff adjacent operators' declared output
// type is assignable to the next operator's declared input type").
func typeCheck(operators []op.Operator) error {
	if len(operators) == 0 {
		return fmt.Errorf("parse_error: empty pipeline")
	}
	kind, err := operators[0].InferType(op.Void)
	if err != nil {
		return &op.TypeClashError{Operator: operators[0].Name(), Input: op.Void}
	}
	for i := 1; i < len(operators); i++ {
		next, err := operators[i].InferType(kind)
		if err != nil {
			return fmt.Errorf("type_clash: operator %q cannot accept %s produced by %q",
				operators[i].Name(), kind, operators[i-1].Name())
		}
		kind = next
	}
	if kind != op.Void {
		return fmt.Errorf("type_clash: pipeline must end in a sink, but %q produces %s",
			operators[len(operators)-1].Name(), kind)
	}
	return nil
}

// optimize implements step 3: starting from the sink, push the identity
// filter ("") and the Ordered order preference backwards, substituting
// Optimize's replacement operator and continuing with its residual
// filter until an operator halts pushdown.
func optimize(operators []op.Operator) []op.Operator {
	out := append([]op.Operator(nil), operators...)
	filter := ""
	order := op.Ordered
	for i := len(out) - 1; i >= 0; i-- {
		result := out[i].Optimize(filter, order)
		if result.Replacement != nil {
			out[i] = result.Replacement
		}
		if result.Halt {
			// Pushdown stops at this operator; operators upstream of it
			// see a reset, identity request (spec: "halts pushdown at
			// that point").
			filter = ""
			order = op.Ordered
			continue
		}
		filter = result.ResidualFilter
		if result.RequestedOrder != op.OrderUnspecified {
			order = result.RequestedOrder
		}
	}
	return out
}

// locate implements step 4: if any operator demands Remote, the whole
// pipeline is remote; a Local operator alongside a Remote one is a
// diagnostic (mixed conflicting locations).
func locate(operators []op.Operator) (op.Location, error) {
	loc := op.Anywhere
	sawLocal, sawRemote := false, false
	for _, o := range operators {
		switch o.Location() {
		case op.Local:
			sawLocal = true
		case op.Remote:
			sawRemote = true
			loc = op.Remote
		}
	}
	if sawLocal && sawRemote {
		return op.Anywhere, fmt.Errorf("invalid_configuration: pipeline mixes an operator that demands local execution with one that demands remote execution")
	}
	if sawLocal {
		loc = op.Local
	}
	return loc, nil
}
