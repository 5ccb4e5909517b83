// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
	"github.com/tenzir/pipeline-core/pkg/tenzir/operators"
	"github.com/tenzir/pipeline-core/pkg/tenzir/tql"
)

// DefaultRegistry returns a Registry pre-populated with every builtin
// operator plugin named in spec §4.7 (the aggregation/set operators)
// plus the aspect sources of spec §6.4, matching spec §9's "explicit
// registry populated at startup from a static list" guidance.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("from", parseFrom)
	r.Register("where", parseWhere)
	r.Register("set", parseSet)
	r.Register("select", parseSelect)
	r.Register("head", parseHead)
	r.Register("tail", parseTail)
	r.Register("repeat", parseRepeat)
	r.Register("summarize", parseSummarize)
	r.Register("unordered", parseUnordered)
	r.Register("fork", parseFork)
	r.Register("assert_throughput", parseAssertThroughput)
	r.Register("cast", parseCast)
	r.Register("flatten", parseFlatten)
	r.Register("partitions", parsePartitions)
	r.Register("schemas", parseSchemas)
	r.Register("plugins", parsePlugins)
	r.Register("diagnostics", parseDiagnostics)
	r.Register("metrics", parseMetrics)
	registerIOPlugins(r)
	return r
}

func parseFrom(inv *tql.Invocation, env *Env) (op.Operator, error) {
	b := tql.NewBuilder(inv)
	source := b.Remainder()
	if len(source) == 0 {
		return nil, fmt.Errorf("invalid_argument: from: expected a JSON array literal")
	}
	// Positional-splitting on top-level commas rejoins a multi-object
	// JSON array's own commas back together, since the whole literal was
	// a single bracketed positional argument; only multiple top-level
	// arguments (which `from` never takes) would produce more than one
	// element here.
	from, err := operators.NewFrom(source[0])
	if err != nil {
		return nil, err
	}
	from.Injector = env.Injector
	return from, nil
}

func parseWhere(inv *tql.Invocation, env *Env) (op.Operator, error) {
	return operators.NewWhere(inv.Raw, inv.Location, env.Functions)
}

func parseSet(inv *tql.Invocation, env *Env) (op.Operator, error) {
	b := tql.NewBuilder(inv)
	assigns, err := b.Assignments(env.Functions)
	if err != nil {
		return nil, err
	}
	if err := b.Err(); err != nil {
		return nil, err
	}
	return operators.NewSet(toOperatorAssignments(assigns)), nil
}

func parseSelect(inv *tql.Invocation, env *Env) (op.Operator, error) {
	b := tql.NewBuilder(inv)
	assigns, err := b.Assignments(env.Functions)
	if err != nil {
		return nil, err
	}
	if err := b.Err(); err != nil {
		return nil, err
	}
	return operators.NewSelect(toOperatorAssignments(assigns)), nil
}

func toOperatorAssignments(in []tql.Assignment) []operators.Assignment {
	out := make([]operators.Assignment, len(in))
	for i, a := range in {
		out[i] = operators.Assignment{Field: a.Field, Expr: a.Expr}
	}
	return out
}

func parseHead(inv *tql.Invocation, env *Env) (op.Operator, error) {
	b := tql.NewBuilder(inv)
	n := b.Int()
	if err := b.Err(); err != nil {
		return nil, err
	}
	return operators.NewHead(n), nil
}

func parseTail(inv *tql.Invocation, env *Env) (op.Operator, error) {
	b := tql.NewBuilder(inv)
	n := b.Int()
	if err := b.Err(); err != nil {
		return nil, err
	}
	return operators.NewTail(n), nil
}

func parseRepeat(inv *tql.Invocation, env *Env) (op.Operator, error) {
	b := tql.NewBuilder(inv)
	// `repeat` without a count replays "until cancelled" (spec §9 open
	// question), modeled as N == 0 meaning unbounded.
	n := b.OptionalInt(0)
	if err := b.Err(); err != nil {
		return nil, err
	}
	return operators.NewRepeat(n), nil
}

// summarizeAggPattern matches one `output=func(field)` aggregation
// clause of a `summarize` invocation; `field` is optional since some
// aggregations (e.g. `once`) are meaningful applied to a single column
// named by position elsewhere, but the common case always names it.
var summarizeAggPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*=\s*([A-Za-z_][A-Za-z0-9_]*)\s*\(\s*([A-Za-z_][A-Za-z0-9_.]*)?\s*\)$`)

// parseSummarize splits the invocation's raw argument text on top-level
// commas, preserving declaration order (spec §2 C7 "summarize"): a bare
// identifier is a grouping key, an `output=func(field)` clause is an
// aggregation. Order matters for both, since it fixes the output
// schema's field order (spec §3.1 "record field order").
func parseSummarize(inv *tql.Invocation, env *Env) (op.Operator, error) {
	clauses, err := tql.SplitTopLevelArgs(inv.Raw)
	if err != nil {
		return nil, fmt.Errorf("parse_error: summarize: %w", err)
	}
	var groupBy []string
	var aggs []operators.SummarizeAgg
	for _, raw := range clauses {
		c := strings.TrimSpace(raw)
		if c == "" {
			continue
		}
		if m := summarizeAggPattern.FindStringSubmatch(c); m != nil {
			aggs = append(aggs, operators.SummarizeAgg{Output: m[1], Func: m[2], Field: m[3]})
			continue
		}
		groupBy = append(groupBy, c)
	}
	if len(aggs) == 0 {
		return nil, fmt.Errorf("invalid_argument: summarize: expected at least one `name=func(field)` aggregation clause")
	}
	return operators.NewSummarize(groupBy, aggs, env.Functions), nil
}

func parseUnordered(inv *tql.Invocation, env *Env) (op.Operator, error) {
	b := tql.NewBuilder(inv)
	child := b.PipelineText()
	if err := b.Err(); err != nil {
		return nil, err
	}
	childOps, err := env.composeSub(child)
	if err != nil {
		return nil, err
	}
	if len(childOps) != 1 {
		return nil, fmt.Errorf("invalid_argument: unordered: expects exactly one child operator, got %d", len(childOps))
	}
	return operators.NewUnordered(childOps[0]), nil
}

func parseFork(inv *tql.Invocation, env *Env) (op.Operator, error) {
	b := tql.NewBuilder(inv)
	side := b.PipelineText()
	if err := b.Err(); err != nil {
		return nil, err
	}
	sideOps, err := env.composeSub(side)
	if err != nil {
		return nil, err
	}
	return operators.NewFork(chainOperator(sideOps)), nil
}

// chainOperator collapses a multi-stage side pipeline into a single
// op.Operator Fork can drive, by composing the stages' Open calls in
// sequence at Open time.
func chainOperator(ops []op.Operator) op.Operator {
	if len(ops) == 1 {
		return ops[0]
	}
	return operators.NewChain(ops)
}

func parseAssertThroughput(inv *tql.Invocation, env *Env) (op.Operator, error) {
	b := tql.NewBuilder(inv)
	minEvents := b.Int()
	within := b.NamedDuration("within", 1*time.Second)
	retries := b.NamedInt("retries", 0)
	if err := b.Err(); err != nil {
		return nil, err
	}
	return operators.NewAssertThroughput(minEvents, within, retries), nil
}

func parseCast(inv *tql.Invocation, env *Env) (op.Operator, error) {
	b := tql.NewBuilder(inv)
	name := b.String()
	if err := b.Err(); err != nil {
		return nil, err
	}
	t, ok := env.Catalog.LookupNamedSchema(name)
	if !ok {
		return nil, fmt.Errorf("lookup_error: cast: unknown schema %q", name)
	}
	return operators.NewCast(t), nil
}

func parseFlatten(inv *tql.Invocation, env *Env) (op.Operator, error) {
	b := tql.NewBuilder(inv)
	sep := b.OptionalString(".")
	if err := b.Err(); err != nil {
		return nil, err
	}
	return operators.NewFlatten(sep), nil
}

func parsePartitions(inv *tql.Invocation, env *Env) (op.Operator, error) {
	return operators.Partitions(env.Catalog), nil
}

func parseSchemas(inv *tql.Invocation, env *Env) (op.Operator, error) {
	return operators.Schemas(env.Catalog), nil
}

func parsePlugins(inv *tql.Invocation, env *Env) (op.Operator, error) {
	return operators.Plugins(env.Catalog), nil
}

func parseDiagnostics(inv *tql.Invocation, env *Env) (op.Operator, error) {
	return operators.Diagnostics(env.Diagnostics), nil
}

func parseMetrics(inv *tql.Invocation, env *Env) (op.Operator, error) {
	return operators.Metrics(env.Metrics), nil
}
