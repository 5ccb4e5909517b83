// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pipeline implements the composer & optimizer (spec §4.4): it
// turns a TQL string into a validated, optimized, linear sequence of
// instantiated operators. It is the one package that ties together
// pkg/tenzir/tql (syntax), pkg/tenzir/op (the operator capability), and
// every concrete operator plugin in pkg/tenzir/operators, mirroring how
// the teacher's internal/api wires route handlers against the
// repository layer: a thin registry plus an explicit, ordered build
// procedure rather than implicit global registration.
package pipeline

import (
	"fmt"

	"github.com/tenzir/pipeline-core/pkg/nats"
	"github.com/tenzir/pipeline-core/pkg/tenzir/catalog"
	"github.com/tenzir/pipeline-core/pkg/tenzir/checkpoint"
	"github.com/tenzir/pipeline-core/pkg/tenzir/diag"
	"github.com/tenzir/pipeline-core/pkg/tenzir/expr"
	"github.com/tenzir/pipeline-core/pkg/tenzir/metrics"
	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
	"github.com/tenzir/pipeline-core/pkg/tenzir/tql"
)

// PluginFunc is one operator plugin's `parse(invocation, session) ->
// operator | failure` entry point (spec §6.1). env carries every runtime
// handle an operator might need at parse time: the expression registry
// for compiling embedded expressions, and read-only access to node-wide
// state for the aspect sources of spec §6.4.
type PluginFunc func(inv *tql.Invocation, env *Env) (op.Operator, error)

// Registry is an explicit, immutable-after-init map from operator name
// to its plugin (spec §9 "Plugin discovery": "a systems-language
// implementation should build an explicit registry populated at startup
// from a static list ... no global dynamic constructors").
type Registry struct {
	plugins map[string]PluginFunc
}

// NewRegistry builds an empty registry. Callers populate it with
// Register; DefaultRegistry returns one pre-populated with every builtin
// operator named in spec §4.7.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]PluginFunc)}
}

func (r *Registry) Register(name string, fn PluginFunc) {
	r.plugins[name] = fn
}

func (r *Registry) Lookup(name string) (PluginFunc, bool) {
	fn, ok := r.plugins[name]
	return fn, ok
}

// Env bundles the session-scoped resources a plugin's parse function may
// consult (spec GLOSSARY "Session": "a context object passed through
// parse and execution carrying the diagnostic sink and runtime
// handles").
type Env struct {
	Registry   *Registry
	Functions  *expr.Registry
	Session    *diag.Session
	Catalog    *catalog.Catalog
	Metrics    *metrics.Registry
	Diagnostics func() []diag.Diagnostic
	// NATS is optional: only `load nats://`/`save nats://` connectors
	// require it, and a node without NATS configured simply cannot use
	// those two connectors.
	NATS *nats.Client
	// Injector is optional: internal/manager sets one per started
	// pipeline so its `from`/`load` source picks up the node's
	// configured checkpoint boundaries (spec §4.6); composing a
	// sub-pipeline for tests or `fork`/`unordered` leaves it nil.
	Injector *checkpoint.Injector
}

// composeSub parses nested pipeline text (used by `fork`/`unordered`)
// into its flattened operator chain. Unlike the top-level Compose, it
// does not type-check, optimize, or locate the sub-pipeline.
func (env *Env) composeSub(src string) ([]op.Operator, error) {
	p, err := composeOperators(src, env)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// parseError wraps a plugin construction failure with the offending
// source location so the top-level Compose can attach a diagnostic
// (spec §7 "Parse-time errors abort pipeline start and are surfaced as
// diagnostics pointing at source locations").
type parseError struct {
	Stage string
	Err   error
}

func (e *parseError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *parseError) Unwrap() error { return e.Err }
