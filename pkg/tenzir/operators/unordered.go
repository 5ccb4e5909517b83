// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package operators

import "github.com/tenzir/pipeline-core/pkg/tenzir/op"

// Unordered wraps a child operator and relaxes the ordering contract the
// composer enforces between neighbors: it
// does not reorder rows itself (its Open simply delegates), it only
// advertises op.Unordered so the pipeline optimizer (pkg/tenzir/pipeline)
// is free to parallelize or reorder around it.
type Unordered struct {
	Child op.Operator
}

func NewUnordered(child op.Operator) *Unordered {
	return &Unordered{Child: child}
}

func (u *Unordered) Name() string            { return "unordered(" + u.Child.Name() + ")" }
func (u *Unordered) Signature() op.Signature  { return u.Child.Signature() }
func (u *Unordered) Location() op.Location    { return u.Child.Location() }
func (u *Unordered) Internal() bool           { return u.Child.Internal() }
func (u *Unordered) IdleAfter() (float64, bool) { return u.Child.IdleAfter() }

func (u *Unordered) InferType(in op.ElementKind) (op.ElementKind, error) {
	return u.Child.InferType(in)
}

func (u *Unordered) Open(ctx *op.Context, upstream op.Stream) (op.Stream, error) {
	return u.Child.Open(ctx, upstream)
}

// Optimize requests op.Unordered from whatever sits upstream of this
// wrapper, regardless of what the child itself would have asked for.
func (u *Unordered) Optimize(filter string, order op.Order) op.OptimizeResult {
	result := u.Child.Optimize(filter, order)
	result.RequestedOrder = op.Unordered
	return result
}
