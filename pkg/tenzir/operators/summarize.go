// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package operators

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/tenzir/pipeline-core/pkg/tenzir/batch"
	"github.com/tenzir/pipeline-core/pkg/tenzir/diag"
	"github.com/tenzir/pipeline-core/pkg/tenzir/expr"
	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
	"github.com/tenzir/pipeline-core/pkg/tenzir/typ"
)

// SummarizeAgg is one `output = func(field)` clause of a `summarize`
// invocation (spec §2 C7, §4.2 "Aggregation functions").
type SummarizeAgg struct {
	Output string
	Func   string
	Field  string
}

// groupState is one grouping key's running aggregation state, kept
// across every batch Summarize sees until the stream exhausts.
type groupState struct {
	key  []any
	aggs []expr.Aggregation
}

// Summarize groups rows by GroupBy column values and folds each group's
// named field through the matching registered aggregation. Unlike the
// row-local `set`/`select` operators it holds state across the whole
// run, buffering no rows itself but accumulating one Aggregation per
// group per output column, and emits exactly one grouped result at
// `exhausted` — the same "drain, then answer" shape as Tail, except the
// state here is exactly what spec §4.6 asks a stateful operator to
// save/restore across a checkpoint boundary.
type Summarize struct {
	baseOperator
	GroupBy  []string
	Aggs     []SummarizeAgg
	Registry *expr.Registry
}

func NewSummarize(groupBy []string, aggs []SummarizeAgg, reg *expr.Registry) *Summarize {
	return &Summarize{
		baseOperator: baseOperator{name: "summarize", sig: op.Signature{Transformation: true, Input: op.RecordBatch, Output: op.RecordBatch}},
		GroupBy:      groupBy,
		Aggs:         aggs,
		Registry:     reg,
	}
}

func (s *Summarize) Open(octx *op.Context, upstream op.Stream) (op.Stream, error) {
	groups := make(map[string]*groupState)
	var order []string

	if octx.Store != nil {
		if err := s.restore(octx, groups, &order); err != nil {
			diag.Warnf("summarize: restoring checkpoint state failed: %v", err).Source("summarize").Emit(octx.Session)
		}
	}

	var pending []op.Message
	idx := 0
	done := false

	return funcStream{next: func(ctx context.Context) (any, bool, error) {
		for {
			if idx < len(pending) {
				m := pending[idx]
				idx++
				return m, true, nil
			}
			if done {
				return nil, false, nil
			}
			pending, idx = nil, 0

			raw, ok, err := upstream.Next(ctx)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				done = true
				continue
			}
			msg, isMsg := raw.(op.Message)
			if !isMsg {
				continue
			}
			switch msg.Kind {
			case op.MsgRecordBatch:
				if err := s.update(msg.Batch, groups, &order); err != nil {
					octx.Session.WarnOnce(err.Error(), diag.Location{})
				}
			case op.MsgCheckpoint:
				if octx.Store != nil {
					if err := s.save(octx, msg.CheckpointEpoch, groups, order); err != nil {
						diag.Warnf("summarize: checkpoint save failed: %v", err).Source("summarize").Emit(octx.Session)
					}
				}
				pending = []op.Message{msg}
			case op.MsgExhausted:
				pending = s.finish(groups, order)
				done = true
			}
		}
	}}, nil
}

// update folds one batch's rows into the per-group aggregation state,
// creating a fresh group (and fresh Aggregation instances for it) the
// first time a key is seen.
func (s *Summarize) update(b *batch.Batch, groups map[string]*groupState, order *[]string) error {
	groupCols := make([]batch.Column, len(s.GroupBy))
	for i, name := range s.GroupBy {
		c, ok := b.Column(name)
		if !ok {
			return fmt.Errorf("lookup_error: summarize: no such grouping field %q", name)
		}
		groupCols[i] = c
	}
	aggCols := make([]batch.Column, len(s.Aggs))
	for i, a := range s.Aggs {
		if a.Field == "" {
			continue
		}
		c, ok := b.Column(a.Field)
		if !ok {
			return fmt.Errorf("lookup_error: summarize: no such field %q", a.Field)
		}
		aggCols[i] = c
	}

	for r := 0; r < b.Rows(); r++ {
		key := make([]any, len(groupCols))
		for i, c := range groupCols {
			key[i] = c.Values[r]
		}
		keyStr := fmt.Sprint(key)
		g, ok := groups[keyStr]
		if !ok {
			g = &groupState{key: key, aggs: make([]expr.Aggregation, len(s.Aggs))}
			for i, a := range s.Aggs {
				agg, ok := s.Registry.NewAggregation(a.Func)
				if !ok {
					return fmt.Errorf("lookup_error: summarize: unknown aggregation %q", a.Func)
				}
				g.aggs[i] = agg
			}
			groups[keyStr] = g
			*order = append(*order, keyStr)
		}
		for i, a := range s.Aggs {
			var v any
			if a.Field != "" {
				v = aggCols[i].Values[r]
			}
			if err := g.aggs[i].Update([]any{v}); err != nil {
				return fmt.Errorf("summarize: aggregation %q: %w", a.Output, err)
			}
		}
	}
	return nil
}

// finish materializes one row per group, in first-seen order, into
// record batches sized to the default row cap, followed by an exhausted
// marker.
func (s *Summarize) finish(groups map[string]*groupState, order []string) []op.Message {
	if len(order) == 0 {
		return []op.Message{op.Exhausted()}
	}
	b := batch.NewBuilder("summarize")
	for _, keyStr := range order {
		g := groups[keyStr]
		for i, name := range s.GroupBy {
			v := g.key[i]
			b.Field(name).Data(typeOfValue(v), v)
		}
		for i, a := range s.Aggs {
			v, err := g.aggs[i].Get()
			if err != nil {
				v = nil
			}
			b.Field(a.Output).Data(typeOfValue(v), v)
		}
		b.EndRow()
	}
	msgs := make([]op.Message, 0, 2)
	for _, bt := range b.FinishAsRecordBatches(0) {
		msgs = append(msgs, op.BatchMessage(bt))
	}
	msgs = append(msgs, op.Exhausted())
	return msgs
}

// typeOfValue infers a scalar or map-of-counts type from an aggregation
// result, mirroring the narrow "first non-null type observed wins"
// inference pkg/tenzir/expr's evaluator applies to derived columns.
func typeOfValue(v any) typ.Type {
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
	case map[string]int:
		return typ.Map(typ.String(), typ.Int64())
	default:
		return typ.Null()
	}
}

// summarizeSnapshot is the gob-serializable form of every group's state,
// the opaque blob spec §4.6/§6.7 calls "save() -> bytes" /
// "(operator_identity, epoch) -> blob".
type summarizeSnapshot struct {
	Order []string
	Keys  map[string][]any
	Aggs  map[string][][]byte
}

func (s *Summarize) save(octx *op.Context, epoch uint64, groups map[string]*groupState, order []string) error {
	snap := summarizeSnapshot{
		Order: append([]string(nil), order...),
		Keys:  make(map[string][]any, len(groups)),
		Aggs:  make(map[string][][]byte, len(groups)),
	}
	for k, g := range groups {
		snap.Keys[k] = g.key
		blobs := make([][]byte, len(g.aggs))
		for i, agg := range g.aggs {
			blob, err := agg.Save()
			if err != nil {
				return err
			}
			blobs[i] = blob
		}
		snap.Aggs[k] = blobs
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("summarize: encode checkpoint state: %w", err)
	}
	return octx.Store.Put(octx.Identity, epoch, buf.Bytes())
}

// restore loads the most recently committed snapshot for this
// operator's identity, if any (spec §4.6 "Recovery": "an operator is
// given the most recent committed blob ... and calls restore() before
// entering its data loop"). A missing or corrupt checkpoint is not
// itself an error per spec §7; the caller only warns and proceeds cold.
func (s *Summarize) restore(octx *op.Context, groups map[string]*groupState, order *[]string) error {
	blob, _, ok, err := octx.Store.Get(octx.Identity)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var snap summarizeSnapshot
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&snap); err != nil {
		return fmt.Errorf("summarize: decode checkpoint state: %w", err)
	}
	for _, keyStr := range snap.Order {
		g := &groupState{key: snap.Keys[keyStr], aggs: make([]expr.Aggregation, len(s.Aggs))}
		blobs := snap.Aggs[keyStr]
		for i, a := range s.Aggs {
			agg, ok := s.Registry.NewAggregation(a.Func)
			if !ok {
				return fmt.Errorf("lookup_error: summarize: unknown aggregation %q during restore", a.Func)
			}
			if i < len(blobs) {
				if err := agg.Restore(blobs[i]); err != nil {
					return fmt.Errorf("summarize: restore aggregation %q: %w", a.Output, err)
				}
			}
			g.aggs[i] = agg
		}
		groups[keyStr] = g
		*order = append(*order, keyStr)
	}
	return nil
}
