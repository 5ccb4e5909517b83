// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package operators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/tenzir/pipeline-core/pkg/tenzir/batch"
	"github.com/tenzir/pipeline-core/pkg/tenzir/checkpoint"
	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
	"github.com/tenzir/pipeline-core/pkg/tenzir/typ"
)

// From is the `from [...]` inline-literal source: it decodes a JSON array
// of objects and emits them as one or more record batches, splitting per
// batch.Builder.FinishAsRecordBatches's row cap. It is the one source
// every concrete end-to-end scenario in the spec uses.
type From struct {
	baseOperator
	Rows []map[string]any

	// Injector is optional: when a running pipeline configures one
	// (internal/manager, one per started pipeline), From checks it
	// between batches and inserts a checkpoint marker the moment it is
	// due, exactly like any other source would (spec §4.6's boundary
	// kinds apply to every source, not only `load`).
	Injector *checkpoint.Injector
}

// NewFrom parses source (a JSON array-of-objects literal, the only shape
// spec §8's scenarios exercise) into a From operator.
func NewFrom(source string) (*From, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(source)))
	dec.UseNumber()
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("invalid_argument: from: %w", err)
	}
	return &From{
		baseOperator: baseOperator{name: "from", sig: op.Signature{Source: true, Output: op.RecordBatch}},
		Rows:         rows,
	}, nil
}

func (f *From) Open(octx *op.Context, upstream op.Stream) (op.Stream, error) {
	b := batch.NewBuilder("tenzir.from")
	for _, row := range f.Rows {
		appendRow(b, row)
	}
	batches := b.FinishAsRecordBatches(0)
	idx := 0
	return funcStream{next: func(ctx context.Context) (any, bool, error) {
		if f.Injector != nil && f.Injector.Due() {
			return f.Injector.Next(), true, nil
		}
		if octx.StopRequested != nil && octx.StopRequested() {
			// Drain to the next checkpoint marker, then stop emitting data
			// (spec §4.6 "Stop after checkpoint"): once stop is requested,
			// From still forwards a marker if one is already due (handled
			// above on the next call), but never starts another batch.
			return op.Exhausted(), true, nil
		}
		if idx >= len(batches) {
			if idx == len(batches) {
				idx++
				return op.Exhausted(), true, nil
			}
			return nil, false, nil
		}
		out := batches[idx]
		idx++
		if f.Injector != nil {
			if cols := out.Columns(); len(cols) > 0 {
				f.Injector.ObserveRows(int64(len(cols[0].Values)))
			}
		}
		return op.BatchMessage(out), true, nil
	}}, nil
}

// appendRow writes one decoded JSON object as a row, recursing into
// nested objects/arrays so that `from` can seed arbitrarily structured
// events, not just flat ones.
func appendRow(b *batch.Builder, row map[string]any) {
	for name, v := range row {
		t, value := jsonValue(v)
		b.Field(name).Data(t, value)
	}
	b.EndRow()
}

// jsonValue maps one decoded JSON value (as produced by a
// json.Decoder with UseNumber) onto its closed-set type and a
// representation batch columns can hold directly.
func jsonValue(v any) (typ.Type, any) {
	switch x := v.(type) {
	case nil:
		return typ.Null(), nil
	case bool:
		return typ.Bool(), x
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return typ.Int64(), i
		}
		f, _ := x.Float64()
		return typ.Double(), f
	case string:
		return typ.String(), x
	case []any:
		return jsonArray(x)
	case map[string]any:
		return jsonRecord(x)
	default:
		return typ.String(), fmt.Sprintf("%v", x)
	}
}

// jsonArray infers a list(element) type from the first non-null element,
// falling back to list(string) for an empty or all-null array.
func jsonArray(items []any) (typ.Type, []any) {
	elemType := typ.String()
	found := false
	out := make([]any, len(items))
	for i, it := range items {
		t, v := jsonValue(it)
		out[i] = v
		if !found && t.Kind != typ.KindNull {
			elemType = t
			found = true
		}
	}
	return typ.List(elemType), out
}

// jsonRecord turns a nested JSON object into a typ.Record-typed value,
// represented as a map[string]any so batch columns and flatten (§4.1)
// can both introspect it.
func jsonRecord(obj map[string]any) (typ.Type, map[string]any) {
	fields := make([]typ.Field, 0, len(obj))
	out := make(map[string]any, len(obj))
	for name, v := range obj {
		t, value := jsonValue(v)
		fields = append(fields, typ.Field{Name: name, Type: t})
		out[name] = value
	}
	return typ.Record(fields...), out
}
