// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package batch

import "github.com/tenzir/pipeline-core/pkg/tenzir/typ"

// DefaultBatchRowCap is the target batch-row cap used by
// Builder.FinishAsRecordBatches when the caller does not override it
//. Named after the teacher's own
// BufferCap constant in internal/memorystore/buffer.go, which plays the
// same "split once a chain link is full" role for float samples.
const DefaultBatchRowCap = 64 * 1024

// Builder accumulates rows into named, order-of-first-use columns and
// finalizes them into one or more record batches. It is the Go analogue
// of spec §4.1's `builder.field(name).data(value)`.
type Builder struct {
	schemaName string
	order      []string
	fields     map[string]*fieldBuilder
	rows       int
}

type fieldBuilder struct {
	typ    typ.Type
	known  bool
	values []any
}

// NewBuilder starts a builder whose finished batches carry schemaName as
// their record type's display name.
func NewBuilder(schemaName string) *Builder {
	return &Builder{schemaName: schemaName, fields: make(map[string]*fieldBuilder)}
}

// Field returns a handle for appending values to the named column,
// registering the column (in first-use order) if it hasn't been seen yet.
func (b *Builder) Field(name string) *FieldHandle {
	fb, ok := b.fields[name]
	if !ok {
		fb = &fieldBuilder{}
		b.fields[name] = fb
		b.order = append(b.order, name)
		// Backfill nulls so this column aligns with rows already appended
		// to other columns of the same event.
		for i := 0; i < b.rows; i++ {
			fb.values = append(fb.values, nil)
		}
	}
	return &FieldHandle{b: b, fb: fb}
}

// FieldHandle is the per-column append cursor returned by Builder.Field.
type FieldHandle struct {
	b  *Builder
	fb *fieldBuilder
}

// Data appends value of the given static type to this column. Calling
// Data with a different type than a prior call widens the column's
// declared type to typ.KindRecord-compatible union is not attempted: the
// first non-null type observed wins, and later mismatches are the
// evaluator's concern (it nulls out per-row on type errors, spec §4.2),
// not the builder's.
func (h *FieldHandle) Data(t typ.Type, value any) {
	if !h.fb.known && t.Kind != typ.KindNull {
		h.fb.typ = t
		h.fb.known = true
	}
	h.fb.values = append(h.fb.values, value)
}

// EndRow must be called once per logical event after all of its present
// fields have received Data; absent fields are backfilled with null so
// every column stays aligned to Builder.rows+1.
func (b *Builder) EndRow() {
	b.rows++
	for _, name := range b.order {
		fb := b.fields[name]
		if len(fb.values) < b.rows {
			fb.values = append(fb.values, nil)
		}
	}
}

func (b *Builder) Rows() int { return b.rows }

// FinishAsRecordBatches finalizes accumulated rows into one or more
// batches, splitting every rowCap rows so that no single batch exceeds the
// cap. rowCap <= 0 selects DefaultBatchRowCap.
func (b *Builder) FinishAsRecordBatches(rowCap int) []*Batch {
	if rowCap <= 0 {
		rowCap = DefaultBatchRowCap
	}
	if b.rows == 0 {
		return nil
	}

	fields := make([]typ.Field, len(b.order))
	for i, name := range b.order {
		fb := b.fields[name]
		ft := fb.typ
		if !fb.known {
			ft = typ.Null()
		}
		fields[i] = typ.Field{Name: name, Type: ft}
	}
	schema := typ.Record(fields...).Named(b.schemaName)

	var out []*Batch
	for start := 0; start < b.rows; start += rowCap {
		end := start + rowCap
		if end > b.rows {
			end = b.rows
		}
		cols := make([]Column, len(b.order))
		for i, name := range b.order {
			fb := b.fields[name]
			cols[i] = Column{Name: name, Type: fields[i].Type, Values: append([]any(nil), fb.values[start:end]...)}
		}
		out = append(out, &Batch{schema: schema, columns: cols})
	}
	return out
}

// Reset clears the builder for reuse, analogous to the teacher's
// sync.Pool-backed buffer reuse in internal/memorystore/buffer.go.
func (b *Builder) Reset() {
	b.order = nil
	b.fields = make(map[string]*fieldBuilder)
	b.rows = 0
}
