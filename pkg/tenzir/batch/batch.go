// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package batch

import (
	"fmt"

	"github.com/tenzir/pipeline-core/pkg/tenzir/typ"
)

// Column is one typed, named column of a Batch. A nil entry in Values
// represents the null value for that row.
type Column struct {
	Name   string
	Type   typ.Type
	Values []any
}

// Batch is a columnar, immutable buffer of events sharing one record
// schema. Batches are never mutated after construction;
// transformations produce new batches referencing the same or sliced
// underlying column storage.
type Batch struct {
	schema  typ.Type
	columns []Column
}

// New constructs a batch directly from columns that must already conform
// to schema (same field count/order, matching lengths). It panics if they
// don't, since this is an internal invariant violation rather than a
// recoverable per-row error.
func New(schema typ.Type, columns []Column) *Batch {
	if schema.Kind != typ.KindRecord {
		panic("batch.New: schema must be a record type")
	}
	if len(columns) != len(schema.Fields) {
		panic("batch.New: column count does not match schema field count")
	}
	n := -1
	for i, c := range columns {
		if c.Name != schema.Fields[i].Name {
			panic(fmt.Sprintf("batch.New: column %d name %q does not match schema field %q", i, c.Name, schema.Fields[i].Name))
		}
		if n == -1 {
			n = len(c.Values)
		} else if len(c.Values) != n {
			panic("batch.New: columns have mismatched lengths")
		}
	}
	return &Batch{schema: schema, columns: columns}
}

// Empty returns a zero-row batch of the given schema.
func Empty(schema typ.Type) *Batch {
	cols := make([]Column, len(schema.Fields))
	for i, f := range schema.Fields {
		cols[i] = Column{Name: f.Name, Type: f.Type}
	}
	return &Batch{schema: schema, columns: cols}
}

func (b *Batch) Schema() typ.Type { return b.schema }

func (b *Batch) Columns() []Column { return b.columns }

func (b *Batch) Rows() int {
	if len(b.columns) == 0 {
		return 0
	}
	return len(b.columns[0].Values)
}

// Column looks up a column by name.
func (b *Batch) Column(name string) (Column, bool) {
	for _, c := range b.columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Slice returns a zero-copy view over rows [from, to). The returned batch
// shares the underlying arrays with b; since batches are immutable this is
// always safe.
func (b *Batch) Slice(from, to int) *Batch {
	cols := make([]Column, len(b.columns))
	for i, c := range b.columns {
		cols[i] = Column{Name: c.Name, Type: c.Type, Values: c.Values[from:to]}
	}
	return &Batch{schema: b.schema, columns: cols}
}

// Row materializes one event as a name->value map. Used by printers and
// diagnostics; the hot evaluation path works column-wise instead.
func (b *Batch) Row(i int) map[string]any {
	out := make(map[string]any, len(b.columns))
	for _, c := range b.columns {
		out[c.Name] = c.Values[i]
	}
	return out
}

// WithColumn returns a new batch with column name replaced or appended,
// used by `set`. The schema is rebuilt accordingly.
func (b *Batch) WithColumn(name string, t typ.Type, values []any) *Batch {
	fields := make([]typ.Field, 0, len(b.schema.Fields)+1)
	cols := make([]Column, 0, len(b.columns)+1)
	replaced := false
	for i, f := range b.schema.Fields {
		if f.Name == name {
			fields = append(fields, typ.Field{Name: name, Type: t})
			cols = append(cols, Column{Name: name, Type: t, Values: values})
			replaced = true
			continue
		}
		fields = append(fields, f)
		cols = append(cols, b.columns[i])
	}
	if !replaced {
		fields = append(fields, typ.Field{Name: name, Type: t})
		cols = append(cols, Column{Name: name, Type: t, Values: values})
	}
	return &Batch{schema: typ.Record(fields...), columns: cols}
}

// Select restricts the batch to the named fields, in the given order
//.
func (b *Batch) Select(names []string) (*Batch, error) {
	fields := make([]typ.Field, 0, len(names))
	cols := make([]Column, 0, len(names))
	for _, name := range names {
		c, ok := b.Column(name)
		if !ok {
			return nil, fmt.Errorf("batch.Select: no such field %q", name)
		}
		fields = append(fields, typ.Field{Name: name, Type: c.Type})
		cols = append(cols, c)
	}
	return &Batch{schema: typ.Record(fields...), columns: cols}, nil
}
