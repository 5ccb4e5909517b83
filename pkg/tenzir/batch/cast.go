// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package batch

import (
	"fmt"
	"strings"

	"github.com/tenzir/pipeline-core/pkg/tenzir/typ"
)

// Cast returns a new batch conforming to target when every column is
// castable, or a descriptive error naming every offending column
// otherwise.
func Cast(b *Batch, target typ.Type) (*Batch, error) {
	if reasons := typ.Castable(b.schema, target); len(reasons) > 0 {
		msgs := make([]string, len(reasons))
		for i, r := range reasons {
			msgs[i] = fmt.Sprintf("%s: %s", r.Field, r.Detail)
		}
		return nil, fmt.Errorf("cannot cast to %s: %s", target.Name, strings.Join(msgs, "; "))
	}

	rows := b.Rows()
	cols := make([]Column, len(target.Fields))
	for i, tf := range target.Fields {
		src, ok := b.Column(tf.Name)
		values := make([]any, rows)
		if ok {
			for r := 0; r < rows; r++ {
				values[r] = castValue(src.Values[r], tf.Type)
			}
		}
		cols[i] = Column{Name: tf.Name, Type: tf.Type, Values: values}
	}
	return &Batch{schema: target, columns: cols}, nil
}

func castValue(v any, to typ.Type) any {
	if v == nil {
		return nil
	}
	switch to.Kind {
	case typ.KindInt64:
		switch x := v.(type) {
		case int64:
			return x
		case uint64:
			return int64(x)
		case float64:
			return int64(x)
		}
	case typ.KindUint64:
		switch x := v.(type) {
		case int64:
			return uint64(x)
		case uint64:
			return x
		case float64:
			return uint64(x)
		}
	case typ.KindDouble:
		switch x := v.(type) {
		case int64:
			return float64(x)
		case uint64:
			return float64(x)
		case float64:
			return x
		}
	}
	return v
}

// Flatten expands nested records into dot-joined (or sep-joined) column
// names. It is idempotent: Flatten(Flatten(b)) == Flatten(b).
func Flatten(b *Batch, sep string) *Batch {
	if b.schema.Kind != typ.KindRecord {
		return b
	}
	flatSchema, _ := typ.Flatten(b.schema, sep)
	cols := make([]Column, 0, len(flatSchema.Fields))
	flattenColumns(b.columns, "", sep, &cols)
	return &Batch{schema: flatSchema, columns: cols}
}

func flattenColumns(cols []Column, prefix, sep string, out *[]Column) {
	rows := 0
	if len(cols) > 0 {
		rows = len(cols[0].Values)
	}
	for _, c := range cols {
		name := c.Name
		if prefix != "" {
			name = prefix + sep + c.Name
		}
		if c.Type.Kind == typ.KindRecord {
			nested := explodeRecordColumn(c, rows)
			flattenColumns(nested, name, sep, out)
			continue
		}
		*out = append(*out, Column{Name: name, Type: c.Type, Values: c.Values})
	}
}

// explodeRecordColumn turns a column whose values are row-wise
// map[string]any (a nested record) into per-field sub-columns so that
// flattenColumns can recurse uniformly.
func explodeRecordColumn(c Column, rows int) []Column {
	sub := make([]Column, len(c.Type.Fields))
	for i, f := range c.Type.Fields {
		values := make([]any, rows)
		for r := 0; r < rows; r++ {
			if rec, ok := c.Values[r].(map[string]any); ok {
				values[r] = rec[f.Name]
			}
		}
		sub[i] = Column{Name: f.Name, Type: f.Type, Values: values}
	}
	return sub
}
