// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package operators

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tenzir/pipeline-core/pkg/tenzir/batch"
	"github.com/tenzir/pipeline-core/pkg/tenzir/diag"
	"github.com/tenzir/pipeline-core/pkg/tenzir/expr"
	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
	"github.com/tenzir/pipeline-core/pkg/tenzir/typ"
)

func stringColumnBatch(field string, values []string) *batch.Batch {
	b := batch.NewBuilder("events")
	for _, v := range values {
		b.Field(field).Data(typ.String(), v)
		b.EndRow()
	}
	return b.FinishAsRecordBatches(0)[0]
}

// Spec §8 scenario 6: `where s.starts_with("f")` keeps only rows whose
// s field starts with "f", written in TQL's method-call spelling of the
// starts_with function rather than the plain starts_with(s, "f") form.
func TestWhereAcceptsMethodCallSyntax(t *testing.T) {
	in := &sliceStream{msgs: []op.Message{
		op.BatchMessage(stringColumnBatch("s", []string{"foo", "bar", "fizz"})),
		op.Exhausted(),
	}}

	w, err := NewWhere(`s.starts_with("f")`, diag.Location{}, expr.NewRegistry())
	require.NoError(t, err)

	out, err := w.Open(newOpenOctx(), in)
	require.NoError(t, err)

	msgs := drainAll(t, out)
	var kept []string
	for _, m := range msgs {
		if m.Kind != op.MsgRecordBatch {
			continue
		}
		col, ok := m.Batch.Column("s")
		require.True(t, ok)
		for _, v := range col.Values {
			kept = append(kept, v.(string))
		}
	}
	require.Equal(t, []string{"foo", "fizz"}, kept)
}
