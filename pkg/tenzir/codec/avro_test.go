// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tenzir/pipeline-core/pkg/tenzir/batch"
	"github.com/tenzir/pipeline-core/pkg/tenzir/typ"
)

func sampleAvroBatch() *batch.Batch {
	b := batch.NewBuilder("rec")
	b.Field("name").Data(typ.String(), "alice")
	b.Field("count").Data(typ.Int64(), int64(3))
	b.EndRow()
	b.Field("name").Data(typ.String(), "bob")
	b.Field("count").Data(typ.Int64(), int64(5))
	b.EndRow()
	batches := b.FinishAsRecordBatches(0)
	return batches[0]
}

type onceBatches struct {
	b    *batch.Batch
	sent bool
}

func (o *onceBatches) Next(ctx context.Context) (*batch.Batch, bool, error) {
	if o.sent {
		return nil, false, nil
	}
	o.sent = true
	return o.b, true, nil
}

func TestAvroPrintThenParseRoundTrips(t *testing.T) {
	a := Avro{}
	chunks := a.Print(&onceBatches{b: sampleAvroBatch()}, Ctrl{})

	var container []byte
	for {
		chunk, ok, err := chunks.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		container = append(container, chunk...)
	}
	require.NotEmpty(t, container)

	batches := a.Parse(NewSliceByteChunks([][]byte{container}), "rec", Ctrl{})
	b, ok, err := batches.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, b.Rows())

	_, ok, err = batches.Next(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAvroSchemaJSONIncludesFieldNames(t *testing.T) {
	schema := typ.Record(
		typ.Field{Name: "name", Type: typ.String()},
		typ.Field{Name: "count", Type: typ.Int64()},
	).Named("rec")

	s, err := avroSchemaJSON(schema)
	require.NoError(t, err)
	require.Contains(t, s, `"name":"name"`)
	require.Contains(t, s, `"name":"count"`)
	require.Contains(t, s, `"long"`)
}
