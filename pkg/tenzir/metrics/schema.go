// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package metrics

import (
	"github.com/tenzir/pipeline-core/pkg/tenzir/batch"
	"github.com/tenzir/pipeline-core/pkg/tenzir/typ"
)

// SchemaName is the internal schema samples render to for the `metrics`
// aspect source: tenzir.metrics.operator_buffers.
const SchemaName = "tenzir.metrics.operator_buffers"

// ToBatch renders a second's worth of samples into one record batch
// shaped {timestamp, pipeline_id, operator_id, bytes, events}.
func ToBatch(samples []Sample) *batch.Batch {
	b := batch.NewBuilder(SchemaName)
	for _, s := range samples {
		b.Field("timestamp").Data(typ.Time(), s.Timestamp)
		b.Field("pipeline_id").Data(typ.String(), s.PipelineID)
		b.Field("operator_id").Data(typ.String(), s.OperatorID)
		b.Field("bytes").Data(typ.Int64(), s.Bytes)
		b.Field("events").Data(typ.Int64(), s.Events)
		b.EndRow()
	}
	batches := b.FinishAsRecordBatches(0)
	if len(batches) == 0 {
		return nil
	}
	return batches[0]
}
