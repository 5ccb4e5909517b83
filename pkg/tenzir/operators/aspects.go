// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package operators

import (
	"context"
	"time"

	"github.com/tenzir/pipeline-core/pkg/tenzir/batch"
	"github.com/tenzir/pipeline-core/pkg/tenzir/catalog"
	"github.com/tenzir/pipeline-core/pkg/tenzir/diag"
	"github.com/tenzir/pipeline-core/pkg/tenzir/metrics"
	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
	"github.com/tenzir/pipeline-core/pkg/tenzir/typ"
)

// oneShotSource emits a single batch (built lazily from a thunk, so any
// node-state snapshot happens at Open time rather than construction
// time) and then exhausts. Every aspect source in this file has
// this same one-shot shape.
func oneShotSource(name string, build func() *batch.Batch) *oneShot {
	return &oneShot{baseOperator: baseOperator{name: name, sig: op.Signature{Source: true, Output: op.RecordBatch}}, build: build}
}

type oneShot struct {
	baseOperator
	build func() *batch.Batch
}

func (o *oneShot) Open(octx *op.Context, upstream op.Stream) (op.Stream, error) {
	sent := false
	exhausted := false
	return funcStream{next: func(ctx context.Context) (any, bool, error) {
		if exhausted {
			return nil, false, nil
		}
		if !sent {
			sent = true
			b := o.build()
			if b == nil || b.Rows() == 0 {
				exhausted = true
				return op.Exhausted(), true, nil
			}
			return op.BatchMessage(b), true, nil
		}
		exhausted = true
		return op.Exhausted(), true, nil
	}}, nil
}

// Partitions is the `partitions` aspect source.
func Partitions(cat *catalog.Catalog) op.Operator {
	return oneShotSource("partitions", func() *batch.Batch {
		parts := cat.Partitions()
		b := batch.NewBuilder("tenzir.partitions")
		for _, p := range parts {
			b.Field("uuid").Data(typ.String(), p.UUID.String())
			b.Field("memusage").Data(typ.Int64(), p.MemUsage)
			b.Field("events").Data(typ.Int64(), p.Events)
			b.Field("min_import_time").Data(typ.Time(), p.MinImportTime)
			b.Field("max_import_time").Data(typ.Time(), p.MaxImportTime)
			b.Field("version").Data(typ.Int64(), int64(p.Version))
			b.Field("schema").Data(typ.String(), p.Schema.String())
			b.Field("schema_id").Data(typ.String(), p.SchemaID)
			b.Field("internal").Data(typ.Bool(), p.Internal)
			b.EndRow()
		}
		return first(b.FinishAsRecordBatches(0))
	})
}

// Schemas is the `schemas` aspect source.
func Schemas(cat *catalog.Catalog) op.Operator {
	return oneShotSource("schemas", func() *batch.Batch {
		schemas := cat.Schemas()
		b := batch.NewBuilder("tenzir.schemas")
		for _, s := range schemas {
			b.Field("name").Data(typ.String(), s.Name)
			b.Field("definition").Data(typ.String(), s.String())
			b.Field("fingerprint").Data(typ.String(), s.Fingerprint())
			b.EndRow()
		}
		return first(b.FinishAsRecordBatches(0))
	})
}

// Plugins is the `plugins` aspect source.
func Plugins(cat *catalog.Catalog) op.Operator {
	return oneShotSource("plugins", func() *batch.Batch {
		plugins := cat.Plugins()
		b := batch.NewBuilder("tenzir.plugins")
		for _, p := range plugins {
			b.Field("name").Data(typ.String(), p.Name)
			b.Field("version").Data(typ.String(), p.Version)
			b.Field("kind").Data(typ.String(), p.Kind)
			b.Field("types").Data(typ.List(typ.String()), p.Types)
			b.Field("dependencies").Data(typ.List(typ.String()), p.Dependencies)
			b.EndRow()
		}
		return first(b.FinishAsRecordBatches(0))
	})
}

// Diagnostics is the `diagnostics` aspect source: it replays whatever is
// currently buffered in session's sink.
func Diagnostics(snapshot func() []diag.Diagnostic) op.Operator {
	return oneShotSource("diagnostics", func() *batch.Batch {
		diags := snapshot()
		b := batch.NewBuilder("tenzir.diagnostics")
		for _, d := range diags {
			b.Field("severity").Data(typ.String(), d.Severity.String())
			b.Field("message").Data(typ.String(), d.Message)
			b.Field("source").Data(typ.String(), d.Source)
			b.Field("notes").Data(typ.List(typ.String()), d.Notes)
			b.Field("hints").Data(typ.List(typ.String()), d.Hints)
			b.EndRow()
		}
		return first(b.FinishAsRecordBatches(0))
	})
}

// Metrics is the `metrics` aspect source: the most
// recent buffer-stats snapshot rendered as tenzir.metrics.operator_buffers.
func Metrics(reg *metrics.Registry) op.Operator {
	return oneShotSource("metrics", func() *batch.Batch {
		now := time.Now()
		samples := make([]metrics.Sample, 0)
		for _, s := range reg.Snapshot() {
			samples = append(samples, metrics.Sample{Timestamp: now, PipelineID: s.PipelineID, OperatorID: s.OperatorID, Bytes: s.Bytes, Events: s.Events})
		}
		return metrics.ToBatch(samples)
	})
}

func first(batches []*batch.Batch) *batch.Batch {
	if len(batches) == 0 {
		return nil
	}
	return batches[0]
}
