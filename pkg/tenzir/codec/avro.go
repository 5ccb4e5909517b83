// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/linkedin/goavro/v2"
	"github.com/tenzir/pipeline-core/pkg/tenzir/batch"
	"github.com/tenzir/pipeline-core/pkg/tenzir/typ"
)

// Avro implements Parser/Printer over Avro object container files (OCF),
// the same goavro.NewOCFReader/NewOCFWriter API the teacher already
// drives for its own checkpoint and metric-data encoding
// (internal/memorystore/avroCheckpoint.go), here repurposed for general
// record batch transport instead of metric float arrays.
type Avro struct {
	RowsPerBatch int
}

// Parse buffers whole chunks into an in-memory reader before handing
// them to goavro's OCF reader, since the OCF container format is not
// itself chunk-resumable mid-record: spec §6.3 only requires a parser to
// "buffer across chunks to realign on record boundaries", which here
// means buffering until the whole container has arrived.
func (a Avro) Parse(input ByteChunks, schemaName string, ctrl Ctrl) Batches {
	var buf bytes.Buffer
	var reader *goavro.OCFReader
	done := false

	return funcBatches{next: func(ctx context.Context) (*batch.Batch, bool, error) {
		if done {
			return nil, false, nil
		}
		if reader == nil {
			for {
				chunk, ok, err := input.Next(ctx)
				if err != nil {
					return nil, false, err
				}
				if !ok {
					break
				}
				buf.Write(chunk)
			}
			r, err := goavro.NewOCFReader(bytes.NewReader(buf.Bytes()))
			if err != nil {
				return nil, false, fmt.Errorf("avro: open OCF reader: %w", err)
			}
			reader = r
		}

		b := batch.NewBuilder(schemaName)
		rowCap := a.RowsPerBatch
		if rowCap <= 0 {
			rowCap = batch.DefaultBatchRowCap
		}
		rows := 0
		for rows < rowCap && reader.Scan() {
			datum, err := reader.Read()
			if err != nil {
				return nil, false, fmt.Errorf("avro: read record: %w", err)
			}
			record, ok := datum.(map[string]any)
			if !ok {
				if ctrl.Warn != nil {
					ctrl.Warn("avro: skipping non-record datum %T", datum)
				}
				continue
			}
			for k, v := range record {
				b.Field(k).Data(inferAvroType(v), v)
			}
			b.EndRow()
			rows++
		}
		if rows == 0 {
			done = true
			return nil, false, nil
		}
		batches := b.FinishAsRecordBatches(0)
		return batches[0], true, nil
	}}
}

func inferAvroType(v any) typ.Type {
	switch v.(type) {
	case bool:
		return typ.Bool()
	case int64:
		return typ.Int64()
	case float64, float32:
		return typ.Double()
	case string:
		return typ.String()
	case []byte:
		return typ.Blob()
	default:
		return typ.String()
	}
}

// Print renders batches into a single Avro OCF container built from the
// first batch's schema.
func (a Avro) Print(input Batches, ctrl Ctrl) ByteChunks {
	var out bytes.Buffer
	built := false
	sent := false

	return funcByteChunks{next: func(ctx context.Context) ([]byte, bool, error) {
		if sent {
			return nil, false, nil
		}
		if !built {
			if err := a.encodeAll(ctx, input, &out); err != nil {
				return nil, false, err
			}
			built = true
		}
		sent = true
		if out.Len() == 0 {
			return nil, false, nil
		}
		return out.Bytes(), true, nil
	}}
}

func (a Avro) encodeAll(ctx context.Context, input Batches, w io.Writer) error {
	var writer *goavro.OCFWriter
	for {
		b, ok, err := input.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if writer == nil {
			schema, err := avroSchemaJSON(b.Schema())
			if err != nil {
				return fmt.Errorf("avro: derive schema: %w", err)
			}
			codec, err := goavro.NewCodec(schema)
			if err != nil {
				return fmt.Errorf("avro: build codec: %w", err)
			}
			writer, err = goavro.NewOCFWriter(goavro.OCFConfig{W: w, Codec: codec, CompressionName: goavro.CompressionDeflateLabel})
			if err != nil {
				return fmt.Errorf("avro: create OCF writer: %w", err)
			}
		}
		rows := make([]any, b.Rows())
		for i := range rows {
			rows[i] = b.Row(i)
		}
		if err := writer.Append(rows); err != nil {
			return fmt.Errorf("avro: append records: %w", err)
		}
	}
}

func avroSchemaJSON(t typ.Type) (string, error) {
	fields := make([]string, 0, len(t.Fields))
	for _, f := range t.Fields {
		fields = append(fields, fmt.Sprintf(`{"name":%q,"type":%s}`, f.Name, avroFieldType(f.Type)))
	}
	name := t.Name
	if name == "" {
		name = "record"
	}
	return fmt.Sprintf(`{"type":"record","name":%q,"fields":[%s]}`, name, joinComma(fields)), nil
}

// avroFieldType maps a column type to a plain (non-union) Avro type name,
// the same shape the teacher's own generateSchema uses for its float
// columns: no nullable unions, so record values need no union-branch
// wrapping going into goavro.OCFWriter.Append.
func avroFieldType(t typ.Type) string {
	switch t.Kind {
	case typ.KindBool:
		return `"boolean"`
	case typ.KindInt64, typ.KindUint64:
		return `"long"`
	case typ.KindDouble:
		return `"double"`
	case typ.KindBlob:
		return `"bytes"`
	default:
		return `"string"`
	}
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
