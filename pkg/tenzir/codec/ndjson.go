// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/tenzir/pipeline-core/pkg/tenzir/batch"
	"github.com/tenzir/pipeline-core/pkg/tenzir/typ"
)

// NDJSON implements Parser/Printer for newline-delimited JSON objects,
// the format the `from`/`to` operators fall back to absent a more
// specific codec.
type NDJSON struct {
	// RowsPerBatch bounds how many parsed objects accumulate into one
	// record batch before Parse yields it; <=0 uses
	// batch.DefaultBatchRowCap.
	RowsPerBatch int
}

func (n NDJSON) Parse(input ByteChunks, schemaName string, ctrl Ctrl) Batches {
	var pending []byte
	done := false
	return funcBatches{next: func(ctx context.Context) (*batch.Batch, bool, error) {
		if done {
			return nil, false, nil
		}
		b := batch.NewBuilder(schemaName)
		rows := 0
		rowCap := n.RowsPerBatch
		if rowCap <= 0 {
			rowCap = batch.DefaultBatchRowCap
		}
		for rows < rowCap {
			line, rest, found := bytes.Cut(pending, []byte("\n"))
			if !found {
				chunk, ok, err := input.Next(ctx)
				if err != nil {
					return nil, false, err
				}
				if !ok {
					done = true
					if len(bytes.TrimSpace(pending)) > 0 {
						if perr := parseLine(b, pending, ctrl); perr != nil {
							return nil, false, perr
						}
						rows++
					}
					break
				}
				pending = append(pending, chunk...)
				continue
			}
			pending = rest
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			if perr := parseLine(b, line, ctrl); perr != nil {
				return nil, false, perr
			}
			rows++
		}
		if rows == 0 {
			return nil, false, nil
		}
		batches := b.FinishAsRecordBatches(0)
		if len(batches) == 0 {
			return nil, false, nil
		}
		return batches[0], true, nil
	}}
}

func parseLine(b *batch.Builder, line []byte, ctrl Ctrl) error {
	var obj map[string]any
	if err := json.Unmarshal(line, &obj); err != nil {
		if ctrl.Warn != nil {
			ctrl.Warn("ndjson: skipping malformed line: %v", err)
		}
		return nil
	}
	for k, v := range obj {
		b.Field(k).Data(inferJSONType(v), v)
	}
	b.EndRow()
	return nil
}

func inferJSONType(v any) typ.Type {
	switch v.(type) {
	case bool:
		return typ.Bool()
	case float64:
		return typ.Double()
	case string:
		return typ.String()
	case nil:
		return typ.Null()
	default:
		return typ.String()
	}
}

func (n NDJSON) Print(input Batches, ctrl Ctrl) ByteChunks {
	var cur *batch.Batch
	row := 0
	return funcByteChunks{next: func(ctx context.Context) ([]byte, bool, error) {
		for cur == nil || row >= cur.Rows() {
			b, ok, err := input.Next(ctx)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				return nil, false, nil
			}
			cur, row = b, 0
		}
		line, err := json.Marshal(cur.Row(row))
		row++
		if err != nil {
			return nil, false, fmt.Errorf("ndjson: encode row: %w", err)
		}
		return append(line, '\n'), true, nil
	}}
}
