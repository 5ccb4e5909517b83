// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	influx "github.com/influxdata/line-protocol/v2/lineprotocol"
	"github.com/tenzir/pipeline-core/pkg/tenzir/batch"
	"github.com/tenzir/pipeline-core/pkg/tenzir/typ"
)

// InfluxLineProtocol parses InfluxDB line protocol, one measurement per
// row with its tags and fields flattened into columns plus a
// "measurement" and "time" column. The per-point decode loop mirrors
// the teacher's pkg/nats influx decoder (measurement, then tags, then
// fields, then timestamp), adapted here to build batch rows instead of
// a single ccMessage.
type InfluxLineProtocol struct {
	RowsPerBatch int
	Precision    influx.Precision
}

func (i InfluxLineProtocol) Parse(input ByteChunks, schemaName string, ctrl Ctrl) Batches {
	var dec *influx.Decoder
	done := false

	precision := i.Precision
	if precision == 0 {
		precision = influx.Nanosecond
	}

	return funcBatches{next: func(ctx context.Context) (*batch.Batch, bool, error) {
		if done {
			return nil, false, nil
		}

		b := batch.NewBuilder(schemaName)
		rowCap := i.RowsPerBatch
		if rowCap <= 0 {
			rowCap = batch.DefaultBatchRowCap
		}
		rows := 0

		for rows < rowCap {
			if dec == nil {
				chunk, ok, err := input.Next(ctx)
				if err != nil {
					return nil, false, err
				}
				if !ok {
					done = true
					break
				}
				dec = influx.NewDecoderWithBytes(chunk)
			}

			more, err := dec.Next()
			if err != nil {
				return nil, false, fmt.Errorf("influx: %w", err)
			}
			if !more {
				dec = nil
				continue
			}

			measurement, err := dec.Measurement()
			if err != nil {
				return nil, false, fmt.Errorf("influx: measurement: %w", err)
			}
			b.Field("measurement").Data(typ.String(), string(measurement))

			for {
				key, value, err := dec.NextTag()
				if err != nil {
					return nil, false, fmt.Errorf("influx: tag: %w", err)
				}
				if key == nil {
					break
				}
				b.Field(string(key)).Data(typ.String(), string(value))
			}

			for {
				key, value, err := dec.NextField()
				if err != nil {
					return nil, false, fmt.Errorf("influx: field: %w", err)
				}
				if key == nil {
					break
				}
				t, v := fieldValue(value)
				b.Field(string(key)).Data(t, v)
			}

			ts, err := dec.Time(precision, time.Time{})
			if err != nil {
				return nil, false, fmt.Errorf("influx: time: %w", err)
			}
			if !ts.IsZero() {
				b.Field("time").Data(typ.Time(), ts)
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

// Print renders each row as one InfluxDB line protocol point, using the
// "measurement" column if present (falling back to schemaName) and the
// "time" column if present as the point's nanosecond timestamp. A row
// without a non-zero "time" value is written without a timestamp.
func (i InfluxLineProtocol) Print(input Batches, ctrl Ctrl) ByteChunks {
	return funcByteChunks{next: func(ctx context.Context) ([]byte, bool, error) {
		b, ok, err := input.Next(ctx)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}

		var out strings.Builder
		for r := 0; r < b.Rows(); r++ {
			row := b.Row(r)
			if err := writeLine(&out, b.Schema().Name, row); err != nil {
				return nil, false, fmt.Errorf("influx: encode row %d: %w", r, err)
			}
		}
		return []byte(out.String()), true, nil
	}}
}

func writeLine(out *strings.Builder, schemaName string, row map[string]any) error {
	measurement := schemaName
	if m, ok := row["measurement"].(string); ok && m != "" {
		measurement = m
	}
	out.WriteString(measurement)

	fields := make([]string, 0, len(row))
	for k, v := range row {
		if k == "measurement" || k == "time" || v == nil {
			continue
		}
		fields = append(fields, k+"="+formatFieldValue(v))
	}
	out.WriteString(" ")
	out.WriteString(strings.Join(fields, ","))

	if t, ok := row["time"].(time.Time); ok && !t.IsZero() {
		out.WriteString(" ")
		out.WriteString(strconv.FormatInt(t.UnixNano(), 10))
	}
	out.WriteString("\n")
	return nil
}

func formatFieldValue(v any) string {
	switch val := v.(type) {
	case string:
		return strconv.Quote(val)
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10) + "i"
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func fieldValue(v influx.Value) (typ.Type, any) {
	switch {
	case v.Kind() == influx.Int:
		iv, _ := v.IntV()
		return typ.Int64(), iv
	case v.Kind() == influx.UInt:
		uv, _ := v.UIntV()
		return typ.Int64(), int64(uv)
	case v.Kind() == influx.Float:
		fv, _ := v.FloatV()
		return typ.Double(), fv
	case v.Kind() == influx.Bool:
		bv, _ := v.BoolV()
		return typ.Bool(), bv
	case v.Kind() == influx.String:
		return typ.String(), v.StringV()
	default:
		return typ.String(), v.Interface()
	}
}
