// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package operators

import (
	"context"
	"fmt"

	"github.com/tenzir/pipeline-core/pkg/tenzir/batch"
	"github.com/tenzir/pipeline-core/pkg/tenzir/checkpoint"
	"github.com/tenzir/pipeline-core/pkg/tenzir/codec"
	"github.com/tenzir/pipeline-core/pkg/tenzir/connectors"
	"github.com/tenzir/pipeline-core/pkg/tenzir/diag"
	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
)

// Load is the `load <uri>` source operator: it opens connectors.Loader
// at Open time (spec §4.5 "Operators are started right-to-left... its
// first action is an open phase") and forwards its byte_chunk sequence
// untouched.
type Load struct {
	baseOperator
	Connector connectors.Loader

	// Injector mirrors From's: optional, attached by internal/manager at
	// Start time, checked between chunks.
	Injector *checkpoint.Injector
}

func NewLoad(c connectors.Loader) *Load {
	return &Load{baseOperator: baseOperator{name: "load", sig: op.Signature{Source: true, Output: op.ByteChunk}}, Connector: c}
}

func (l *Load) Open(octx *op.Context, upstream op.Stream) (op.Stream, error) {
	chunks, err := l.Connector.Open(connectors.Ctrl{Context: octx.Context, Warn: sessionWarn(octx)})
	if err != nil {
		return nil, fmt.Errorf("io_error: load: %w", err)
	}
	return funcStream{next: func(ctx context.Context) (any, bool, error) {
		if l.Injector != nil && l.Injector.Due() {
			return l.Injector.Next(), true, nil
		}
		if octx.StopRequested != nil && octx.StopRequested() {
			// Spec §4.6 "Stop after checkpoint": cease pulling further
			// chunks from the connector once asked to drain, rather than
			// reading an unbounded connector (e.g. a NATS subscription)
			// forever.
			return op.Exhausted(), true, nil
		}
		raw, ok, err := chunks.Next(ctx)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return op.Exhausted(), true, nil
		}
		if l.Injector != nil {
			l.Injector.ObserveRows(1)
		}
		return op.ChunkMessage(batch.NewChunk(raw, nil)), true, nil
	}}, nil
}

// Save is the `save <uri>` sink operator: every incoming byte_chunk is
// handed to connectors.Saver's write callback; a final nil-chunk call
// closes it once upstream exhausts (spec §6.3).
type Save struct {
	baseOperator
	Connector connectors.Saver
}

func NewSave(c connectors.Saver) *Save {
	return &Save{baseOperator: baseOperator{name: "save", sig: op.Signature{Sink: true, Input: op.ByteChunk}}, Connector: c}
}

func (s *Save) Open(octx *op.Context, upstream op.Stream) (op.Stream, error) {
	write, err := s.Connector.Open(connectors.Ctrl{Context: octx.Context, Warn: sessionWarn(octx)})
	if err != nil {
		return nil, fmt.Errorf("io_error: save: %w", err)
	}
	closed := false
	return funcStream{next: func(ctx context.Context) (any, bool, error) {
		raw, ok, err := upstream.Next(ctx)
		if err != nil || !ok {
			if !closed {
				closed = true
				_ = write(nil)
			}
			return raw, ok, err
		}
		msg, isMsg := raw.(op.Message)
		if isMsg && msg.Kind == op.MsgByteChunk {
			if werr := write(msg.Chunk.Bytes()); werr != nil {
				return nil, false, werr
			}
		}
		if isMsg && msg.Kind == op.MsgExhausted && !closed {
			closed = true
			_ = write(nil)
		}
		return raw, true, nil
	}}, nil
}

// Parse is the `parse <format>` transformation: byte_chunk in,
// record_batch out, realigning on record boundaries via codec.Parser
// (spec §6.3).
type Parse struct {
	baseOperator
	Codec      codec.Parser
	SchemaName string
}

func NewParse(c codec.Parser, schemaName string) *Parse {
	return &Parse{
		baseOperator: baseOperator{name: "parse", sig: op.Signature{Transformation: true, Input: op.ByteChunk, Output: op.RecordBatch}},
		Codec:        c,
		SchemaName:   schemaName,
	}
}

func (p *Parse) Open(octx *op.Context, upstream op.Stream) (op.Stream, error) {
	ctrl := codec.Ctrl{Context: octx.Context, Warn: sessionWarn(octx)}
	batches := p.Codec.Parse(upstreamChunks{ctx: octx.Context, upstream: upstream}, p.SchemaName, ctrl)
	return funcStream{next: func(ctx context.Context) (any, bool, error) {
		b, ok, err := batches.Next(ctx)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return op.Exhausted(), true, nil
		}
		return op.BatchMessage(b), true, nil
	}}, nil
}

// Print is the `print <format>` transformation: record_batch in,
// byte_chunk out, via codec.Printer.
type Print struct {
	baseOperator
	Codec codec.Printer
}

func NewPrint(c codec.Printer) *Print {
	return &Print{baseOperator: baseOperator{name: "print", sig: op.Signature{Transformation: true, Input: op.RecordBatch, Output: op.ByteChunk}}, Codec: c}
}

func (p *Print) Open(octx *op.Context, upstream op.Stream) (op.Stream, error) {
	ctrl := codec.Ctrl{Context: octx.Context, Warn: sessionWarn(octx)}
	chunks := p.Codec.Print(upstreamBatches{ctx: octx.Context, upstream: upstream}, ctrl)
	return funcStream{next: func(ctx context.Context) (any, bool, error) {
		raw, ok, err := chunks.Next(ctx)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return op.Exhausted(), true, nil
		}
		return op.ChunkMessage(batch.NewChunk(raw, nil)), true, nil
	}}, nil
}

// upstreamChunks adapts a stage's op.Stream (yielding op.Message) into
// codec.ByteChunks (yielding raw bytes), letting Parse sit directly on
// top of the scheduler's buffer-backed stream rather than needing its
// own intermediate channel.
type upstreamChunks struct {
	ctx      context.Context
	upstream op.Stream
}

func (u upstreamChunks) Next(ctx context.Context) ([]byte, bool, error) {
	for {
		raw, ok, err := u.upstream.Next(ctx)
		if err != nil || !ok {
			return nil, false, err
		}
		msg, isMsg := raw.(op.Message)
		if !isMsg {
			continue
		}
		switch msg.Kind {
		case op.MsgByteChunk:
			return msg.Chunk.Bytes(), true, nil
		case op.MsgExhausted:
			return nil, false, nil
		default:
			continue
		}
	}
}

// upstreamBatches adapts a stage's op.Stream into codec.Batches for
// Print, mirroring upstreamChunks.
type upstreamBatches struct {
	ctx      context.Context
	upstream op.Stream
}

func (u upstreamBatches) Next(ctx context.Context) (*batch.Batch, bool, error) {
	for {
		raw, ok, err := u.upstream.Next(ctx)
		if err != nil || !ok {
			return nil, false, err
		}
		msg, isMsg := raw.(op.Message)
		if !isMsg {
			continue
		}
		switch msg.Kind {
		case op.MsgRecordBatch:
			return msg.Batch, true, nil
		case op.MsgExhausted:
			return nil, false, nil
		default:
			continue
		}
	}
}

func sessionWarn(octx *op.Context) func(format string, args ...any) {
	return func(format string, args ...any) {
		if octx.Session == nil {
			return
		}
		octx.Session.WarnOnce(fmt.Sprintf(format, args...), diag.Location{})
	}
}
