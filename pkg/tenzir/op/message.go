// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package op

import (
	"github.com/tenzir/pipeline-core/pkg/tenzir/batch"
)

// Message is the unit that travels between operators: one of
// record_batch, byte_chunk, checkpoint_marker(id, epoch), exhausted. It is
// modeled as a plain struct with at most one payload set, rather than an
// interface, since the scheduler (pkg/tenzir/exec) needs to inspect the
// tag cheaply on every hop.
type MessageKind int

const (
	MsgRecordBatch MessageKind = iota
	MsgByteChunk
	MsgCheckpoint
	MsgExhausted
)

type Message struct {
	Kind  MessageKind
	Batch *batch.Batch
	Chunk *batch.Chunk

	// Checkpoint fields, valid when Kind == MsgCheckpoint.
	CheckpointID    uint64
	CheckpointEpoch uint64
}

func BatchMessage(b *batch.Batch) Message {
	return Message{Kind: MsgRecordBatch, Batch: b}
}

func ChunkMessage(c *batch.Chunk) Message {
	return Message{Kind: MsgByteChunk, Chunk: c}
}

func CheckpointMessage(id, epoch uint64) Message {
	return Message{Kind: MsgCheckpoint, CheckpointID: id, CheckpointEpoch: epoch}
}

// Exhausted signals that a producer will send no more data of its payload
// kind but may still forward checkpoint markers arriving from upstream
//.
func Exhausted() Message {
	return Message{Kind: MsgExhausted}
}

func (m Message) IsData() bool {
	return m.Kind == MsgRecordBatch || m.Kind == MsgByteChunk
}
