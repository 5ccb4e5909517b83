// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tenzir/pipeline-core/pkg/tenzir/batch"
	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
	"github.com/tenzir/pipeline-core/pkg/tenzir/typ"
)

func recordBatchOf(rows int) op.Message {
	b := batch.NewBuilder("s")
	for i := 0; i < rows; i++ {
		b.Field("x").Data(typ.Int64(), int64(i))
		b.EndRow()
	}
	batches := b.FinishAsRecordBatches(0)
	return op.BatchMessage(batches[0])
}

func TestBufferPushPopOrder(t *testing.T) {
	buf := NewBuffer(DefaultHighWaterBytes)
	ctx := context.Background()

	require.NoError(t, buf.Push(ctx, op.CheckpointMessage(1, 0)))
	require.NoError(t, buf.Push(ctx, op.Exhausted()))

	m1, ok := buf.Pop(ctx)
	require.True(t, ok)
	require.Equal(t, op.MsgCheckpoint, m1.Kind)

	m2, ok := buf.Pop(ctx)
	require.True(t, ok)
	require.Equal(t, op.MsgExhausted, m2.Kind)
}

func TestBufferCloseDrainsThenStops(t *testing.T) {
	buf := NewBuffer(DefaultHighWaterBytes)
	ctx := context.Background()
	require.NoError(t, buf.Push(ctx, op.Exhausted()))
	buf.Close()

	_, ok := buf.Pop(ctx)
	require.True(t, ok)
	_, ok = buf.Pop(ctx)
	require.False(t, ok)
}

func TestBufferBackpressureBlocksAboveHighWater(t *testing.T) {
	buf := NewBuffer(128) // tiny: a single 4-row batch exceeds this
	ctx := context.Background()

	require.NoError(t, buf.Push(ctx, recordBatchOf(4)))

	pushed := make(chan struct{})
	go func() {
		_ = buf.Push(ctx, recordBatchOf(4))
		close(pushed)
	}()

	select {
	case <-pushed:
		t.Fatal("second push should have blocked above the high water mark")
	case <-time.After(50 * time.Millisecond):
	}

	_, ok := buf.Pop(ctx)
	require.True(t, ok)

	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatal("push did not unblock after a pop dropped below the low water mark")
	}
}

func TestBufferPopUnblocksOnCancel(t *testing.T) {
	buf := NewBuffer(DefaultHighWaterBytes)
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	var ok bool
	go func() {
		defer wg.Done()
		_, ok = buf.Pop(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	buf.notEmpty.Broadcast()
	wg.Wait()
	require.False(t, ok)
}

func TestBufferDepthTracksPushAndPop(t *testing.T) {
	buf := NewBuffer(DefaultHighWaterBytes)
	ctx := context.Background()
	require.NoError(t, buf.Push(ctx, recordBatchOf(2)))

	events, bytes := buf.Depth()
	require.Equal(t, int64(1), events)
	require.Greater(t, bytes, int64(0))

	_, _ = buf.Pop(ctx)
	events, bytes = buf.Depth()
	require.Equal(t, int64(0), events)
	require.Equal(t, int64(0), bytes)
}

func TestBufferOnDepthChangeFires(t *testing.T) {
	buf := NewBuffer(DefaultHighWaterBytes)
	ctx := context.Background()
	var lastEvents int64 = -1
	buf.OnDepthChange(func(events, bytes int64) { lastEvents = events })

	require.NoError(t, buf.Push(ctx, op.Exhausted()))
	require.Equal(t, int64(1), lastEvents)
}
