// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package checkpoint

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInjectorRowCountBoundary(t *testing.T) {
	in := NewInjector("p", 0, 10)
	require.False(t, in.Due())
	in.ObserveRows(9)
	require.False(t, in.Due())
	in.ObserveRows(2)
	require.True(t, in.Due())
	require.False(t, in.Due()) // counter reset after firing
}

func TestInjectorOnDemandBoundary(t *testing.T) {
	in := NewInjector("p", 0, 0)
	require.False(t, in.Due())
	in.RequestCheckpoint()
	require.True(t, in.Due())
	require.False(t, in.Due())
}

func TestInjectorNextIncrementsMonotonically(t *testing.T) {
	in := NewInjector("p", 0, 0)
	m1 := in.Next()
	m2 := in.Next()
	require.Equal(t, uint64(1), m1.CheckpointID)
	require.Equal(t, uint64(2), m2.CheckpointID)
	require.Equal(t, uint64(1), m2.CheckpointEpoch)
}

func TestBarrierWaitsForAllInputs(t *testing.T) {
	b := NewBarrier(2)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	var satisfied bool
	go func() {
		defer wg.Done()
		satisfied = b.Wait(ctx, 1)
	}()

	time.Sleep(10 * time.Millisecond)
	b.Arrive(1)
	time.Sleep(10 * time.Millisecond)
	b.Arrive(1)
	wg.Wait()
	require.True(t, satisfied)
}

func TestBarrierWaitUnblocksOnCancel(t *testing.T) {
	b := NewBarrier(2)
	ctx, cancel := context.WithCancel(context.Background())
	b.Arrive(1) // only one of two inputs arrives

	done := make(chan bool, 1)
	go func() { done <- b.Wait(ctx, 1) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Wait did not unblock after cancel")
	}
}

func TestStorePutGetRoundTrip(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, _, ok, err := s.Get("op-a")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Put("op-a", 3, []byte("state-v3")))
	blob, epoch, ok, err := s.Get("op-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(3), epoch)
	require.Equal(t, []byte("state-v3"), blob)

	require.NoError(t, s.Put("op-a", 4, []byte("state-v4")))
	blob, epoch, ok, err = s.Get("op-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(4), epoch)
	require.Equal(t, []byte("state-v4"), blob)
}

// TestStorePutGetWithSlashIdentity exercises the real operator identity
// shape exec/scheduler.go builds ("<pipelineID>/<idx>-<name>"), which
// contains a '/' that a naive filepath.Join would turn into a missing
// subdirectory (store.go's path must flatten it instead).
func TestStorePutGetWithSlashIdentity(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	identity := "pipeline-42/3-where"

	_, _, ok, err := s.Get(identity)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Put(identity, 1, []byte("state-v1")))
	blob, epoch, ok, err := s.Get(identity)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), epoch)
	require.Equal(t, []byte("state-v1"), blob)
}
