// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRegistrySnapshotReportsLiveCells(t *testing.T) {
	reg := NewRegistry()
	update := reg.Register("p1", "where", func() bool { return true })
	update(10, 1024)

	snap := reg.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, "p1", snap[0].PipelineID)
	require.Equal(t, "where", snap[0].OperatorID)
	require.Equal(t, int64(10), snap[0].Events)
	require.Equal(t, int64(1024), snap[0].Bytes)
}

func TestRegistryPrunesDeadCells(t *testing.T) {
	reg := NewRegistry()
	alive := true
	update := reg.Register("p1", "where", func() bool { return alive })
	update(1, 1)

	require.Len(t, reg.Snapshot(), 1)

	alive = false
	require.Empty(t, reg.Snapshot())
	// Pruned, so a second snapshot stays empty even if alive flipped back.
	alive = true
	require.Empty(t, reg.Snapshot())
}

func TestExporterObserveSetsGaugeValues(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := NewExporter(reg)
	e.Observe([]Sample{{PipelineID: "p1", OperatorID: "where", Bytes: 42, Events: 7}})

	mf, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mf)
}

func TestToSamplesStampsTimestamp(t *testing.T) {
	now := time.Unix(1000, 0)
	stats := []Stats{{PipelineID: "p", OperatorID: "o", Bytes: 5, Events: 1}}
	samples := toSamples(now, stats)
	require.Len(t, samples, 1)
	require.Equal(t, now, samples[0].Timestamp)
	require.Equal(t, int64(5), samples[0].Bytes)
}
