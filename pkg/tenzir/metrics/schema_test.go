// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestToBatchRendersOneRowPerSample(t *testing.T) {
	samples := []Sample{
		{Timestamp: time.Unix(1, 0), PipelineID: "p1", OperatorID: "where", Bytes: 10, Events: 2},
		{Timestamp: time.Unix(1, 0), PipelineID: "p1", OperatorID: "select", Bytes: 20, Events: 2},
	}
	b := ToBatch(samples)
	require.NotNil(t, b)
	require.Equal(t, 2, b.Rows())
	require.Equal(t, SchemaName, b.Schema().Name)
}

func TestToBatchEmptyYieldsNil(t *testing.T) {
	require.Nil(t, ToBatch(nil))
}
