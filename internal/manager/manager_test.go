// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package manager

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenzir/pipeline-core/internal/config"
	"github.com/tenzir/pipeline-core/pkg/tenzir/catalog"
	"github.com/tenzir/pipeline-core/pkg/tenzir/expr"
	"github.com/tenzir/pipeline-core/pkg/tenzir/metrics"
	"github.com/tenzir/pipeline-core/pkg/tenzir/pipeline"
)

func newTestManager() *Manager {
	cfg := config.Default()
	cfg.CheckpointIntervalSeconds = 0
	return New(cfg, pipeline.DefaultRegistry(), expr.NewRegistry(), catalog.New(), metrics.NewRegistry(), nil)
}

func TestManagerStartAndList(t *testing.T) {
	m := newTestManager()
	out := filepath.Join(t.TempDir(), "out.ndjson")
	src := fmt.Sprintf(`from [{"a": 1}] | print ndjson | save "file://%s"`, out)

	info, err := m.Start(src)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, info.Status)

	require.Eventually(t, func() bool {
		got, ok := m.Get(info.ID)
		return ok && got.Status == StatusFinished
	}, 2*time.Second, 10*time.Millisecond)

	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, info.ID, list[0].ID)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"a":1`)
}

func TestManagerStartInvalidPipeline(t *testing.T) {
	m := newTestManager()
	_, err := m.Start(`this_operator_does_not_exist`)
	assert.Error(t, err)
}

func TestManagerCancelUnknown(t *testing.T) {
	m := newTestManager()
	assert.Error(t, m.Cancel("no-such-id"))
	assert.Error(t, m.Stop("no-such-id"))
}
