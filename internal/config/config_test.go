// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8080", cfg.Addr)
	timeout, ok := cfg.StallTimeout()
	assert.True(t, ok)
	assert.Equal(t, float64(5), timeout.Seconds())
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"addr": ":9090",
		"checkpoint-interval-seconds": 10,
		"nats": {"url": "nats://localhost:4222"}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, float64(10), cfg.CheckpointInterval().Seconds())
	require.NotNil(t, cfg.NATS)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"totally-unknown-field": true}`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsSchemaViolation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"stall-timeout-seconds": -1}`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
