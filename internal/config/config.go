// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and schema-validates one tenzir-node's program
// configuration, mirroring the teacher's internal/config + pkg/schema
// pairing: a typed struct decoded with DisallowUnknownFields, preceded
// by a santhosh-tekuri/jsonschema/v5 check against an embedded schema
// document.
package config

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*
var schemaFiles embed.FS

func loadSchema(s string) (io.ReadCloser, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	return schemaFiles.Open(u.Path)
}

func init() {
	jsonschema.Loaders["embedFS"] = loadSchema
}

// NATSConfig configures the optional pkg/nats client a node uses for the
// `load nats://`/`save nats://` connectors. A nil value anywhere in
// ProgramConfig.NATS leaves those connectors unavailable.
type NATSConfig struct {
	URL string `json:"url"`
}

// ProgramConfig is the node's configuration, decoded from a JSON file
// after schema validation. Field names and the DisallowUnknownFields
// discipline mirror the teacher's own schema.ProgramConfig.
type ProgramConfig struct {
	// Addr is the control API's listen address (for example ":8080").
	Addr string `json:"addr"`

	// PluginDirs is accepted in the config file, but the node does not
	// read it: no directory is scanned, and the operator
	// registry holds only the builtins.
	PluginDirs []string `json:"plugin-dirs"`

	// StallTimeoutSeconds overrides exec.DefaultStallTimeout for every
	// pipeline this node runs; 0 means keep the package default.
	StallTimeoutSeconds float64 `json:"stall-timeout-seconds"`

	// CheckpointIntervalSeconds is the time-based checkpoint boundary
	// (spec §4.6) applied to every pipeline's source unless the pipeline
	// itself requests a tighter one. 0 disables the time-based boundary.
	CheckpointIntervalSeconds float64 `json:"checkpoint-interval-seconds"`

	// CheckpointRowCap is the row-count checkpoint boundary (spec §4.6).
	// 0 disables it.
	CheckpointRowCap int64 `json:"checkpoint-row-cap"`

	// CheckpointDir roots the (operator_identity, epoch) -> blob side
	// channel (spec §6.7) that stateful operators such as `summarize`
	// save to and restore from. Empty disables persistence: every
	// pipeline then starts cold, which spec §7 treats as "missing
	// checkpoint state yields a warning and empty initial state" rather
	// than an error.
	CheckpointDir string `json:"checkpoint-dir"`

	// MaxPipelineMemoryBytes is accepted in the config file, but the node
	// does not read it: every stage buffer uses exec.DefaultHighWaterBytes
	// and no cap applies across a pipeline's buffers.
	MaxPipelineMemoryBytes int64 `json:"max-pipeline-memory-bytes"`

	// DisableAuthentication turns off the control API's JWT bearer check
	// (§6.5), for local development only.
	DisableAuthentication bool `json:"disable-authentication"`

	// JWTSigningKey authenticates control API bearer tokens when
	// authentication is enabled.
	JWTSigningKey string `json:"jwt-signing-key"`

	NATS *NATSConfig `json:"nats"`
}

// Default returns the built-in defaults, applied before any config file
// is decoded over them, mirroring the teacher's package-level `var Keys
// = schema.ProgramConfig{...}` literal.
func Default() ProgramConfig {
	return ProgramConfig{
		Addr:                      ":8080",
		StallTimeoutSeconds:       5,
		CheckpointIntervalSeconds: 30,
		CheckpointRowCap:          0,
		MaxPipelineMemoryBytes:    0,
		DisableAuthentication:     false,
	}
}

// Load reads path, validates it against the embedded node-config schema,
// and decodes it over Default(). A missing file is not an error; Default()
// is returned unchanged.
func Load(path string) (ProgramConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("io_error: read config %s: %w", path, err)
	}

	if err := validate(raw); err != nil {
		return cfg, fmt.Errorf("invalid_configuration: %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("invalid_configuration: %s: %w", path, err)
	}

	cclog.Infof("config: loaded %s", path)
	return cfg, nil
}

func validate(raw []byte) error {
	s, err := jsonschema.Compile("embedFS://schemas/node-config.schema.json")
	if err != nil {
		return err
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}

// StallTimeout returns the configured stall timeout as a time.Duration,
// or ok=false if the node should keep exec's package default.
func (c ProgramConfig) StallTimeout() (time.Duration, bool) {
	if c.StallTimeoutSeconds <= 0 {
		return 0, false
	}
	return time.Duration(c.StallTimeoutSeconds * float64(time.Second)), true
}

// CheckpointInterval returns the configured checkpoint interval as a
// time.Duration; 0 disables the time-based boundary.
func (c ProgramConfig) CheckpointInterval() time.Duration {
	return time.Duration(c.CheckpointIntervalSeconds * float64(time.Second))
}
