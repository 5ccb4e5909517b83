// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package catalog is the read-only facade over node-wide state that the
// `partitions`, `schemas`, and `plugins` aspect sources expose (spec
// §6.4). In Tenzir's own deployment this is a whole separate service
// (the catalog actor tracking ingested partitions); this component
// models it as the minimal in-process registry a single node needs to
// answer those three read-only queries, with persisted partition storage
// itself explicitly out of scope.
package catalog

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tenzir/pipeline-core/pkg/tenzir/typ"
)

// Partition describes one ingested, queryable unit of data.
type Partition struct {
	UUID          uuid.UUID
	MemUsage      int64
	Events        int64
	MinImportTime time.Time
	MaxImportTime time.Time
	Version       int
	Schema        typ.Type
	SchemaID      string
	Internal      bool
}

// Plugin describes one registered operator/function/connector/codec
// plugin.
type Plugin struct {
	Name         string
	Version      string
	Kind         string
	Types        []string
	Dependencies []string
}

// Catalog is the process-wide, mutex-guarded registry backing the
// read-only aspect sources.
type Catalog struct {
	mu         sync.RWMutex
	partitions map[uuid.UUID]Partition
	plugins    []Plugin
	schemas    map[string]typ.Type
}

func New() *Catalog {
	return &Catalog{partitions: make(map[uuid.UUID]Partition), schemas: make(map[string]typ.Type)}
}

// RegisterNamedSchema associates a user-facing schema name with a type,
// the lookup `cast schema_name` (spec §4.7) resolves against. Unlike
// Partitions/Schemas this is populated explicitly (by configuration or a
// prior `from`/parser observation), not inferred from ingested data.
func (c *Catalog) RegisterNamedSchema(name string, t typ.Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemas[name] = t
}

// LookupNamedSchema resolves a schema name registered via
// RegisterNamedSchema.
func (c *Catalog) LookupNamedSchema(name string) (typ.Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.schemas[name]
	return t, ok
}

// RegisterPartition adds or replaces a partition entry, called whenever
// a `from`/loader operator commits new data (the node-local analogue of
// Tenzir's catalog-actor registration RPC).
func (c *Catalog) RegisterPartition(p Partition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partitions[p.UUID] = p
}

// RemovePartition drops a partition entry, e.g. after retention or
// compaction.
func (c *Catalog) RemovePartition(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.partitions, id)
}

// Partitions returns a snapshot of every currently registered partition.
func (c *Catalog) Partitions() []Partition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Partition, 0, len(c.partitions))
	for _, p := range c.partitions {
		out = append(out, p)
	}
	return out
}

// Schemas returns the distinct type definitions currently present across
// all registered partitions, deduplicated by
// fingerprint.
func (c *Catalog) Schemas() []typ.Type {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]struct{})
	out := make([]typ.Type, 0)
	for _, p := range c.partitions {
		fp := p.Schema.Fingerprint()
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, p.Schema)
	}
	return out
}

// RegisterPlugin records one plugin's descriptor, called once at node
// startup per loaded plugin (operators, functions, connectors, codecs).
func (c *Catalog) RegisterPlugin(p Plugin) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plugins = append(c.plugins, p)
}

// Plugins returns every registered plugin descriptor.
func (c *Catalog) Plugins() []Plugin {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Plugin, len(c.plugins))
	copy(out, c.plugins)
	return out
}
