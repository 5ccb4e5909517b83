// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package manager is the node's pipeline registry: it composes TQL
// source text into a runnable pipeline.Pipeline, drives it on
// pkg/tenzir/exec, and tracks every running/finished pipeline by ID so
// internal/controlapi can list, inspect, and stop them. It plays the
// role the teacher's internal/taskManager plays for background
// services, generalized from a handful of fixed jobs to an open set of
// user-submitted pipelines, each with its own gocron-scheduled
// checkpoint ticker.
package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/tenzir/pipeline-core/internal/config"
	"github.com/tenzir/pipeline-core/pkg/nats"
	"github.com/tenzir/pipeline-core/pkg/tenzir/catalog"
	"github.com/tenzir/pipeline-core/pkg/tenzir/checkpoint"
	"github.com/tenzir/pipeline-core/pkg/tenzir/diag"
	"github.com/tenzir/pipeline-core/pkg/tenzir/exec"
	"github.com/tenzir/pipeline-core/pkg/tenzir/expr"
	"github.com/tenzir/pipeline-core/pkg/tenzir/metrics"
	"github.com/tenzir/pipeline-core/pkg/tenzir/op"
	"github.com/tenzir/pipeline-core/pkg/tenzir/pipeline"
)

// Status is a running or finished pipeline's externally visible state.
type Status string

const (
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusFailed   Status = "failed"
	StatusFinished Status = "finished"
)

// Info is the read-only view of one pipeline instance, the shape
// internal/controlapi renders as JSON.
type Info struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Error     string    `json:"error,omitempty"`
}

type instance struct {
	Info
	exec       *exec.Pipeline
	injector   *checkpoint.Injector
	checkpoint gocron.Scheduler
	cancel     context.CancelFunc
	mu         sync.Mutex
}

// Manager owns every pipeline instance started on this node.
type Manager struct {
	cfg       config.ProgramConfig
	registry  *pipeline.Registry
	functions *expr.Registry
	catalog   *catalog.Catalog
	metrics   *metrics.Registry
	nats      *nats.Client
	store     op.CheckpointStore

	mu        sync.Mutex
	instances map[string]*instance
}

// New builds a Manager wired against the node's shared, long-lived
// collaborators: the operator registry, expression function registry,
// read-only catalog facade, and buffer-stats registry. When
// cfg.CheckpointDir is non-empty, every pipeline's stateful operators
// (spec §4.6) persist and recover their local state through a shared
// checkpoint.Store rooted there; an empty directory leaves every
// pipeline running with no cross-restart state (spec §7's "missing
// checkpoint state" path).
func New(cfg config.ProgramConfig, registry *pipeline.Registry, functions *expr.Registry, cat *catalog.Catalog, metricsReg *metrics.Registry, natsClient *nats.Client) *Manager {
	m := &Manager{
		cfg:       cfg,
		registry:  registry,
		functions: functions,
		catalog:   cat,
		metrics:   metricsReg,
		nats:      natsClient,
		instances: make(map[string]*instance),
	}
	if cfg.CheckpointDir != "" {
		store, err := checkpoint.NewStore(cfg.CheckpointDir)
		if err != nil {
			cclog.Warnf("manager: checkpoint store disabled: %v", err)
		} else {
			m.store = store
		}
	}
	return m
}

// Start composes src and runs it as a new pipeline instance, returning
// its assigned ID immediately; the pipeline keeps running in the
// background until it exhausts, fails, or Stop is called.
func (m *Manager) Start(src string) (Info, error) {
	id := uuid.NewString()

	ring := diag.NewRingBuffer(id, 256)
	session := diag.NewSession(diag.MultiSink{ring, diag.ConsoleSink{}})
	injector := checkpoint.NewInjector(id, m.cfg.CheckpointInterval(), m.cfg.CheckpointRowCap)

	env := &pipeline.Env{
		Registry:    m.registry,
		Functions:   m.functions,
		Session:     session,
		Catalog:     m.catalog,
		Metrics:     m.metrics,
		Diagnostics: ring.Snapshot,
		NATS:        m.nats,
		Injector:    injector,
	}

	composed, err := pipeline.Compose(src, env)
	if err != nil {
		return Info{}, fmt.Errorf("parse_error: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := exec.New(ctx, id, session, composed.Operators)
	p.WireMetrics(m.metrics)
	if m.store != nil {
		p.SetCheckpointStore(m.store)
	}

	inst := &instance{
		Info: Info{
			ID:        id,
			Source:    src,
			Status:    StatusRunning,
			StartedAt: timeNow(),
		},
		exec:     p,
		injector: injector,
		cancel:   cancel,
	}

	if sched, err := startCheckpointTicker(injector, m.cfg.CheckpointInterval()); err != nil {
		cclog.Warnf("manager: pipeline %s: checkpoint ticker: %v", id, err)
	} else {
		inst.checkpoint = sched
	}

	m.mu.Lock()
	m.instances[id] = inst
	m.mu.Unlock()

	go m.run(inst)

	return inst.Info, nil
}

// timeNow is a thin seam so tests could stub it; production always uses
// wall-clock time.
var timeNow = time.Now

func (m *Manager) run(inst *instance) {
	err := inst.exec.Run()

	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.checkpoint != nil {
		_ = inst.checkpoint.Shutdown()
	}
	if err != nil {
		inst.Status = StatusFailed
		inst.Error = err.Error()
		cclog.Errorf("manager: pipeline %s failed: %v", inst.ID, err)
		return
	}
	if inst.Status == StatusRunning {
		inst.Status = StatusFinished
	}
}

// startCheckpointTicker schedules a gocron job requesting a checkpoint
// boundary at interval; interval <= 0 means the pipeline only checkpoints
// on-demand or via its row-count boundary.
func startCheckpointTicker(injector *checkpoint.Injector, interval time.Duration) (gocron.Scheduler, error) {
	if interval <= 0 {
		return nil, nil
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	if _, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(injector.RequestCheckpoint),
	); err != nil {
		return nil, err
	}
	s.Start()
	return s, nil
}

// Stop requests graceful shutdown of the pipeline with id: it drains to
// the next checkpoint, then stops. Returns an error if no such pipeline
// is running.
func (m *Manager) Stop(id string) error {
	inst, ok := m.lookup(id)
	if !ok {
		return fmt.Errorf("lookup_error: no such pipeline %q", id)
	}
	inst.mu.Lock()
	inst.Status = StatusStopped
	inst.mu.Unlock()
	inst.exec.Stop()
	return nil
}

// Cancel tears the pipeline with id down immediately.
func (m *Manager) Cancel(id string) error {
	inst, ok := m.lookup(id)
	if !ok {
		return fmt.Errorf("lookup_error: no such pipeline %q", id)
	}
	inst.exec.Cancel()
	inst.cancel()
	return nil
}

// Get returns the current Info for id.
func (m *Manager) Get(id string) (Info, bool) {
	inst, ok := m.lookup(id)
	if !ok {
		return Info{}, false
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.Info, true
}

// List returns every known pipeline's current Info, most recently
// started first.
func (m *Manager) List() []Info {
	m.mu.Lock()
	insts := make([]*instance, 0, len(m.instances))
	for _, inst := range m.instances {
		insts = append(insts, inst)
	}
	m.mu.Unlock()

	out := make([]Info, len(insts))
	for i, inst := range insts {
		inst.mu.Lock()
		out[i] = inst.Info
		inst.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

func (m *Manager) lookup(id string) (*instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	return inst, ok
}
