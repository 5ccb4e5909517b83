// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store binds each (operator_identity, epoch) to its opaque save() blob
// durably enough to survive a restart. The teacher keeps one checkpoint
// file per host under a root directory and swaps it atomically on write
// (internal/memorystore/checkpoint.go's toCheckpoint); Store applies the
// same one-file-per-key, write-then-rename discipline to operator blobs
// instead of metric buffers.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore roots blob storage at dir, creating it if necessary.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

type envelope struct {
	OperatorIdentity string `json:"operator_identity"`
	Epoch            uint64 `json:"epoch"`
	Blob             []byte `json:"blob"`
}

// path flattens identity into a single filename directly under s.dir.
// Operator identity (exec/scheduler.go's "<pipelineID>/<idx>-<name>")
// contains a '/', and filepath.Join-ing it straight in would address a
// file under a <pipelineID>/ subdirectory that NewStore never creates;
// replacing the separator keeps every blob a sibling file in one flat,
// already-`MkdirAll`'d directory.
func (s *Store) path(identity string) string {
	flat := strings.ReplaceAll(identity, "/", "_")
	return filepath.Join(s.dir, flat+".checkpoint.json")
}

// Put persists blob for identity at epoch, overwriting any prior epoch
// for that identity: only the most recent committed blob is kept, which
// is all Recovery (spec "most recent committed blob") needs.
func (s *Store) Put(identity string, epoch uint64, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(envelope{OperatorIdentity: identity, Epoch: epoch, Blob: blob})
	if err != nil {
		return fmt.Errorf("checkpoint: encode envelope for %s: %w", identity, err)
	}

	final := s.path(identity)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("checkpoint: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("checkpoint: commit %s: %w", final, err)
	}
	return nil
}

// Get returns the most recently committed blob for identity, or
// ok=false if no checkpoint has ever been written for it (a cold start,
// which per spec is not itself an error: "Missing or corrupt checkpoint
// state yields a warning and empty initial state").
func (s *Store) Get(identity string) (blob []byte, epoch uint64, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, rerr := os.ReadFile(s.path(identity))
	if os.IsNotExist(rerr) {
		return nil, 0, false, nil
	}
	if rerr != nil {
		return nil, 0, false, fmt.Errorf("checkpoint: read %s: %w", identity, rerr)
	}

	var e envelope
	if jerr := json.Unmarshal(data, &e); jerr != nil {
		// Corrupt state: treat exactly like "missing", but surface the
		// cause so the caller can still emit a diagnostic about it.
		return nil, 0, false, fmt.Errorf("checkpoint: corrupt state for %s: %w", identity, jerr)
	}
	return e.Blob, e.Epoch, true, nil
}
