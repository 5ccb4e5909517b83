// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package diag implements structured diagnostics: a
// severity-tagged message carrying source-location annotations, built
// fluently and emitted into a per-pipeline ring-buffer sink exposed
// through the `diagnostics` aspect operator. The fluent builder and
// leveled severities mirror the teacher's pkg/log level-writer design,
// generalized to carry structured location data instead of a flat string.
package diag

import (
	"fmt"
	"sync"
)

// Severity is one of the three levels named in spec §3.6.
type Severity int

const (
	Note Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Note:
		return "note"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Location is a source-location annotation, byte-offset range into the
// pipeline definition text.
type Location struct {
	Begin, End int
	Text       string // the annotated message, may be empty
}

// Diagnostic is a structured, located, severity-tagged message (spec
// §3.6).
type Diagnostic struct {
	Severity  Severity
	Message   string
	Locations []Location
	Notes     []string
	Hints     []string
	DocsURL   string

	// Source identifies what produced the diagnostic, e.g. the operator
	// name; used for deduplication and display.
	Source string
}

// Builder constructs a Diagnostic fluently, mirroring spec §4.9's
// `severity, primary message, primary(location), note(text), hint(text),
// docs(url), emit(session)` chain.
type Builder struct {
	d Diagnostic
}

func New(sev Severity, message string) *Builder {
	return &Builder{d: Diagnostic{Severity: sev, Message: message}}
}

func Errorf(format string, args ...any) *Builder {
	return New(Error, fmt.Sprintf(format, args...))
}

func Warnf(format string, args ...any) *Builder {
	return New(Warning, fmt.Sprintf(format, args...))
}

func (b *Builder) Primary(loc Location) *Builder {
	b.d.Locations = append(b.d.Locations, loc)
	return b
}

func (b *Builder) Note(text string) *Builder {
	b.d.Notes = append(b.d.Notes, text)
	return b
}

func (b *Builder) Hint(text string) *Builder {
	b.d.Hints = append(b.d.Hints, text)
	return b
}

func (b *Builder) Docs(url string) *Builder {
	b.d.DocsURL = url
	return b
}

func (b *Builder) Source(name string) *Builder {
	b.d.Source = name
	return b
}

func (b *Builder) Build() Diagnostic { return b.d }

// Emit finalizes the diagnostic and hands it to session's sink (spec
// §4.9).
func (b *Builder) Emit(session *Session) {
	session.Sink.Emit(b.d)
}

// Sink receives diagnostics; a session's sink is typically a ring buffer
// scoped to one pipeline.
type Sink interface {
	Emit(d Diagnostic)
}

// Session is the context object threaded through parse and execution that
// carries the diagnostic sink and the set of already-emitted warnings
// used for coalescing duplicate per-row warnings.
type Session struct {
	Sink Sink
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewSession(sink Sink) *Session {
	return &Session{Sink: sink, seen: make(map[string]struct{})}
}

// WarnOnce emits a Warning-severity diagnostic at most once per distinct
// (message, location) pair for the lifetime of the session, implementing
// spec §4.2's "a deduplicated warning is emitted" for per-row evaluation
// failures and spec §4.9's duplicate-coalescing rule.
func (s *Session) WarnOnce(message string, loc Location) {
	key := fmt.Sprintf("%s@%d-%d:%s", message, loc.Begin, loc.End, loc.Text)
	s.mu.Lock()
	_, dup := s.seen[key]
	if !dup {
		s.seen[key] = struct{}{}
	}
	s.mu.Unlock()
	if dup {
		return
	}
	New(Warning, message).Primary(loc).Emit(s)
}
