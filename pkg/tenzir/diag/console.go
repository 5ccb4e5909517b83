// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package diag

import (
	"strings"

	"github.com/tenzir/pipeline-core/pkg/log"
)

// ConsoleSink renders diagnostics to the operator console through
// pkg/log's leveled writers, one severity-tagged line per diagnostic
// plus its notes and hints indented underneath — the daemon log (via
// ccLogger, used throughout pkg/tenzir) and this console renderer serve
// different audiences exactly the way the teacher keeps both loggers
// alive side by side.
type ConsoleSink struct{}

func (ConsoleSink) Emit(d Diagnostic) {
	line := renderLine(d)
	switch d.Severity {
	case Error:
		log.Error(line)
	case Warning:
		log.Warn(line)
	default:
		log.Note(line)
	}
	for _, n := range d.Notes {
		log.Info("  note: " + n)
	}
	for _, h := range d.Hints {
		log.Info("  hint: " + h)
	}
}

func renderLine(d Diagnostic) string {
	var b strings.Builder
	if d.Source != "" {
		b.WriteString(d.Source)
		b.WriteString(": ")
	}
	b.WriteString(d.Message)
	for _, loc := range d.Locations {
		if loc.Text != "" {
			b.WriteString(" (")
			b.WriteString(loc.Text)
			b.WriteString(")")
		}
	}
	return b.String()
}
