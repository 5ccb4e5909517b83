// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package diag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuilderFluentChain(t *testing.T) {
	sink := NewRingBuffer("p1", 8)
	session := NewSession(sink)

	Errorf("bad thing: %s", "oops").
		Primary(Location{Begin: 1, End: 4, Text: "here"}).
		Note("see also").
		Hint("try X").
		Docs("https://example.invalid").
		Source("where").
		Emit(session)

	got := sink.Snapshot()
	require.Len(t, got, 1)
	require.Equal(t, Error, got[0].Severity)
	require.Equal(t, "bad thing: oops", got[0].Message)
	require.Equal(t, []string{"see also"}, got[0].Notes)
	require.Equal(t, []string{"try X"}, got[0].Hints)
}

func TestWarnOnceDeduplicates(t *testing.T) {
	sink := NewRingBuffer("p1", 8)
	session := NewSession(sink)

	loc := Location{Begin: 0, End: 1}
	session.WarnOnce("int(\"x\") failed", loc)
	session.WarnOnce("int(\"x\") failed", loc)
	session.WarnOnce("different message", loc)

	require.Len(t, sink.Snapshot(), 2)
}

func TestRingBufferDropsOldest(t *testing.T) {
	sink := NewRingBuffer("p1", 2)
	for i := 0; i < 3; i++ {
		New(Note, "msg").Emit(NewSession(sink))
	}
	snap := sink.Snapshot()
	require.Len(t, snap, 2)
}
