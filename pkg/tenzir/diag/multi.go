// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package diag

// MultiSink fans one diagnostic out to every sink in order, letting a
// session feed both the `diagnostics` aspect operator's RingBuffer and
// an operator-facing ConsoleSink from the same emit call.
type MultiSink []Sink

func (m MultiSink) Emit(d Diagnostic) {
	for _, sink := range m {
		sink.Emit(d)
	}
}
