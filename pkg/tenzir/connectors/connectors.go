// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package connectors implements the loader/saver contracts of spec
// §6.3 plus concrete stdin/file/S3 connectors: `load`'s and `save`'s
// abstract I/O boundary. A Loader produces a lazy byte_chunk sequence
// (blocking I/O moved onto the runtime's blocking pool per spec §5); a
// Saver is a callable invoked once per chunk, with a final nil-chunk
// call signaling close (spec §6.3).
package connectors

import (
	"context"
	"fmt"
	"io"
)

// Ctrl is the loader/saver side-channel for diagnostics and
// cancellation, the `ctrl` argument of spec §6.3.
type Ctrl struct {
	Context context.Context
	Warn    func(format string, args ...any)
}

// ByteChunks is a lazy pull-based sequence of raw bytes, matching
// pkg/tenzir/codec's ByteChunks so a Loader's output feeds a Parser
// directly.
type ByteChunks interface {
	Next(ctx context.Context) (chunk []byte, ok bool, err error)
}

// Loader opens a byte source and exposes it as a lazy sequence (spec
// §6.3: "(config, ctrl) → lazy byte_chunk sequence; may block on I/O via
// the runtime's blocking pool; signals EOF by ending the sequence").
type Loader interface {
	Open(ctrl Ctrl) (ByteChunks, error)
}

// Saver is a callable invoked once per chunk; the final invocation
// passes a nil chunk to signal close (spec §6.3).
type Saver interface {
	Open(ctrl Ctrl) (write func(chunk []byte) error, err error)
}

// readerChunks adapts an io.Reader to ByteChunks, reading up to
// chunkSize bytes per pull. Blocking reads happen inside Next, which the
// runtime is expected to invoke from its blocking I/O pool rather than a
// scheduler goroutine (spec §5 "I/O wrappers move blocking calls onto a
// dedicated blocking thread pool").
type readerChunks struct {
	r         io.Reader
	chunkSize int
	closer    io.Closer
}

func newReaderChunks(r io.Reader, closer io.Closer, chunkSize int) *readerChunks {
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	return &readerChunks{r: r, closer: closer, chunkSize: chunkSize}
}

func (rc *readerChunks) Next(ctx context.Context) ([]byte, bool, error) {
	buf := make([]byte, rc.chunkSize)
	n, err := rc.r.Read(buf)
	if n > 0 {
		return buf[:n], true, nil
	}
	if err == io.EOF {
		if rc.closer != nil {
			_ = rc.closer.Close()
		}
		return nil, false, nil
	}
	if err != nil {
		if rc.closer != nil {
			_ = rc.closer.Close()
		}
		return nil, false, fmt.Errorf("io_error: %w", err)
	}
	return nil, true, nil
}

// writerSaver adapts an io.WriteCloser to Saver: each non-nil chunk is
// written immediately, and the final nil chunk closes the writer.
type writerSaver struct {
	w io.WriteCloser
}

func newWriterSaver(w io.WriteCloser) *writerSaver { return &writerSaver{w: w} }

func (ws *writerSaver) Open(ctrl Ctrl) (func(chunk []byte) error, error) {
	return func(chunk []byte) error {
		if chunk == nil {
			return ws.w.Close()
		}
		_, err := ws.w.Write(chunk)
		if err != nil {
			return fmt.Errorf("io_error: %w", err)
		}
		return nil
	}, nil
}
