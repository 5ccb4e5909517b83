// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package connectors

import "os"

// Stdin is the `load stdin` / default-source loader: it streams the
// process's standard input as byte chunks.
type Stdin struct{}

func (Stdin) Open(ctrl Ctrl) (ByteChunks, error) {
	return newReaderChunks(os.Stdin, nil, 0), nil
}

// Stdout is the `save stdout` / default-sink saver: it writes chunks to
// the process's standard output and leaves stdin/stdout open on close,
// since the process owns that handle for its whole lifetime.
type Stdout struct{}

func (Stdout) Open(ctrl Ctrl) (func(chunk []byte) error, error) {
	return func(chunk []byte) error {
		if chunk == nil {
			return nil
		}
		_, err := os.Stdout.Write(chunk)
		return err
	}, nil
}
