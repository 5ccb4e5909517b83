// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package connectors

import (
	"fmt"
	"os"
)

// File is the `load file:///path` / `save file:///path` connector pair.
type File struct {
	Path string
}

func (f File) Open(ctrl Ctrl) (ByteChunks, error) {
	handle, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("io_error: open %q: %w", f.Path, err)
	}
	return newReaderChunks(handle, handle, 0), nil
}

// FileSaver is the saver half of the file connector, split from File so
// Loader and Saver stay distinct small interfaces per spec §6.3 rather
// than one connector type implementing both unconditionally.
type FileSaver struct {
	Path   string
	Append bool
}

func (f FileSaver) Open(ctrl Ctrl) (func(chunk []byte) error, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if f.Append {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	handle, err := os.OpenFile(f.Path, flags, 0o640)
	if err != nil {
		return nil, fmt.Errorf("io_error: open %q: %w", f.Path, err)
	}
	return newWriterSaver(handle).Open(ctrl)
}
