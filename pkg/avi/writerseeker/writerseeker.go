// SPDX-License-Identifier: GPL-2.0-or-later

// Package writerseeker is an in-memory segment file.
package writerseeker

import (
	"bytes"
	"errors"
	"io"
)

// ErrNoSpace write past the capacity limit.
var ErrNoSpace = errors.New("no space left on device")

// ErrNegativeResultPos negative result pos.
var ErrNegativeResultPos = errors.New("negative result pos")

// WriterSeeker is an in-memory io.WriteSeeker implementation.
type WriterSeeker struct {
	buf []byte
	pos int

	// Limit is the maximum file size, 0 means unlimited.
	// Writes that would grow the file past it are truncated
	// and return ErrNoSpace.
	Limit int

	closed bool
}

// Write writes at the current position, growing the buffer with null bytes if needed.
func (ws *WriterSeeker) Write(p []byte) (int, error) {
	var err error
	if ws.Limit > 0 && ws.pos+len(p) > ws.Limit {
		room := ws.Limit - ws.pos
		if room < 0 {
			room = 0
		}
		p = p[:room]
		err = ErrNoSpace
	}

	end := ws.pos + len(p)
	if end > len(ws.buf) {
		grown := make([]byte, end)
		copy(grown, ws.buf)
		ws.buf = grown
	}
	n := copy(ws.buf[ws.pos:], p)
	ws.pos += n
	return n, err
}

// Seek seeks in the buffer.
func (ws *WriterSeeker) Seek(offset int64, whence int) (int64, error) {
	newPos, offs := 0, int(offset)
	switch whence {
	case io.SeekStart:
		newPos = offs
	case io.SeekCurrent:
		newPos = ws.pos + offs
	case io.SeekEnd:
		newPos = len(ws.buf) + offs
	}
	if newPos < 0 {
		return 0, ErrNegativeResultPos
	}
	ws.pos = newPos
	return int64(newPos), nil
}

// Close marks the file closed.
func (ws *WriterSeeker) Close() error {
	ws.closed = true
	return nil
}

// Closed reports whether Close was called.
func (ws *WriterSeeker) Closed() bool {
	return ws.closed
}

// BytesReader returns a reader over a snapshot of the content.
func (ws *WriterSeeker) BytesReader() *bytes.Reader {
	return bytes.NewReader(ws.Bytes())
}

// Bytes returns a copy of the content.
func (ws *WriterSeeker) Bytes() []byte {
	out := make([]byte, len(ws.buf))
	copy(out, ws.buf)
	return out
}

// Len returns the file size.
func (ws *WriterSeeker) Len() int {
	return len(ws.buf)
}
