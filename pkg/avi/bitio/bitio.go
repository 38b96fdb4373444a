// SPDX-License-Identifier: GPL-2.0-or-later

// Package bitio writes little-endian RIFF fields.
package bitio

import "io"

// Writer is a little-endian writer that counts the bytes it has written.
type Writer struct {
	out io.Writer
	n   int64

	// TryError holds the first error occurred in TryXXX() methods.
	TryError error
}

// NewWriter returns a new Writer using the specified io.Writer as the output.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Written returns the number of bytes successfully written.
func (w *Writer) Written() int64 {
	return w.n
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.out.Write(p)
	w.n += int64(n)
	if err == nil && n != len(p) {
		err = io.ErrShortWrite
	}
	return n, err
}

// WriteByte implements io.ByteWriter.
func (w *Writer) WriteByte(b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

// WriteUint16 writes 16 bits.
func (w *Writer) WriteUint16(r uint16) error {
	_, err := w.Write([]byte{
		byte(r),
		byte(r >> 8),
	})
	return err
}

// WriteUint32 writes 32 bits.
func (w *Writer) WriteUint32(r uint32) error {
	_, err := w.Write([]byte{
		byte(r),
		byte(r >> 8),
		byte(r >> 16),
		byte(r >> 24),
	})
	return err
}

// WriteUint64 writes 64 bits.
func (w *Writer) WriteUint64(r uint64) error {
	if err := w.WriteUint32(uint32(r)); err != nil {
		return err
	}
	return w.WriteUint32(uint32(r >> 32))
}

// TryWrite tries to write len(p) bytes.
func (w *Writer) TryWrite(p []byte) {
	if w.TryError == nil {
		_, w.TryError = w.Write(p)
	}
}

// TryWriteByte tries to write 1 byte.
func (w *Writer) TryWriteByte(b byte) {
	if w.TryError == nil {
		w.TryError = w.WriteByte(b)
	}
}

// TryWriteUint16 tries to write 16 bits.
func (w *Writer) TryWriteUint16(r uint16) {
	if w.TryError == nil {
		w.TryError = w.WriteUint16(r)
	}
}

// TryWriteUint32 tries to write 32 bits.
func (w *Writer) TryWriteUint32(r uint32) {
	if w.TryError == nil {
		w.TryError = w.WriteUint32(r)
	}
}

// TryWriteUint64 tries to write 64 bits.
func (w *Writer) TryWriteUint64(r uint64) {
	if w.TryError == nil {
		w.TryError = w.WriteUint64(r)
	}
}

// TryWriteZeros tries to write n zero bytes.
func (w *Writer) TryWriteZeros(n int) {
	var zeros [512]byte
	for n > 0 && w.TryError == nil {
		size := n
		if size > len(zeros) {
			size = len(zeros)
		}
		w.TryWrite(zeros[:size])
		n -= size
	}
}
