// SPDX-License-Identifier: GPL-2.0-or-later

// Package sidecar writes the raw audio companion of a capture.
//
//	magic       [4]byte "RAWS"
//	headerSize  uint32  32
//	sampleCount uint64  samples per channel, written at close
//	sampleRate  float64
//	channels    uint32
//	reserved    uint32
//	samples     []int32 interleaved
//
// All fields are little-endian.
package sidecar

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"avidump/pkg/avi/bitio"
	"avidump/pkg/pixfmt"
)

// HeaderSize is the size of the file header.
const HeaderSize = 32

// Magic identifies the file.
var Magic = [4]byte{'R', 'A', 'W', 'S'}

// Sidecar errors.
var (
	ErrInvalidHeader = errors.New("invalid header")
	ErrClosed        = errors.New("sidecar closed")
)

// Header is the file header.
type Header struct {
	SampleCount uint64
	SampleRate  float64
	Channels    uint32
}

// Marshal header.
func (h Header) Marshal(w *bitio.Writer) error {
	w.TryWrite(Magic[:])
	w.TryWriteUint32(HeaderSize)
	w.TryWriteUint64(h.SampleCount)
	w.TryWriteUint64(math.Float64bits(h.SampleRate))
	w.TryWriteUint32(h.Channels)
	w.TryWriteUint32(0)
	return w.TryError
}

// Unmarshal header.
func (h *Header) Unmarshal(buf []byte) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("%w: %d bytes", ErrInvalidHeader, len(buf))
	}
	if [4]byte(buf[:4]) != Magic {
		return fmt.Errorf("%w: magic %q", ErrInvalidHeader, buf[:4])
	}
	if size := binary.LittleEndian.Uint32(buf[4:]); size != HeaderSize {
		return fmt.Errorf("%w: header size %d", ErrInvalidHeader, size)
	}
	h.SampleCount = binary.LittleEndian.Uint64(buf[8:])
	h.SampleRate = math.Float64frombits(binary.LittleEndian.Uint64(buf[16:]))
	h.Channels = binary.LittleEndian.Uint32(buf[24:])
	return nil
}

// File is the sidecar output.
type File interface {
	io.WriteSeeker
	io.Closer
}

// Writer writes canonical samples to a sidecar file.
type Writer struct {
	out    File
	header Header
	buf    []byte
	closed bool
}

// NewWriter writes the header placeholder and returns a Writer.
func NewWriter(out File, sampleRate uint32, channels uint16) (*Writer, error) {
	w := &Writer{
		out: out,
		header: Header{
			SampleRate: float64(sampleRate),
			Channels:   uint32(channels),
		},
	}
	if err := w.writeHeader(); err != nil {
		return nil, err
	}
	return w, nil
}

// Header returns the current header.
func (w *Writer) Header() Header {
	return w.header
}

// Write appends interleaved canonical samples. The sample count must
// be a multiple of the channel count.
func (w *Writer) Write(samples []uint16) error {
	if w.closed {
		return ErrClosed
	}
	if len(samples) == 0 {
		return nil
	}

	size := 4 * len(samples)
	if cap(w.buf) < size {
		w.buf = make([]byte, size)
	}
	buf := w.buf[:size]
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(pixfmt.ToSigned32(s)))
	}

	n, err := w.out.Write(buf)
	if err != nil {
		return fmt.Errorf("write samples: %w", err)
	}
	if n != size {
		return fmt.Errorf("write samples: %w", io.ErrShortWrite)
	}
	w.header.SampleCount += uint64(len(samples) / int(w.header.Channels))
	return nil
}

// Close patches the sample count into the header and closes the file.
// Calling Close again is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writeHeader(); err != nil {
		w.out.Close()
		return err
	}
	return w.out.Close()
}

func (w *Writer) writeHeader() error {
	if _, err := w.out.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	bw := bitio.NewWriter(w.out)
	if err := w.header.Marshal(bw); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	_, err := w.out.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	return nil
}
