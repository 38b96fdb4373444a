// SPDX-License-Identifier: GPL-2.0-or-later

// Package avi writes segmented RIFF/AVI files.
package avi

import (
	"avidump/pkg/avi/bitio"
)

// FourCC is a RIFF chunk or codec type.
type FourCC [4]byte

// String implements fmt.Stringer.
func (f FourCC) String() string {
	return string(f[:])
}

// Chunk and list identifiers.
var (
	FourCCRIFF = FourCC{'R', 'I', 'F', 'F'}
	FourCCLIST = FourCC{'L', 'I', 'S', 'T'}
	FourCCAVI  = FourCC{'A', 'V', 'I', ' '}
	FourCChdrl = FourCC{'h', 'd', 'r', 'l'}
	FourCCstrl = FourCC{'s', 't', 'r', 'l'}
	FourCCmovi = FourCC{'m', 'o', 'v', 'i'}
	FourCCavih = FourCC{'a', 'v', 'i', 'h'}
	FourCCstrh = FourCC{'s', 't', 'r', 'h'}
	FourCCstrf = FourCC{'s', 't', 'r', 'f'}
	FourCCidx1 = FourCC{'i', 'd', 'x', '1'}
	FourCCvids = FourCC{'v', 'i', 'd', 's'}
	FourCCauds = FourCC{'a', 'u', 'd', 's'}

	// FourCCVideoChunk is a compressed frame of stream 0.
	FourCCVideoChunk = FourCC{'0', '0', 'd', 'b'}

	// FourCCAudioChunk is a PCM packet of stream 1.
	FourCCAudioChunk = FourCC{'0', '1', 'w', 'b'}
)

// Chunk is a node in the RIFF tree.
type Chunk interface {
	// Size returns the marshaled size in bytes including the 8 byte
	// type and length prefix. The size must be known before marshaling
	// since the prefix contains it.
	Size() int

	// Marshal chunk to writer.
	Marshal(w *bitio.Writer) error
}

// List is a RIFF or LIST chunk.
type List struct {
	ID       FourCC // RIFF or LIST.
	Type     FourCC
	Children []Chunk
}

// Size returns the total size of the list including children.
func (l *List) Size() int {
	total := 12
	for _, child := range l.Children {
		total += child.Size()
	}
	return total
}

// Marshal list including children.
func (l *List) Marshal(w *bitio.Writer) error {
	writeChunkHeader(w, l.ID, l.Size()-8)
	w.TryWrite(l.Type[:])
	if w.TryError != nil {
		return w.TryError
	}
	for _, child := range l.Children {
		if err := child.Marshal(w); err != nil {
			return err
		}
	}
	return nil
}

func writeChunkHeader(w *bitio.Writer, id FourCC, size int) {
	w.TryWrite(id[:])
	w.TryWriteUint32(uint32(size))
}

// Movi is the data list. Only its list header is marshaled, the
// payload is streamed to the file before the header is finalized.
type Movi struct {
	// PayloadSize is the number of bytes written after the list type.
	PayloadSize int
}

// Size returns the marshaled size in bytes.
func (m *Movi) Size() int {
	return 12 + m.PayloadSize
}

// Marshal writes the list header.
func (m *Movi) Marshal(w *bitio.Writer) error {
	writeChunkHeader(w, FourCCLIST, 4+m.PayloadSize)
	w.TryWrite(FourCCmovi[:])
	return w.TryError
}
