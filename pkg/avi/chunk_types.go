// SPDX-License-Identifier: GPL-2.0-or-later

package avi

import (
	"encoding/binary"
	"errors"
	"fmt"

	"avidump/pkg/avi/bitio"
)

// Header flags.
const (
	FlagHasIndex      = uint32(0x10)
	FlagIsInterleaved = uint32(0x100)
)

// FlagKeyframe marks an index entry as a keyframe.
const FlagKeyframe = uint32(0x10)

// ErrInvalidChunk chunk body has the wrong size.
var ErrInvalidChunk = errors.New("invalid chunk")

/*************************** avih ****************************/

const avihSize = 56

// Avih is the main AVI header.
type Avih struct {
	MicroSecPerFrame    uint32
	MaxBytesPerSec      uint32
	PaddingGranularity  uint32
	Flags               uint32
	TotalFrames         uint32
	InitialFrames       uint32
	Streams             uint32
	SuggestedBufferSize uint32
	Width               uint32
	Height              uint32
}

// Size returns the marshaled size in bytes.
func (*Avih) Size() int {
	return 8 + avihSize
}

// Marshal chunk to writer.
func (c *Avih) Marshal(w *bitio.Writer) error {
	writeChunkHeader(w, FourCCavih, avihSize)
	w.TryWriteUint32(c.MicroSecPerFrame)
	w.TryWriteUint32(c.MaxBytesPerSec)
	w.TryWriteUint32(c.PaddingGranularity)
	w.TryWriteUint32(c.Flags)
	w.TryWriteUint32(c.TotalFrames)
	w.TryWriteUint32(c.InitialFrames)
	w.TryWriteUint32(c.Streams)
	w.TryWriteUint32(c.SuggestedBufferSize)
	w.TryWriteUint32(c.Width)
	w.TryWriteUint32(c.Height)
	w.TryWriteZeros(16) // Reserved.
	return w.TryError
}

// Unmarshal chunk body.
func (c *Avih) Unmarshal(body []byte) error {
	if len(body) < avihSize {
		return fmt.Errorf("%w: avih: %d bytes", ErrInvalidChunk, len(body))
	}
	le := binary.LittleEndian
	c.MicroSecPerFrame = le.Uint32(body[0:4])
	c.MaxBytesPerSec = le.Uint32(body[4:8])
	c.PaddingGranularity = le.Uint32(body[8:12])
	c.Flags = le.Uint32(body[12:16])
	c.TotalFrames = le.Uint32(body[16:20])
	c.InitialFrames = le.Uint32(body[20:24])
	c.Streams = le.Uint32(body[24:28])
	c.SuggestedBufferSize = le.Uint32(body[28:32])
	c.Width = le.Uint32(body[32:36])
	c.Height = le.Uint32(body[36:40])
	return nil
}

/*************************** strh ****************************/

const strhSize = 56

// Rect is the strh destination rectangle.
type Rect struct {
	Left   int16
	Top    int16
	Right  int16
	Bottom int16
}

// Strh is a stream header.
type Strh struct {
	FCCType             FourCC
	FCCHandler          FourCC
	Flags               uint32
	Priority            uint16
	Language            uint16
	InitialFrames       uint32
	Scale               uint32
	Rate                uint32
	Start               uint32
	Length              uint32
	SuggestedBufferSize uint32
	Quality             uint32
	SampleSize          uint32
	Frame               Rect
}

// Size returns the marshaled size in bytes.
func (*Strh) Size() int {
	return 8 + strhSize
}

// Marshal chunk to writer.
func (c *Strh) Marshal(w *bitio.Writer) error {
	writeChunkHeader(w, FourCCstrh, strhSize)
	w.TryWrite(c.FCCType[:])
	w.TryWrite(c.FCCHandler[:])
	w.TryWriteUint32(c.Flags)
	w.TryWriteUint16(c.Priority)
	w.TryWriteUint16(c.Language)
	w.TryWriteUint32(c.InitialFrames)
	w.TryWriteUint32(c.Scale)
	w.TryWriteUint32(c.Rate)
	w.TryWriteUint32(c.Start)
	w.TryWriteUint32(c.Length)
	w.TryWriteUint32(c.SuggestedBufferSize)
	w.TryWriteUint32(c.Quality)
	w.TryWriteUint32(c.SampleSize)
	w.TryWriteUint16(uint16(c.Frame.Left))
	w.TryWriteUint16(uint16(c.Frame.Top))
	w.TryWriteUint16(uint16(c.Frame.Right))
	w.TryWriteUint16(uint16(c.Frame.Bottom))
	return w.TryError
}

// Unmarshal chunk body.
func (c *Strh) Unmarshal(body []byte) error {
	if len(body) < strhSize {
		return fmt.Errorf("%w: strh: %d bytes", ErrInvalidChunk, len(body))
	}
	le := binary.LittleEndian
	copy(c.FCCType[:], body[0:4])
	copy(c.FCCHandler[:], body[4:8])
	c.Flags = le.Uint32(body[8:12])
	c.Priority = le.Uint16(body[12:14])
	c.Language = le.Uint16(body[14:16])
	c.InitialFrames = le.Uint32(body[16:20])
	c.Scale = le.Uint32(body[20:24])
	c.Rate = le.Uint32(body[24:28])
	c.Start = le.Uint32(body[28:32])
	c.Length = le.Uint32(body[32:36])
	c.SuggestedBufferSize = le.Uint32(body[36:40])
	c.Quality = le.Uint32(body[40:44])
	c.SampleSize = le.Uint32(body[44:48])
	c.Frame.Left = int16(le.Uint16(body[48:50]))
	c.Frame.Top = int16(le.Uint16(body[50:52]))
	c.Frame.Right = int16(le.Uint16(body[52:54]))
	c.Frame.Bottom = int16(le.Uint16(body[54:56]))
	return nil
}

/************************ strf (video) ***********************/

const bitmapInfoHeaderSize = 40

// StrfVideo is a stream format holding a BITMAPINFOHEADER.
type StrfVideo struct {
	Width         int32
	Height        int32
	Planes        uint16
	BitCount      uint16
	Compression   FourCC
	SizeImage     uint32
	XPelsPerMeter int32
	YPelsPerMeter int32
	ClrUsed       uint32
	ClrImportant  uint32
}

// Size returns the marshaled size in bytes.
func (*StrfVideo) Size() int {
	return 8 + bitmapInfoHeaderSize
}

// Marshal chunk to writer.
func (c *StrfVideo) Marshal(w *bitio.Writer) error {
	writeChunkHeader(w, FourCCstrf, bitmapInfoHeaderSize)
	w.TryWriteUint32(bitmapInfoHeaderSize)
	w.TryWriteUint32(uint32(c.Width))
	w.TryWriteUint32(uint32(c.Height))
	w.TryWriteUint16(c.Planes)
	w.TryWriteUint16(c.BitCount)
	w.TryWrite(c.Compression[:])
	w.TryWriteUint32(c.SizeImage)
	w.TryWriteUint32(uint32(c.XPelsPerMeter))
	w.TryWriteUint32(uint32(c.YPelsPerMeter))
	w.TryWriteUint32(c.ClrUsed)
	w.TryWriteUint32(c.ClrImportant)
	return w.TryError
}

// Unmarshal chunk body.
func (c *StrfVideo) Unmarshal(body []byte) error {
	if len(body) < bitmapInfoHeaderSize {
		return fmt.Errorf("%w: video strf: %d bytes", ErrInvalidChunk, len(body))
	}
	le := binary.LittleEndian
	c.Width = int32(le.Uint32(body[4:8]))
	c.Height = int32(le.Uint32(body[8:12]))
	c.Planes = le.Uint16(body[12:14])
	c.BitCount = le.Uint16(body[14:16])
	copy(c.Compression[:], body[16:20])
	c.SizeImage = le.Uint32(body[20:24])
	c.XPelsPerMeter = int32(le.Uint32(body[24:28]))
	c.YPelsPerMeter = int32(le.Uint32(body[28:32]))
	c.ClrUsed = le.Uint32(body[32:36])
	c.ClrImportant = le.Uint32(body[36:40])
	return nil
}

/************************ strf (audio) ***********************/

const waveFormatExSize = 18

// FormatTagPCM is the WAVE_FORMAT_PCM tag.
const FormatTagPCM = uint16(1)

// StrfAudio is a stream format holding a WAVEFORMATEX.
type StrfAudio struct {
	FormatTag      uint16
	Channels       uint16
	SamplesPerSec  uint32
	AvgBytesPerSec uint32
	BlockAlign     uint16
	BitsPerSample  uint16
}

// Size returns the marshaled size in bytes.
func (*StrfAudio) Size() int {
	return 8 + waveFormatExSize
}

// Marshal chunk to writer.
func (c *StrfAudio) Marshal(w *bitio.Writer) error {
	writeChunkHeader(w, FourCCstrf, waveFormatExSize)
	w.TryWriteUint16(c.FormatTag)
	w.TryWriteUint16(c.Channels)
	w.TryWriteUint32(c.SamplesPerSec)
	w.TryWriteUint32(c.AvgBytesPerSec)
	w.TryWriteUint16(c.BlockAlign)
	w.TryWriteUint16(c.BitsPerSample)
	w.TryWriteUint16(0) // cbSize.
	return w.TryError
}

// Unmarshal chunk body.
func (c *StrfAudio) Unmarshal(body []byte) error {
	if len(body) < 16 {
		return fmt.Errorf("%w: audio strf: %d bytes", ErrInvalidChunk, len(body))
	}
	le := binary.LittleEndian
	c.FormatTag = le.Uint16(body[0:2])
	c.Channels = le.Uint16(body[2:4])
	c.SamplesPerSec = le.Uint32(body[4:8])
	c.AvgBytesPerSec = le.Uint32(body[8:12])
	c.BlockAlign = le.Uint16(body[12:14])
	c.BitsPerSample = le.Uint16(body[14:16])
	return nil
}

/*************************** idx1 ****************************/

const indexEntrySize = 16

// IndexEntry locates one chunk in the data list.
type IndexEntry struct {
	ChunkID FourCC
	Flags   uint32

	// Offset of the chunk header relative to the movi list type.
	Offset uint32

	// Length of the chunk payload, excluding the pad byte.
	Length uint32
}

// Idx1 is the legacy index.
type Idx1 struct {
	Entries []IndexEntry
}

// Size returns the marshaled size in bytes.
func (c *Idx1) Size() int {
	return 8 + len(c.Entries)*indexEntrySize
}

// Marshal chunk to writer.
func (c *Idx1) Marshal(w *bitio.Writer) error {
	writeChunkHeader(w, FourCCidx1, len(c.Entries)*indexEntrySize)
	for _, e := range c.Entries {
		w.TryWrite(e.ChunkID[:])
		w.TryWriteUint32(e.Flags)
		w.TryWriteUint32(e.Offset)
		w.TryWriteUint32(e.Length)
	}
	return w.TryError
}

// Unmarshal chunk body.
func (c *Idx1) Unmarshal(body []byte) error {
	if len(body)%indexEntrySize != 0 {
		return fmt.Errorf("%w: idx1: %d bytes", ErrInvalidChunk, len(body))
	}
	le := binary.LittleEndian
	c.Entries = make([]IndexEntry, len(body)/indexEntrySize)
	for i := range c.Entries {
		e := body[i*indexEntrySize:]
		copy(c.Entries[i].ChunkID[:], e[0:4])
		c.Entries[i].Flags = le.Uint32(e[4:8])
		c.Entries[i].Offset = le.Uint32(e[8:12])
		c.Entries[i].Length = le.Uint32(e[12:16])
	}
	return nil
}
