// SPDX-License-Identifier: GPL-2.0-or-later

// Package cscd implements the lossless delta+deflate frame codec.
//
// Chunk payload:
//
//	control  uint8 { level:4, reserved:2, type:2 } type 3=keyframe 2=delta
//	mode     uint8 bits per pixel of the canonical frame
//	data     []byte zlib stream of the frame or of its byte-wise
//	         difference to the previous frame
//	padding  []byte zero bytes until len(payload) % 4 == 2
package cscd

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"

	"avidump/pkg/avi"

	"github.com/icza/bitio"
)

// Handler identifies the codec in the stream header.
var Handler = avi.FourCC{'C', 'S', 'C', 'D'}

// Frame types.
const (
	typeKeyframe = 3
	typeDelta    = 2
)

// MaxLevel is the highest compression level.
const MaxLevel = 9

// Codec errors.
var (
	ErrInvalidLevel   = errors.New("invalid compression level")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrNoKeyframe     = errors.New("delta frame without a previous keyframe")
)

// Header is the two byte codec header.
type Header struct {
	Keyframe bool
	Level    int
	BitCount int
}

// Marshal returns the header bytes.
func (h Header) Marshal() ([]byte, error) {
	buf := &bytes.Buffer{}
	w := bitio.NewWriter(buf)

	typ := uint64(typeDelta)
	if h.Keyframe {
		typ = typeKeyframe
	}
	w.TryWriteBits(uint64(h.Level), 4)
	w.TryWriteBits(0, 2)
	w.TryWriteBits(typ, 2)
	w.TryWriteByte(byte(h.BitCount))
	if w.TryError != nil {
		return nil, w.TryError
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal header from payload.
func (h *Header) Unmarshal(payload []byte) error {
	if len(payload) < 2 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidPayload, len(payload))
	}
	r := bitio.NewReader(bytes.NewReader(payload[:2]))
	level := r.TryReadBits(4)
	r.TryReadBits(2)
	typ := r.TryReadBits(2)
	bitCount := r.TryReadByte()
	if r.TryError != nil {
		return r.TryError
	}

	switch typ {
	case typeKeyframe:
		h.Keyframe = true
	case typeDelta:
		h.Keyframe = false
	default:
		return fmt.Errorf("%w: frame type %d", ErrInvalidPayload, typ)
	}
	h.Level = int(level)
	h.BitCount = int(bitCount)
	return nil
}

// Encoder compresses canonical frames.
// The previous frame is kept between calls.
type Encoder struct {
	prev  []byte
	delta []byte

	out   bytes.Buffer
	zw    *zlib.Writer
	level int
}

// NewEncoder creates a new Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode returns the chunk payload for frame. A delta frame is
// promoted to a keyframe if the frame size changed. The returned
// slice is valid until the next call.
func (e *Encoder) Encode(frame []byte, keyframe bool, level int, bitCount int) ([]byte, bool, error) {
	if level < 0 || level > MaxLevel {
		return nil, false, fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}
	if len(e.prev) != len(frame) {
		e.prev = make([]byte, len(frame))
		e.delta = make([]byte, len(frame))
		keyframe = true
	}

	if keyframe {
		copy(e.delta, frame)
	} else {
		for i, b := range frame {
			e.delta[i] = b - e.prev[i]
		}
	}
	copy(e.prev, frame)

	header, err := Header{Keyframe: keyframe, Level: level, BitCount: bitCount}.Marshal()
	if err != nil {
		return nil, false, err
	}

	e.out.Reset()
	e.out.Write(header)
	if err := e.compress(level); err != nil {
		return nil, false, err
	}
	for e.out.Len()%4 != 2 {
		e.out.WriteByte(0)
	}
	return e.out.Bytes(), keyframe, nil
}

func (e *Encoder) compress(level int) error {
	if e.zw == nil || e.level != level {
		zw, err := zlib.NewWriterLevel(&e.out, level)
		if err != nil {
			return err
		}
		e.zw = zw
		e.level = level
	} else {
		e.zw.Reset(&e.out)
	}
	if _, err := e.zw.Write(e.delta); err != nil {
		return fmt.Errorf("deflate: %w", err)
	}
	if err := e.zw.Close(); err != nil {
		return fmt.Errorf("deflate: %w", err)
	}
	return nil
}

// Decoder reverses Encoder.
type Decoder struct {
	prev []byte
}

// Decode returns the canonical frame of size bytes.
// The returned slice is valid until the next call.
func (d *Decoder) Decode(payload []byte, size int) ([]byte, Header, error) {
	var h Header
	if err := h.Unmarshal(payload); err != nil {
		return nil, h, err
	}

	zr, err := zlib.NewReader(bytes.NewReader(payload[2:]))
	if err != nil {
		return nil, h, fmt.Errorf("inflate: %w", err)
	}
	defer zr.Close()

	data := make([]byte, size)
	if _, err := io.ReadFull(zr, data); err != nil {
		return nil, h, fmt.Errorf("inflate: %w", err)
	}

	if h.Keyframe {
		d.prev = data
		return d.prev, h, nil
	}
	if len(d.prev) != size {
		return nil, h, ErrNoKeyframe
	}
	for i, b := range data {
		d.prev[i] += b
	}
	return d.prev, h, nil
}
