// SPDX-License-Identifier: GPL-2.0-or-later

// Package testsrc generates synthetic emulator output. It stands in
// for a real emulator core when running the capture from the CLI.
package testsrc

import (
	"encoding/binary"
	"fmt"
	"math"

	"avidump/pkg/avsync"
	"avidump/pkg/pixfmt"
)

// Tone frequency in Hz.
const toneFrequency = 440

// Config source configuration.
type Config struct {
	PixelFormat pixfmt.PixelFormat
	Width       int
	Height      int
	FPSNum      uint32
	FPSDenom    uint32

	SampleFormat pixfmt.SampleFormat
	SampleRate   uint32
	Channels     int
}

// Source produces moving color bars and a sine tone.
// Each call to Next returns exactly one frame worth of audio.
type Source struct {
	c       Config
	stride  int
	counter *avsync.Counter

	frame int
	phase float64

	video [2][]byte
	audio []byte
}

// New returns a new source.
func New(c Config) (*Source, error) {
	if err := c.PixelFormat.Validate(); err != nil {
		return nil, err
	}
	if err := c.SampleFormat.Validate(); err != nil {
		return nil, err
	}
	if c.Width <= 0 || c.Height <= 0 {
		return nil, fmt.Errorf("invalid size: %dx%d", c.Width, c.Height)
	}
	if c.FPSNum == 0 || c.FPSDenom == 0 || c.SampleRate == 0 || c.Channels <= 0 {
		return nil, fmt.Errorf("invalid rates: %d/%d fps, %d Hz, %d channels",
			c.FPSNum, c.FPSDenom, c.SampleRate, c.Channels)
	}

	stride := c.Width * c.PixelFormat.BytesPerPixel()
	return &Source{
		c:       c,
		stride:  stride,
		counter: avsync.NewCounter(c.SampleRate, c.FPSNum, c.FPSDenom),
		video: [2][]byte{
			make([]byte, stride*c.Height),
			make([]byte, stride*c.Height),
		},
	}, nil
}

// Stride returns the bytes per row of the generated frames.
func (s *Source) Stride() int {
	return s.stride
}

// Next returns the next video frame and its audio. The audio
// is reused by the following call. Video frames alternate between
// two buffers so the previous frame stays valid while the caller
// submits the current one.
func (s *Source) Next() ([]byte, []byte) {
	video := s.video[s.frame%2]
	s.drawBars(video)
	s.generateTone(s.counter.Next())
	s.frame++
	return video, s.audio
}

var bars = [8][3]uint8{
	{0xff, 0xff, 0xff},
	{0xff, 0xff, 0x00},
	{0x00, 0xff, 0xff},
	{0x00, 0xff, 0x00},
	{0xff, 0x00, 0xff},
	{0xff, 0x00, 0x00},
	{0x00, 0x00, 0xff},
	{0x00, 0x00, 0x00},
}

func (s *Source) drawBars(video []byte) {
	bpp := s.c.PixelFormat.BytesPerPixel()
	for y := 0; y < s.c.Height; y++ {
		row := video[y*s.stride:]
		for x := 0; x < s.c.Width; x++ {
			bar := bars[((x+s.frame)*len(bars)/s.c.Width)%len(bars)]
			putPixel(row[x*bpp:], s.c.PixelFormat, bar[0], bar[1], bar[2])
		}
	}
}

func putPixel(dst []byte, f pixfmt.PixelFormat, r, g, b uint8) {
	switch f {
	case pixfmt.RGB15LE:
		binary.LittleEndian.PutUint16(dst, pack15(r, g, b))
	case pixfmt.RGB15BE:
		binary.BigEndian.PutUint16(dst, pack15(r, g, b))
	case pixfmt.BGR15LE:
		binary.LittleEndian.PutUint16(dst, pack15(b, g, r))
	case pixfmt.BGR15BE:
		binary.BigEndian.PutUint16(dst, pack15(b, g, r))
	case pixfmt.RGB24:
		dst[0], dst[1], dst[2] = r, g, b
	case pixfmt.BGR24:
		dst[0], dst[1], dst[2] = b, g, r
	case pixfmt.RGB32:
		dst[0], dst[1], dst[2], dst[3] = r, g, b, 0xff
	case pixfmt.BGR32:
		dst[0], dst[1], dst[2], dst[3] = b, g, r, 0xff
	case pixfmt.ARGB32:
		dst[0], dst[1], dst[2], dst[3] = 0xff, r, g, b
	case pixfmt.ABGR32:
		dst[0], dst[1], dst[2], dst[3] = 0xff, b, g, r
	}
}

func pack15(hi, mid, lo uint8) uint16 {
	return uint16(hi>>3)<<10 | uint16(mid>>3)<<5 | uint16(lo>>3)
}

func (s *Source) generateTone(n int) {
	s.audio = s.audio[:0]
	step := 2 * math.Pi * toneFrequency / float64(s.c.SampleRate)
	for i := 0; i < n; i++ {
		v := int16(math.Sin(s.phase) * math.MaxInt16 / 4)
		s.phase = math.Mod(s.phase+step, 2*math.Pi)
		for ch := 0; ch < s.c.Channels; ch++ {
			s.audio = appendSample(s.audio, s.c.SampleFormat, v)
		}
	}
}

func appendSample(dst []byte, f pixfmt.SampleFormat, v int16) []byte {
	u := uint16(v) ^ 0x8000
	switch f {
	case pixfmt.U8:
		return append(dst, byte(u>>8))
	case pixfmt.S8:
		return append(dst, byte(uint16(v)>>8))
	case pixfmt.U16LE:
		return binary.LittleEndian.AppendUint16(dst, u)
	case pixfmt.U16BE:
		return binary.BigEndian.AppendUint16(dst, u)
	case pixfmt.U16Native:
		return binary.NativeEndian.AppendUint16(dst, u)
	case pixfmt.S16LE:
		return binary.LittleEndian.AppendUint16(dst, uint16(v))
	case pixfmt.S16BE:
		return binary.BigEndian.AppendUint16(dst, uint16(v))
	case pixfmt.S16Native:
		return binary.NativeEndian.AppendUint16(dst, uint16(v))
	}
	return dst
}
