// SPDX-License-Identifier: GPL-2.0-or-later

package pixfmt

import (
	"encoding/binary"
	"fmt"
)

// Silence is the canonical zero-signal sample.
const Silence = uint16(32768)

// SampleFormat is a source PCM sample layout.
type SampleFormat uint8

// Sample formats.
const (
	U8 SampleFormat = iota + 1
	S8
	U16LE
	U16BE
	U16Native
	S16LE
	S16BE
	S16Native
)

var sampleFormatNames = map[SampleFormat]string{
	U8:        "u8",
	S8:        "s8",
	U16LE:     "u16le",
	U16BE:     "u16be",
	U16Native: "u16",
	S16LE:     "s16le",
	S16BE:     "s16be",
	S16Native: "s16",
}

// String implements fmt.Stringer.
func (f SampleFormat) String() string {
	if name, exist := sampleFormatNames[f]; exist {
		return name
	}
	return fmt.Sprintf("SampleFormat(%d)", uint8(f))
}

// ParseSampleFormat returns the format with the given name.
func ParseSampleFormat(name string) (SampleFormat, error) {
	for f, n := range sampleFormatNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: sample format %q", ErrUnsupportedFormat, name)
}

// Validate returns an error if the format is unknown.
func (f SampleFormat) Validate() error {
	if _, exist := sampleFormatNames[f]; !exist {
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, f)
	}
	return nil
}

// BytesPerSample returns the source sample size.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case U8, S8:
		return 1
	case U16LE, U16BE, U16Native, S16LE, S16BE, S16Native:
		return 2
	}
	return 0
}

// AppendSamples converts interleaved source samples
// and appends them to dst in canonical form.
func AppendSamples(dst []uint16, src []byte, f SampleFormat) ([]uint16, error) {
	size := f.BytesPerSample()
	if size == 0 {
		return dst, fmt.Errorf("%w: %v", ErrUnsupportedFormat, f)
	}
	if len(src)%size != 0 {
		return dst, fmt.Errorf("%w: %d bytes is not a whole number of %v samples",
			ErrShortFrame, len(src), f)
	}

	n := len(src) / size
	for i := 0; i < n; i++ {
		dst = append(dst, canonical(src[i*size:], f))
	}
	return dst, nil
}

func canonical(p []byte, f SampleFormat) uint16 {
	switch f {
	case U8:
		return uint16(p[0]) << 8
	case S8:
		return uint16(p[0]^0x80) << 8
	case U16LE:
		return binary.LittleEndian.Uint16(p)
	case U16BE:
		return binary.BigEndian.Uint16(p)
	case U16Native:
		return binary.NativeEndian.Uint16(p)
	case S16LE:
		return binary.LittleEndian.Uint16(p) ^ 0x8000
	case S16BE:
		return binary.BigEndian.Uint16(p) ^ 0x8000
	case S16Native:
		return binary.NativeEndian.Uint16(p) ^ 0x8000
	}
	return Silence
}

// AppendStereo interleaves planar signed channels and appends them
// to dst in canonical form. The shorter channel is padded with silence.
func AppendStereo(dst []uint16, left, right []int16) []uint16 {
	n := len(left)
	if len(right) > n {
		n = len(right)
	}
	for i := 0; i < n; i++ {
		l, r := Silence, Silence
		if i < len(left) {
			l = uint16(left[i]) ^ 0x8000
		}
		if i < len(right) {
			r = uint16(right[i]) ^ 0x8000
		}
		dst = append(dst, l, r)
	}
	return dst
}

// EncodePCM writes canonical samples as little-endian PCM with the
// given bit depth: unsigned for 8 bits, signed for 16 bits.
// It returns the number of bytes written.
func EncodePCM(dst []byte, samples []uint16, bits int) int {
	if bits == 8 {
		for i, s := range samples {
			dst[i] = byte(s >> 8)
		}
		return len(samples)
	}
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[2*i:], s^0x8000)
	}
	return 2 * len(samples)
}

// ToSigned32 returns the canonical sample as a signed 32-bit value.
func ToSigned32(s uint16) int32 {
	return int32(int16(s^0x8000)) << 16
}
