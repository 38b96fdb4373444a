// SPDX-License-Identifier: GPL-2.0-or-later

// Package pixfmt converts source pixel and sample formats into
// the canonical layouts used by the codec and the audio stream.
package pixfmt

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat unknown pixel or sample format.
var ErrUnsupportedFormat = errors.New("unsupported format")

// PixelFormat is a source pixel layout.
type PixelFormat uint8

// Pixel formats. Names list the channels from the most significant
// bits for 15-bit formats and in memory order for the others.
const (
	RGB15LE PixelFormat = iota + 1 // 0RRRRRGG GGGBBBBB little-endian.
	RGB15BE                        // 0RRRRRGG GGGBBBBB big-endian.
	BGR15LE                        // 0BBBBBGG GGGRRRRR little-endian.
	BGR15BE                        // 0BBBBBGG GGGRRRRR big-endian.
	RGB24                          // R, G, B.
	BGR24                          // B, G, R.
	RGB32                          // R, G, B, pad.
	BGR32                          // B, G, R, pad.
	ARGB32                         // pad, R, G, B.
	ABGR32                         // pad, B, G, R.
)

var pixelFormatNames = map[PixelFormat]string{
	RGB15LE: "rgb15le",
	RGB15BE: "rgb15be",
	BGR15LE: "bgr15le",
	BGR15BE: "bgr15be",
	RGB24:   "rgb24",
	BGR24:   "bgr24",
	RGB32:   "rgb32",
	BGR32:   "bgr32",
	ARGB32:  "argb32",
	ABGR32:  "abgr32",
}

// String implements fmt.Stringer.
func (f PixelFormat) String() string {
	if name, exist := pixelFormatNames[f]; exist {
		return name
	}
	return fmt.Sprintf("PixelFormat(%d)", uint8(f))
}

// ParsePixelFormat returns the format with the given name.
func ParsePixelFormat(name string) (PixelFormat, error) {
	for f, n := range pixelFormatNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: pixel format %q", ErrUnsupportedFormat, name)
}

// Validate returns an error if the format is unknown.
func (f PixelFormat) Validate() error {
	if _, exist := pixelFormatNames[f]; !exist {
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, f)
	}
	return nil
}

// BytesPerPixel returns the source pixel size.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case RGB15LE, RGB15BE, BGR15LE, BGR15BE:
		return 2
	case RGB24, BGR24:
		return 3
	case RGB32, BGR32, ARGB32, ABGR32:
		return 4
	}
	return 0
}

// Is15Bit reports whether the format normalizes to 15-bit pixels.
func (f PixelFormat) Is15Bit() bool {
	return f.BytesPerPixel() == 2
}

// BitCount returns the canonical bits per pixel.
func (f PixelFormat) BitCount() int {
	if f.Is15Bit() {
		return 16
	}
	return 24
}

// CanonicalBytesPerPixel returns the canonical pixel size.
func (f PixelFormat) CanonicalBytesPerPixel() int {
	return f.BitCount() / 8
}

// PadTo4 rounds n up to the next multiple of 4.
func PadTo4(n int) int {
	return (n + 3) &^ 3
}

// Frame describes the source frame geometry.
type Frame struct {
	Format PixelFormat
	Width  int
	Height int
	Stride int // Bytes per source row.
}

// PaddedWidth returns the canonical frame width.
func (f Frame) PaddedWidth() int {
	return PadTo4(f.Width)
}

// PaddedHeight returns the canonical frame height.
func (f Frame) PaddedHeight() int {
	return PadTo4(f.Height)
}

// CanonicalSize returns the normalized frame size in bytes.
func (f Frame) CanonicalSize() int {
	return f.PaddedWidth() * f.PaddedHeight() * f.Format.CanonicalBytesPerPixel()
}

// SourceSize returns the minimum source buffer size.
func (f Frame) SourceSize() int {
	if f.Height == 0 {
		return 0
	}
	return (f.Height-1)*f.Stride + f.Width*f.Format.BytesPerPixel()
}

// Normalize converts src into the canonical bottom-up layout.
// 15-bit formats become little-endian X1R5G5B5, the others B, G, R.
// Padding pixels and padding lines are zero. dst is reused if it has
// the right size.
func Normalize(dst []byte, src []byte, f Frame) ([]byte, error) {
	if len(src) < f.SourceSize() {
		return nil, fmt.Errorf("%w: source frame is %d bytes, need %d",
			ErrShortFrame, len(src), f.SourceSize())
	}
	size := f.CanonicalSize()
	if len(dst) != size {
		dst = make([]byte, size)
	}

	convert := rowConverter(f.Format)
	if convert == nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, f.Format)
	}

	rowSize := f.PaddedWidth() * f.Format.CanonicalBytesPerPixel()
	paddedHeight := f.PaddedHeight()
	for r := 0; r < paddedHeight; r++ {
		row := dst[r*rowSize : (r+1)*rowSize]
		y := paddedHeight - 1 - r
		if y >= f.Height {
			zero(row)
			continue
		}
		used := convert(row, src[y*f.Stride:], f.Width)
		zero(row[used:])
	}
	return dst, nil
}

// ErrShortFrame source buffer smaller than the frame geometry.
var ErrShortFrame = errors.New("short frame")

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// rowConverter returns a function that converts width pixels
// and returns the number of bytes written.
func rowConverter(f PixelFormat) func(dst, src []byte, width int) int {
	switch f {
	case RGB15LE:
		return func(dst, src []byte, width int) int {
			return copy(dst, src[:2*width])
		}
	case RGB15BE:
		return func(dst, src []byte, width int) int {
			for x := 0; x < width; x++ {
				dst[2*x] = src[2*x+1]
				dst[2*x+1] = src[2*x]
			}
			return 2 * width
		}
	case BGR15LE:
		return func(dst, src []byte, width int) int {
			for x := 0; x < width; x++ {
				v := swap15(uint16(src[2*x]) | uint16(src[2*x+1])<<8)
				dst[2*x] = byte(v)
				dst[2*x+1] = byte(v >> 8)
			}
			return 2 * width
		}
	case BGR15BE:
		return func(dst, src []byte, width int) int {
			for x := 0; x < width; x++ {
				v := swap15(uint16(src[2*x])<<8 | uint16(src[2*x+1]))
				dst[2*x] = byte(v)
				dst[2*x+1] = byte(v >> 8)
			}
			return 2 * width
		}
	case RGB24:
		return bgrConverter(3, 2, 1, 0)
	case BGR24:
		return bgrConverter(3, 0, 1, 2)
	case RGB32:
		return bgrConverter(4, 2, 1, 0)
	case BGR32:
		return bgrConverter(4, 0, 1, 2)
	case ARGB32:
		return bgrConverter(4, 3, 2, 1)
	case ABGR32:
		return bgrConverter(4, 1, 2, 3)
	}
	return nil
}

// swap15 exchanges the low and high 5-bit color fields.
func swap15(v uint16) uint16 {
	lo := v & 0x1F
	hi := (v >> 10) & 0x1F
	return hi | v&0x3E0 | lo<<10
}

// bgrConverter returns a converter picking the blue, green
// and red bytes at the given offsets of each source pixel.
func bgrConverter(size, b, g, r int) func(dst, src []byte, width int) int {
	return func(dst, src []byte, width int) int {
		for x := 0; x < width; x++ {
			p := src[x*size:]
			dst[3*x] = p[b]
			dst[3*x+1] = p[g]
			dst[3*x+2] = p[r]
		}
		return 3 * width
	}
}
