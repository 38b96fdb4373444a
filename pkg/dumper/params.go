// SPDX-License-Identifier: GPL-2.0-or-later

package dumper

import (
	"errors"
	"fmt"
	"math"

	"avidump/pkg/cscd"
	"avidump/pkg/pixfmt"
)

// ErrInvalidParameter is wrapped by every configuration error.
var ErrInvalidParameter = errors.New("invalid parameter")

// Parameter ceilings.
const (
	MaxSampleRate = 1 << 20
	MaxChannels   = 8
	// Padded dimensions must fit the signed 16-bit stream rectangle.
	MaxDimension = 32764
	// Samples per frame, all channels included.
	MaxSamplesPerFrame = 1 << 20
)

// GlobalParameters are fixed for the lifetime of a capture.
type GlobalParameters struct {
	SampleRate    uint32
	Channels      uint16
	BitsPerSample uint16 // Output bit depth, 8 or 16.
}

// Validate global parameters.
func (p GlobalParameters) Validate() error {
	if p.SampleRate == 0 || p.SampleRate > MaxSampleRate {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidParameter, p.SampleRate)
	}
	if p.Channels == 0 || p.Channels > MaxChannels {
		return fmt.Errorf("%w: channel count %d", ErrInvalidParameter, p.Channels)
	}
	if p.BitsPerSample != 8 && p.BitsPerSample != 16 {
		return fmt.Errorf("%w: bits per sample %d", ErrInvalidParameter, p.BitsPerSample)
	}
	return nil
}

// SegmentParameters can change during a capture.
type SegmentParameters struct {
	FPSNum   uint32
	FPSDenom uint32

	PixelFormat pixfmt.PixelFormat
	Width       int
	Height      int
	Stride      int // Bytes per source row.

	KeyframeInterval int // A keyframe is forced every N frames.
	CompressionLevel int // 0-9.
	MaxFrames        int // Frames per major segment, 0 means unlimited.
}

// Validate segment parameters.
func (p SegmentParameters) Validate() error {
	if p.FPSNum == 0 || p.FPSDenom == 0 {
		return fmt.Errorf("%w: frame rate %d/%d", ErrInvalidParameter, p.FPSNum, p.FPSDenom)
	}
	if err := p.PixelFormat.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	if p.Width <= 0 || p.Width > MaxDimension {
		return fmt.Errorf("%w: width %d", ErrInvalidParameter, p.Width)
	}
	if p.Height <= 0 || p.Height > MaxDimension {
		return fmt.Errorf("%w: height %d", ErrInvalidParameter, p.Height)
	}
	if minStride := p.Width * p.PixelFormat.BytesPerPixel(); p.Stride < minStride {
		return fmt.Errorf("%w: stride %d is smaller than %d", ErrInvalidParameter, p.Stride, minStride)
	}
	if p.KeyframeInterval < 1 {
		return fmt.Errorf("%w: keyframe interval %d", ErrInvalidParameter, p.KeyframeInterval)
	}
	if p.CompressionLevel < 0 || p.CompressionLevel > cscd.MaxLevel {
		return fmt.Errorf("%w: compression level %d", ErrInvalidParameter, p.CompressionLevel)
	}
	if p.MaxFrames < 0 {
		return fmt.Errorf("%w: max frames %d", ErrInvalidParameter, p.MaxFrames)
	}
	return nil
}

// CheckFrameRate returns an error if the frame rate of p is so low that
// one frame would carry more than MaxSamplesPerFrame samples, or its
// frame duration does not fit the 32-bit microsecond header field.
func (g GlobalParameters) CheckFrameRate(p SegmentParameters) error {
	num, denom := uint64(p.FPSNum), uint64(p.FPSDenom)
	if num == 0 || denom == 0 {
		return fmt.Errorf("%w: frame rate %d/%d", ErrInvalidParameter, num, denom)
	}
	perChannel := (uint64(g.SampleRate)*denom + num - 1) / num
	if perChannel*uint64(g.Channels) > MaxSamplesPerFrame {
		return fmt.Errorf("%w: frame rate %d/%d needs %d samples per frame at %d Hz",
			ErrInvalidParameter, num, denom, perChannel, g.SampleRate)
	}
	if 1000000*denom/num > math.MaxUint32 {
		return fmt.Errorf("%w: frame rate %d/%d is too low", ErrInvalidParameter, num, denom)
	}
	return nil
}

func (p SegmentParameters) frame() pixfmt.Frame {
	return pixfmt.Frame{
		Format: p.PixelFormat,
		Width:  p.Width,
		Height: p.Height,
		Stride: p.Stride,
	}
}

// CompatibleWith reports whether a segment written with p can
// continue with the other parameters. Frame rate, the 4 pixel
// block size and the 15-bit pixel class are part of the stream
// header. Everything else can change between two frames.
func (p SegmentParameters) CompatibleWith(other SegmentParameters) bool {
	return p.FPSNum == other.FPSNum &&
		p.FPSDenom == other.FPSDenom &&
		pixfmt.PadTo4(p.Width) == pixfmt.PadTo4(other.Width) &&
		pixfmt.PadTo4(p.Height) == pixfmt.PadTo4(other.Height) &&
		p.PixelFormat.Is15Bit() == other.PixelFormat.Is15Bit()
}
