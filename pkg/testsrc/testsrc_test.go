// SPDX-License-Identifier: GPL-2.0-or-later

package testsrc

import (
	"testing"

	"avidump/pkg/pixfmt"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		PixelFormat:  pixfmt.RGB32,
		Width:        16,
		Height:       2,
		FPSNum:       60,
		FPSDenom:     1,
		SampleFormat: pixfmt.S16LE,
		SampleRate:   32000,
		Channels:     2,
	}
}

func TestNew(t *testing.T) {
	cases := map[string]func(*Config){
		"pixelFormat":  func(c *Config) { c.PixelFormat = 0 },
		"sampleFormat": func(c *Config) { c.SampleFormat = 0 },
		"width":        func(c *Config) { c.Width = 0 },
		"fps":          func(c *Config) { c.FPSDenom = 0 },
		"channels":     func(c *Config) { c.Channels = 0 },
	}
	for name, modify := range cases {
		t.Run(name, func(t *testing.T) {
			c := testConfig()
			modify(&c)
			_, err := New(c)
			require.Error(t, err)
		})
	}
}

func TestNextAudio(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)

	var sizes []int
	for i := 0; i < 4; i++ {
		_, audio := s.Next()
		sizes = append(sizes, len(audio))
	}
	// 534, 533, 533, 534 samples of 2 channels and 2 bytes.
	require.Equal(t, []int{2136, 2132, 2132, 2136}, sizes)
}

func TestNextVideo(t *testing.T) {
	// The bars are two pixels wide and move one pixel per frame.
	formats := []pixfmt.PixelFormat{
		pixfmt.RGB15LE, pixfmt.RGB15BE, pixfmt.BGR15LE, pixfmt.BGR15BE,
		pixfmt.RGB24, pixfmt.BGR24,
		pixfmt.RGB32, pixfmt.BGR32, pixfmt.ARGB32, pixfmt.ABGR32,
	}
	for _, format := range formats {
		t.Run(format.String(), func(t *testing.T) {
			c := testConfig()
			c.PixelFormat = format
			s, err := New(c)
			require.NoError(t, err)
			require.Equal(t, c.Width*format.BytesPerPixel(), s.Stride())

			s.Next()
			video, _ := s.Next()
			require.Len(t, video, s.Stride()*c.Height)

			canonical, err := pixfmt.Normalize(nil, video, pixfmt.Frame{
				Format: format,
				Width:  c.Width,
				Height: c.Height,
				Stride: s.Stride(),
			})
			require.NoError(t, err)

			// The top row is stored last.
			bpp := format.CanonicalBytesPerPixel()
			top := canonical[len(canonical)-c.Width*bpp:]
			white, yellow := []byte{0xff, 0xff, 0xff}, []byte{0x00, 0xff, 0xff}
			if format.Is15Bit() {
				white, yellow = []byte{0xff, 0x7f}, []byte{0xe0, 0x7f}
			}
			require.Equal(t, white, top[:bpp])
			require.Equal(t, yellow, top[bpp:2*bpp])
			require.Equal(t, yellow, top[2*bpp:3*bpp])
			require.Equal(t, white, top[(c.Width-1)*bpp:])
		})
	}
}

func TestTone(t *testing.T) {
	formats := []pixfmt.SampleFormat{
		pixfmt.U8, pixfmt.S8,
		pixfmt.U16LE, pixfmt.U16BE, pixfmt.U16Native,
		pixfmt.S16LE, pixfmt.S16BE, pixfmt.S16Native,
	}

	c := testConfig()
	c.SampleFormat = pixfmt.S16LE
	ref, err := New(c)
	require.NoError(t, err)
	_, refAudio := ref.Next()
	expected, err := pixfmt.AppendSamples(nil, refAudio, pixfmt.S16LE)
	require.NoError(t, err)

	for _, format := range formats {
		t.Run(format.String(), func(t *testing.T) {
			c := testConfig()
			c.SampleFormat = format
			s, err := New(c)
			require.NoError(t, err)

			_, audio := s.Next()
			actual, err := pixfmt.AppendSamples(nil, audio, format)
			require.NoError(t, err)
			require.Len(t, actual, len(expected))
			for i := range expected {
				if format.BytesPerSample() == 1 {
					require.Equal(t, expected[i]>>8, actual[i]>>8)
				} else {
					require.Equal(t, expected[i], actual[i])
				}
			}
		})
	}
}

func TestNextDoubleBuffer(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)

	first, _ := s.Next()
	saved := append([]byte(nil), first...)
	second, _ := s.Next()
	require.Equal(t, saved, first)
	require.NotSame(t, &first[0], &second[0])

	third, _ := s.Next()
	require.Same(t, &first[0], &third[0])
}
