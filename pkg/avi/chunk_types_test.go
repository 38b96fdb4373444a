// SPDX-License-Identifier: GPL-2.0-or-later

package avi

import (
	"bytes"
	"testing"

	"avidump/pkg/avi/bitio"

	"github.com/stretchr/testify/require"
)

func TestChunkTypes(t *testing.T) {
	testCases := []struct {
		name string
		src  Chunk
		bin  []byte
	}{
		{
			name: "strf audio",
			src: &StrfAudio{
				FormatTag:      FormatTagPCM,
				Channels:       2,
				SamplesPerSec:  48000,
				AvgBytesPerSec: 192000,
				BlockAlign:     4,
				BitsPerSample:  16,
			},
			bin: []byte{
				's', 't', 'r', 'f',
				18, 0, 0, 0, // Size.
				1, 0, // Format tag.
				2, 0, // Channels.
				0x80, 0xbb, 0, 0, // Samples per second.
				0x00, 0xee, 0x02, 0, // Average bytes per second.
				4, 0, // Block align.
				16, 0, // Bits per sample.
				0, 0, // Extra size.
			},
		},
		{
			name: "strf video",
			src: &StrfVideo{
				Width:       256,
				Height:      224,
				Planes:      1,
				BitCount:    24,
				Compression: FourCC{'C', 'S', 'C', 'D'},
				SizeImage:   256 * 224 * 3,
			},
			bin: []byte{
				's', 't', 'r', 'f',
				40, 0, 0, 0, // Size.
				40, 0, 0, 0, // Header size.
				0, 1, 0, 0, // Width.
				224, 0, 0, 0, // Height.
				1, 0, // Planes.
				24, 0, // Bit count.
				'C', 'S', 'C', 'D', // Compression.
				0, 0xa0, 0x02, 0, // Image size.
				0, 0, 0, 0, // X pixels per meter.
				0, 0, 0, 0, // Y pixels per meter.
				0, 0, 0, 0, // Colors used.
				0, 0, 0, 0, // Colors important.
			},
		},
		{
			name: "idx1",
			src: &Idx1{
				Entries: []IndexEntry{
					{ChunkID: FourCCVideoChunk, Flags: FlagKeyframe, Offset: 4, Length: 0x1234},
					{ChunkID: FourCCAudioChunk, Flags: FlagKeyframe, Offset: 0x1240, Length: 3},
				},
			},
			bin: []byte{
				'i', 'd', 'x', '1',
				32, 0, 0, 0, // Size.
				'0', '0', 'd', 'b',
				0x10, 0, 0, 0, // Flags.
				4, 0, 0, 0, // Offset.
				0x34, 0x12, 0, 0, // Length.
				'0', '1', 'w', 'b',
				0x10, 0, 0, 0, // Flags.
				0x40, 0x12, 0, 0, // Offset.
				3, 0, 0, 0, // Length.
			},
		},
		{
			name: "empty list",
			src: &List{
				ID:   FourCCLIST,
				Type: FourCCstrl,
			},
			bin: []byte{
				'L', 'I', 'S', 'T',
				4, 0, 0, 0, // Size.
				's', 't', 'r', 'l',
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			w := bitio.NewWriter(buf)
			require.NoError(t, tc.src.Marshal(w))
			require.Equal(t, tc.bin, buf.Bytes())
			require.Equal(t, len(tc.bin), tc.src.Size())
		})
	}
}

func TestMoviMarshalsHeaderOnly(t *testing.T) {
	movi := &Movi{PayloadSize: 0x100}
	buf := &bytes.Buffer{}
	require.NoError(t, movi.Marshal(bitio.NewWriter(buf)))

	expected := []byte{
		'L', 'I', 'S', 'T',
		4, 1, 0, 0, // Size.
		'm', 'o', 'v', 'i',
	}
	require.Equal(t, expected, buf.Bytes())
	require.Equal(t, 12+0x100, movi.Size())
}

func TestChunkUnmarshal(t *testing.T) {
	t.Run("strh", func(t *testing.T) {
		src := Strh{
			FCCType:             FourCCvids,
			FCCHandler:          FourCC{'C', 'S', 'C', 'D'},
			Scale:               1,
			Rate:                60,
			Length:              1234,
			SuggestedBufferSize: 99,
			Quality:             0xFFFFFFFF,
			Frame:               Rect{Right: 256, Bottom: 224},
		}
		buf := &bytes.Buffer{}
		require.NoError(t, src.Marshal(bitio.NewWriter(buf)))

		var actual Strh
		require.NoError(t, actual.Unmarshal(buf.Bytes()[8:]))
		require.Equal(t, src, actual)
	})
	t.Run("avih", func(t *testing.T) {
		src := Avih{
			MicroSecPerFrame: 16666,
			Flags:            FlagHasIndex,
			TotalFrames:      3,
			Streams:          2,
			Width:            320,
			Height:           240,
		}
		buf := &bytes.Buffer{}
		require.NoError(t, src.Marshal(bitio.NewWriter(buf)))
		require.Equal(t, 64, buf.Len())

		var actual Avih
		require.NoError(t, actual.Unmarshal(buf.Bytes()[8:]))
		require.Equal(t, src, actual)
	})
	t.Run("short", func(t *testing.T) {
		var c Avih
		require.ErrorIs(t, c.Unmarshal(make([]byte, 10)), ErrInvalidChunk)

		var idx Idx1
		require.ErrorIs(t, idx.Unmarshal(make([]byte, 17)), ErrInvalidChunk)
	})
}
