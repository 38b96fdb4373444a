// SPDX-License-Identifier: GPL-2.0-or-later

package avi

import (
	"testing"

	"avidump/pkg/avi/writerseeker"

	"github.com/stretchr/testify/require"
)

var (
	testVideo = VideoFormat{
		Width:     256,
		Height:    224,
		BitCount:  24,
		Handler:   FourCC{'C', 'S', 'C', 'D'},
		RateNum:   60,
		RateDenom: 1,
	}
	testAudio = AudioFormat{
		SampleRate:    32000,
		Channels:      2,
		BitsPerSample: 16,
	}
)

func TestStructureSize(t *testing.T) {
	s := NewStructure(testVideo, testAudio)

	// RIFF(12) + hdrl(12 + avih 64 + video strl 124 + audio strl 102) + movi(12).
	require.Equal(t, 326, s.HeaderSize())
	require.Equal(t, 326+8, s.Size())

	s.Movi.PayloadSize = 100
	s.Idx1.Entries = make([]IndexEntry, 3)
	require.Equal(t, 326, s.HeaderSize())
	require.Equal(t, 326+100+8+48, s.Size())

	require.Equal(t, uint32(16666), s.Avih.MicroSecPerFrame)
	require.Equal(t, uint32(128000), s.AudioStrf.AvgBytesPerSec)
	require.Equal(t, uint16(4), s.AudioStrf.BlockAlign)
}

func TestFile(t *testing.T) {
	ws := &writerseeker.WriterSeeker{}
	f := NewFile(ws, testVideo, testAudio)

	require.NoError(t, f.StartData())
	require.Equal(t, make([]byte, 326), ws.Bytes())

	video := []byte{0x13, 0x18, 1, 2, 3, 4}
	audio := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	oddAudio := []byte{7, 8, 9}

	require.NoError(t, f.WriteVideo(video, true))
	require.NoError(t, f.WriteAudio(audio, 3))
	require.NoError(t, f.WriteVideo(video, false))
	require.NoError(t, f.WriteAudio(oddAudio, 0))
	require.Equal(t, 2, f.Frames())
	require.Equal(t, 3, f.Samples())

	require.NoError(t, f.Finish())

	// movi: 14 + 20 + 14 + 12. idx1: 8 + 4*16.
	expectedSize := 326 + 60 + 8 + 64
	require.Equal(t, expectedSize, ws.Len())
	require.Equal(t, int64(expectedSize), f.Size())

	r, err := NewReader(ws.BytesReader(), int64(ws.Len()))
	require.NoError(t, err)

	expectedIndex := []IndexEntry{
		{ChunkID: FourCCVideoChunk, Flags: FlagKeyframe, Offset: 4, Length: 6},
		{ChunkID: FourCCAudioChunk, Flags: FlagKeyframe, Offset: 18, Length: 12},
		{ChunkID: FourCCVideoChunk, Flags: 0, Offset: 38, Length: 6},
		{ChunkID: FourCCAudioChunk, Flags: FlagKeyframe, Offset: 52, Length: 3},
	}
	require.Equal(t, expectedIndex, r.Index())

	payloads := [][]byte{video, audio, video, oddAudio}
	for i, e := range r.Index() {
		payload, err := r.ReadChunk(e)
		require.NoError(t, err)
		require.Equal(t, payloads[i], payload)
	}

	s := r.Structure
	require.Equal(t, uint32(2), s.Avih.TotalFrames)
	require.Equal(t, uint32(2), s.Avih.Streams)
	require.Equal(t, FlagHasIndex|FlagIsInterleaved, s.Avih.Flags)
	require.Equal(t, uint32(12), s.Avih.SuggestedBufferSize)
	require.Equal(t, uint32(2), s.VideoStrh.Length)
	require.Equal(t, uint32(60), s.VideoStrh.Rate)
	require.Equal(t, uint32(1), s.VideoStrh.Scale)
	require.Equal(t, FourCC{'C', 'S', 'C', 'D'}, s.VideoStrh.FCCHandler)
	require.Equal(t, int32(256), s.VideoStrf.Width)
	require.Equal(t, uint16(24), s.VideoStrf.BitCount)
	require.Equal(t, uint32(3), s.AudioStrh.Length)
	require.Equal(t, uint32(32000), s.AudioStrf.SamplesPerSec)
	require.Equal(t, uint16(2), s.AudioStrf.Channels)
	require.Equal(t, 60, s.Movi.PayloadSize)
}

func TestFileFinishTwice(t *testing.T) {
	ws := &writerseeker.WriterSeeker{}
	f := NewFile(ws, testVideo, testAudio)
	require.NoError(t, f.StartData())
	require.NoError(t, f.WriteVideo([]byte{0x13, 0x18}, true))
	require.NoError(t, f.Finish())
	first := ws.Bytes()

	require.NoError(t, f.Finish())
	require.Equal(t, first, ws.Bytes())

	require.ErrorIs(t, f.WriteVideo([]byte{0x12, 0x18}, false), ErrNotWritable)
}

func TestFileWriteErrors(t *testing.T) {
	t.Run("placeholder", func(t *testing.T) {
		ws := &writerseeker.WriterSeeker{Limit: 100}
		f := NewFile(ws, testVideo, testAudio)
		require.ErrorIs(t, f.StartData(), writerseeker.ErrNoSpace)
	})
	t.Run("chunk", func(t *testing.T) {
		ws := &writerseeker.WriterSeeker{Limit: 330}
		f := NewFile(ws, testVideo, testAudio)
		require.NoError(t, f.StartData())
		require.ErrorIs(t, f.WriteVideo([]byte{1, 2}, true), writerseeker.ErrNoSpace)
	})
	t.Run("notStarted", func(t *testing.T) {
		f := NewFile(&writerseeker.WriterSeeker{}, testVideo, testAudio)
		require.ErrorIs(t, f.WriteAudio([]byte{1, 2}, 1), ErrNotWritable)
		require.ErrorIs(t, f.Finish(), ErrNotWritable)
	})
}

func TestProjectedSize(t *testing.T) {
	f := NewFile(&writerseeker.WriterSeeker{}, testVideo, testAudio)
	require.NoError(t, f.StartData())

	// 8+10 + 8+5+1 + 2*16.
	require.Equal(t, f.Size()+64, f.ProjectedSize(10, 5))
}

func TestExceedsLimit(t *testing.T) {
	require.False(t, ExceedsLimit(0, MaxLegacySize))
	require.False(t, ExceedsLimit(MaxLegacySize-1, MaxLegacySize))
	require.True(t, ExceedsLimit(MaxLegacySize, MaxLegacySize))
	require.True(t, ExceedsLimit(MaxLegacySize+1, MaxLegacySize))
	require.True(t, ExceedsLimit(400, 400))
}

func TestReaderErrors(t *testing.T) {
	t.Run("notAVI", func(t *testing.T) {
		ws := &writerseeker.WriterSeeker{}
		_, err := ws.Write([]byte("RIFF\x04\x00\x00\x00WAVE"))
		require.NoError(t, err)
		_, err = NewReader(ws.BytesReader(), int64(ws.Len()))
		require.ErrorIs(t, err, ErrNotAVI)
	})
	t.Run("sizeMismatch", func(t *testing.T) {
		ws := &writerseeker.WriterSeeker{}
		f := NewFile(ws, testVideo, testAudio)
		require.NoError(t, f.StartData())
		require.NoError(t, f.Finish())
		_, err := NewReader(ws.BytesReader(), int64(ws.Len()+2))
		require.ErrorIs(t, err, ErrSizeMismatch)
	})
	t.Run("indexMismatch", func(t *testing.T) {
		ws := &writerseeker.WriterSeeker{}
		f := NewFile(ws, testVideo, testAudio)
		require.NoError(t, f.StartData())
		require.NoError(t, f.WriteVideo([]byte{1, 2}, true))
		require.NoError(t, f.Finish())

		r, err := NewReader(ws.BytesReader(), int64(ws.Len()))
		require.NoError(t, err)
		e := r.Index()[0]
		e.Length = 4
		_, err = r.ReadChunk(e)
		require.ErrorIs(t, err, ErrIndexMismatch)
	})
}
