// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"avidump/pkg/avi"
	"avidump/pkg/cscd"
	"avidump/pkg/storage"

	"github.com/stretchr/testify/require"
)

func writeSegment(t *testing.T, path string, frames int) {
	t.Helper()
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	f := avi.NewFile(file,
		avi.VideoFormat{Width: 4, Height: 4, BitCount: 24, Handler: cscd.Handler, RateNum: 10, RateDenom: 1},
		avi.AudioFormat{SampleRate: 1000, Channels: 2, BitsPerSample: 16},
	)
	require.NoError(t, f.StartData())

	e := cscd.NewEncoder()
	frame := make([]byte, 4*4*3)
	for i := 0; i < frames; i++ {
		frame[i%len(frame)]++
		payload, keyframe, err := e.Encode(frame, i%5 == 0, 6, 24)
		require.NoError(t, err)
		require.NoError(t, f.WriteVideo(payload, keyframe))
		require.NoError(t, f.WriteAudio(make([]byte, 100*4), 100))
	}
	require.NoError(t, f.Finish())
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, storage.SegmentName("capture", 0, 0))
	writeSegment(t, path, 12)

	s, err := check(path)
	require.NoError(t, err)
	expected := stats{
		width:     4,
		height:    4,
		frames:    12,
		keyframes: 3,
		samples:   1200,
		duration:  1200 * time.Millisecond,
	}
	require.Equal(t, expected, s)
	require.Equal(t, "4x4, 12 frames (3 keyframes), 1200 samples, 1.2s", s.String())

	t.Run("truncated", func(t *testing.T) {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		broken := filepath.Join(dir, "broken.avi")
		require.NoError(t, os.WriteFile(broken, data[:len(data)-1], 0o600))
		_, err = check(broken)
		require.ErrorIs(t, err, avi.ErrSizeMismatch)
	})
	t.Run("missing", func(t *testing.T) {
		_, err := check(filepath.Join(dir, "missing.avi"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	writeSegment(t, filepath.Join(dir, storage.SegmentName("capture", 0, 0)), 3)
	writeSegment(t, filepath.Join(dir, storage.SegmentName("capture", 0, 1)), 2)
	writeSegment(t, filepath.Join(dir, storage.SegmentName("other", 0, 0)), 2)

	out := &bytes.Buffer{}
	require.NoError(t, run([]string{"avicheck", dir, "capture"}, out))
	require.Contains(t, out.String(), "Found 2 segments.")
	require.Contains(t, out.String(), "[OK]")
	require.NotContains(t, out.String(), "[ERR]")

	t.Run("invalid", func(t *testing.T) {
		bad := filepath.Join(dir, storage.SegmentName("capture", 1, 0))
		require.NoError(t, os.WriteFile(bad, []byte("RIFF"), 0o600))
		out := &bytes.Buffer{}
		require.Error(t, run([]string{"avicheck", dir, "capture"}, out))
		require.Contains(t, out.String(), "[ERR] "+bad)
	})
	t.Run("usage", func(t *testing.T) {
		out := &bytes.Buffer{}
		require.NoError(t, run([]string{"avicheck"}, out))
		require.Equal(t, usage+"\n", out.String())
	})
}
