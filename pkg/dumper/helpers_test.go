// SPDX-License-Identifier: GPL-2.0-or-later

package dumper

import (
	"bytes"
	"sort"
	"strings"
	"sync"
	"testing"

	"avidump/pkg/avi"
	"avidump/pkg/avi/writerseeker"
	"avidump/pkg/cscd"
	"avidump/pkg/log"
	"avidump/pkg/pixfmt"
	"avidump/pkg/storage"

	"github.com/stretchr/testify/require"
)

type memFiles struct {
	mu    sync.Mutex
	limit int
	files map[string]*writerseeker.WriterSeeker
}

func newMemFiles() *memFiles {
	return &memFiles{files: map[string]*writerseeker.WriterSeeker{}}
}

func (m *memFiles) createSegment(major, minor int) (storage.File, error) {
	return m.create(storage.SegmentName("test", major, minor))
}

func (m *memFiles) createSidecar() (storage.File, error) {
	return m.create("test.raws")
}

func (m *memFiles) create(name string) (storage.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws := &writerseeker.WriterSeeker{Limit: m.limit}
	m.files[name] = ws
	return ws, nil
}

func (m *memFiles) segmentNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.files {
		if strings.HasSuffix(name, ".avi") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (m *memFiles) file(t *testing.T, name string) *writerseeker.WriterSeeker {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, exist := m.files[name]
	require.True(t, exist, "missing file %v", name)
	return ws
}

func (m *memFiles) segment(t *testing.T, major, minor int) segmentInfo {
	t.Helper()
	ws := m.file(t, storage.SegmentName("test", major, minor))
	require.True(t, ws.Closed())
	return readSegment(t, ws.Bytes())
}

type segmentInfo struct {
	s            avi.Structure
	frames       [][]byte
	keyframes    []bool
	levels       []int
	audio        []byte
	chunkSamples []int
}

func (s segmentInfo) samples() int {
	total := 0
	for _, n := range s.chunkSamples {
		total += n
	}
	return total
}

// readSegment parses a segment and decodes every chunk.
func readSegment(t *testing.T, data []byte) segmentInfo {
	t.Helper()
	r, err := avi.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	info := segmentInfo{s: r.Structure}
	strf := r.Structure.VideoStrf
	size := int(strf.Width) * int(strf.Height) * int(strf.BitCount) / 8
	blockAlign := int(r.Structure.AudioStrf.BlockAlign)

	var dec cscd.Decoder
	for _, e := range r.Index() {
		payload, err := r.ReadChunk(e)
		require.NoError(t, err)

		switch e.ChunkID {
		case avi.FourCCVideoChunk:
			frame, h, err := dec.Decode(payload, size)
			require.NoError(t, err)
			require.Equal(t, e.Flags&avi.FlagKeyframe != 0, h.Keyframe)
			info.frames = append(info.frames, append([]byte(nil), frame...))
			info.keyframes = append(info.keyframes, h.Keyframe)
			info.levels = append(info.levels, h.Level)
		case avi.FourCCAudioChunk:
			info.audio = append(info.audio, payload...)
			info.chunkSamples = append(info.chunkSamples, len(payload)/blockAlign)
		default:
			t.Fatalf("unexpected chunk %v", e.ChunkID)
		}
	}
	return info
}

func testParams() SegmentParameters {
	return SegmentParameters{
		FPSNum:           60,
		FPSDenom:         1,
		PixelFormat:      pixfmt.RGB32,
		Width:            8,
		Height:           4,
		Stride:           32,
		KeyframeInterval: 300,
		CompressionLevel: 7,
	}
}

func testConfig(files *memFiles) Config {
	return Config{
		Global: GlobalParameters{
			SampleRate:    32000,
			Channels:      2,
			BitsPerSample: 16,
		},
		Segment:       testParams(),
		SampleFormat:  pixfmt.S16LE,
		CreateSegment: files.createSegment,
		SizeLimit:     avi.MaxLegacySize,
		Logger:        log.NewLogger(),
	}
}

func newTestDumper(t *testing.T, c Config) *Dumper {
	t.Helper()
	d, err := New(c)
	require.NoError(t, err)
	return d
}

// testFrame returns a source frame for p with content depending on seed.
func testFrame(p SegmentParameters, seed int) []byte {
	frame := make([]byte, p.Height*p.Stride)
	for i := range frame {
		frame[i] = byte(i*7 + seed*13)
	}
	return frame
}

func normalized(t *testing.T, p SegmentParameters, src []byte) []byte {
	t.Helper()
	frame, err := pixfmt.Normalize(nil, src, p.frame())
	require.NoError(t, err)
	return frame
}

// testAudio returns n signed 16-bit little-endian samples.
func testAudio(n int) []byte {
	buf := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		buf[2*i] = byte(i)
		buf[2*i+1] = byte(i >> 8)
	}
	return buf
}
