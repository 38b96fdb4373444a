// SPDX-License-Identifier: GPL-2.0-or-later

package avi

import (
	"errors"
	"fmt"
	"io"

	"avidump/pkg/avi/bitio"
)

// MaxLegacySize is the hard size cutoff of a legacy AVI file.
// A segment must be closed before its structure reaches this size.
const MaxLegacySize = int64(0x7FFFFFFF)

// ErrNotWritable data written outside of StartData and Finish.
var ErrNotWritable = errors.New("file is not writable")

// ExceedsLimit reports whether a structure of the given size reaches
// limit. The legacy cutoff is MaxLegacySize.
func ExceedsLimit(size, limit int64) bool {
	return size >= limit
}

// VideoFormat describes the video stream of a segment.
type VideoFormat struct {
	Width     int // Multiple of 4.
	Height    int // Multiple of 4.
	BitCount  int
	Handler   FourCC
	RateNum   uint32
	RateDenom uint32
}

// AudioFormat describes the PCM stream of a segment.
type AudioFormat struct {
	SampleRate    uint32
	Channels      uint16
	BitsPerSample uint16
}

// BlockAlign returns the size of one sample for all channels.
func (a AudioFormat) BlockAlign() int {
	return int(a.Channels) * int(a.BitsPerSample) / 8
}

// Structure is the in-memory mirror of the file layout.
//
//	RIFF 'AVI '
//	- LIST 'hdrl'
//	  - avih
//	  - LIST 'strl' (video)
//	    - strh
//	    - strf
//	  - LIST 'strl' (audio)
//	    - strh
//	    - strf
//	- LIST 'movi'
//	- idx1
type Structure struct {
	Avih      Avih
	VideoStrh Strh
	VideoStrf StrfVideo
	AudioStrh Strh
	AudioStrf StrfAudio
	Movi      Movi
	Idx1      Idx1
}

// NewStructure returns a structure with the stream descriptors decided.
func NewStructure(v VideoFormat, a AudioFormat) *Structure {
	blockAlign := a.BlockAlign()
	return &Structure{
		Avih: Avih{
			MicroSecPerFrame: uint32(uint64(1000000) * uint64(v.RateDenom) / uint64(v.RateNum)),
			Flags:            FlagHasIndex | FlagIsInterleaved,
			Streams:          2,
			Width:            uint32(v.Width),
			Height:           uint32(v.Height),
		},
		VideoStrh: Strh{
			FCCType:    FourCCvids,
			FCCHandler: v.Handler,
			Scale:      v.RateDenom,
			Rate:       v.RateNum,
			Quality:    0xFFFFFFFF,
			Frame: Rect{
				Right:  int16(v.Width),
				Bottom: int16(v.Height),
			},
		},
		VideoStrf: StrfVideo{
			Width:       int32(v.Width),
			Height:      int32(v.Height),
			Planes:      1,
			BitCount:    uint16(v.BitCount),
			Compression: v.Handler,
			SizeImage:   uint32(v.Width * v.Height * v.BitCount / 8),
		},
		AudioStrh: Strh{
			FCCType:    FourCCauds,
			Scale:      1,
			Rate:       a.SampleRate,
			Quality:    0xFFFFFFFF,
			SampleSize: uint32(blockAlign),
		},
		AudioStrf: StrfAudio{
			FormatTag:      FormatTagPCM,
			Channels:       a.Channels,
			SamplesPerSec:  a.SampleRate,
			AvgBytesPerSec: a.SampleRate * uint32(blockAlign),
			BlockAlign:     uint16(blockAlign),
			BitsPerSample:  a.BitsPerSample,
		},
	}
}

func (s *Structure) hdrl() *List {
	return &List{
		ID:   FourCCLIST,
		Type: FourCChdrl,
		Children: []Chunk{
			&s.Avih,
			&List{
				ID:       FourCCLIST,
				Type:     FourCCstrl,
				Children: []Chunk{&s.VideoStrh, &s.VideoStrf},
			},
			&List{
				ID:       FourCCLIST,
				Type:     FourCCstrl,
				Children: []Chunk{&s.AudioStrh, &s.AudioStrf},
			},
		},
	}
}

// HeaderSize returns the size of everything before the first data chunk.
// It does not depend on the data, so it is known before any frame exists.
func (s *Structure) HeaderSize() int {
	return 12 + s.hdrl().Size() + 12
}

// Size returns the total file size.
func (s *Structure) Size() int {
	return 12 + s.hdrl().Size() + s.Movi.Size() + s.Idx1.Size()
}

// MarshalHeader writes the RIFF header, the header list
// and the data list header.
func (s *Structure) MarshalHeader(w *bitio.Writer) error {
	writeChunkHeader(w, FourCCRIFF, s.Size()-8)
	w.TryWrite(FourCCAVI[:])
	if w.TryError != nil {
		return w.TryError
	}
	if err := s.hdrl().Marshal(w); err != nil {
		return err
	}
	return s.Movi.Marshal(w)
}

func chunkSize(payload int) int {
	return 8 + payload + payload&1
}

// File writes one segment. Data chunks are appended after a
// zero-filled placeholder which is overwritten by Finish.
type File struct {
	out io.WriteSeeker
	s   *Structure

	frames       uint32
	samples      uint32
	maxVideoSize uint32
	maxAudioSize uint32

	started  bool
	finished bool
}

// NewFile creates a new File.
func NewFile(out io.WriteSeeker, v VideoFormat, a AudioFormat) *File {
	return &File{
		out: out,
		s:   NewStructure(v, a),
	}
}

// Frames returns the number of video chunks written.
func (f *File) Frames() int {
	return int(f.frames)
}

// Samples returns the number of audio samples written per channel.
func (f *File) Samples() int {
	return int(f.samples)
}

// Size returns the current structure size including the index.
func (f *File) Size() int64 {
	return int64(f.s.Size())
}

// ProjectedSize returns the structure size after a video chunk
// and an audio chunk with the given payload sizes are added.
func (f *File) ProjectedSize(videoPayload, audioPayload int) int64 {
	return f.Size() +
		int64(chunkSize(videoPayload)) +
		int64(chunkSize(audioPayload)) +
		2*indexEntrySize
}

// StartData writes the header placeholder.
func (f *File) StartData() error {
	if _, err := f.out.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	w := bitio.NewWriter(f.out)
	w.TryWriteZeros(f.s.HeaderSize())
	if w.TryError != nil {
		return fmt.Errorf("write header placeholder: %w", w.TryError)
	}
	f.started = true
	return nil
}

// WriteVideo appends a frame chunk and its index entry.
func (f *File) WriteVideo(payload []byte, keyframe bool) error {
	var flags uint32
	if keyframe {
		flags = FlagKeyframe
	}
	if err := f.writeChunk(FourCCVideoChunk, flags, payload); err != nil {
		return fmt.Errorf("write video chunk: %w", err)
	}
	f.frames++
	if uint32(len(payload)) > f.maxVideoSize {
		f.maxVideoSize = uint32(len(payload))
	}
	return nil
}

// WriteAudio appends a PCM chunk holding the given number of
// samples per channel and its index entry.
func (f *File) WriteAudio(payload []byte, samples int) error {
	if err := f.writeChunk(FourCCAudioChunk, FlagKeyframe, payload); err != nil {
		return fmt.Errorf("write audio chunk: %w", err)
	}
	f.samples += uint32(samples)
	if uint32(len(payload)) > f.maxAudioSize {
		f.maxAudioSize = uint32(len(payload))
	}
	return nil
}

func (f *File) writeChunk(id FourCC, flags uint32, payload []byte) error {
	if !f.started || f.finished {
		return ErrNotWritable
	}

	w := bitio.NewWriter(f.out)
	writeChunkHeader(w, id, len(payload))
	w.TryWrite(payload)
	if len(payload)&1 != 0 {
		w.TryWriteByte(0)
	}
	if w.TryError != nil {
		return w.TryError
	}

	f.s.Idx1.Entries = append(f.s.Idx1.Entries, IndexEntry{
		ChunkID: id,
		Flags:   flags,
		Offset:  uint32(4 + f.s.Movi.PayloadSize),
		Length:  uint32(len(payload)),
	})
	f.s.Movi.PayloadSize += chunkSize(len(payload))
	return nil
}

// Finish writes the index and overwrites the placeholder with
// the final header. Calling Finish again is a no-op.
func (f *File) Finish() error {
	if f.finished {
		return nil
	}
	if !f.started {
		return ErrNotWritable
	}
	f.finished = true

	w := bitio.NewWriter(f.out)
	if err := f.s.Idx1.Marshal(w); err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	f.updateHeader()

	return atOffset(f.out, 0, func() error {
		w := bitio.NewWriter(f.out)
		if err := f.s.MarshalHeader(w); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		if w.Written() != int64(f.s.HeaderSize()) {
			return fmt.Errorf("write header: %w", io.ErrShortWrite)
		}
		return nil
	})
}

func (f *File) updateHeader() {
	s := f.s
	s.Avih.TotalFrames = f.frames
	s.Avih.SuggestedBufferSize = f.maxVideoSize
	if f.maxAudioSize > f.maxVideoSize {
		s.Avih.SuggestedBufferSize = f.maxAudioSize
	}
	if f.frames != 0 {
		s.Avih.MaxBytesPerSec = uint32(uint64(s.Movi.PayloadSize) *
			uint64(s.VideoStrh.Rate) / (uint64(f.frames) * uint64(s.VideoStrh.Scale)))
	}
	s.VideoStrh.Length = f.frames
	s.VideoStrh.SuggestedBufferSize = f.maxVideoSize
	s.AudioStrh.Length = f.samples
	s.AudioStrh.SuggestedBufferSize = f.maxAudioSize
}

// atOffset runs fn with the file positioned at offset
// and restores the previous position afterwards.
func atOffset(out io.Seeker, offset int64, fn func() error) error {
	saved, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	if _, err := out.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	if err := fn(); err != nil {
		return err
	}
	if _, err := out.Seek(saved, io.SeekStart); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	return nil
}
