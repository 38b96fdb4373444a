// SPDX-License-Identifier: GPL-2.0-or-later

package dumper

import (
	"fmt"

	"avidump/pkg/avi"
	"avidump/pkg/avsync"
	"avidump/pkg/cscd"
	"avidump/pkg/log"
	"avidump/pkg/pixfmt"
	"avidump/pkg/sidecar"
	"avidump/pkg/storage"
)

// Frames waiting for audio beyond this are muxed with silence.
const maxQueuedFrames = 120

// Segment close reasons.
const (
	reasonFrameLimit = "frame limit"
	reasonParameters = "parameters changed"
	reasonSizeLimit  = "size limit"
	reasonEnd        = "end"
)

type bufferedFrame struct {
	data       []byte // Normalized.
	params     SegmentParameters
	forceBreak bool
}

type segment struct {
	major int
	minor int
	out   storage.File
	file  *avi.File
}

type normalizeFunc func(dst []byte, src []byte, f pixfmt.Frame) ([]byte, error)

type worker struct {
	global        GlobalParameters
	createSegment CreateSegmentFunc
	createSidecar CreateSidecarFunc
	sizeLimit     int64
	logger        *log.Logger
	normalize     normalizeFunc

	audio   *sampleBuffer
	counter *avsync.Counter
	encoder *cscd.Encoder

	queue  []*bufferedFrame
	free   [][]byte
	last   []byte // Previous normalized frame.
	params SegmentParameters

	seg           *segment
	major         int
	minor         int
	majorFrames   int
	sinceKeyframe int

	sidecar  *sidecar.Writer
	samples  []uint16
	pcm      []byte
	underrun bool
}

func newWorker(c Config, audio *sampleBuffer) *worker {
	return &worker{
		global:        c.Global,
		createSegment: c.CreateSegment,
		createSidecar: c.CreateSidecar,
		sizeLimit:     c.SizeLimit,
		logger:        c.Logger,
		normalize:     pixfmt.Normalize,

		audio:   audio,
		counter: avsync.NewCounter(c.Global.SampleRate, c.Segment.FPSNum, c.Segment.FPSDenom),
		encoder: cscd.NewEncoder(),
		params:  c.Segment,
	}
}

// addFrame normalizes the frame and queues it. The source
// buffer is not referenced after this returns.
func (w *worker) addFrame(f rawFrame) error {
	frame := f.params.frame()
	buf := w.buffer(frame.CanonicalSize())

	if f.data == nil {
		if len(w.last) == len(buf) {
			copy(buf, w.last)
		} else {
			clear(buf)
		}
	} else {
		var err error
		buf, err = w.normalize(buf, f.data, frame)
		if err != nil {
			return fmt.Errorf("normalize frame: %w", err)
		}
	}
	w.last = append(w.last[:0], buf...)

	w.queue = append(w.queue, &bufferedFrame{
		data:       buf,
		params:     f.params,
		forceBreak: f.forceBreak,
	})
	return nil
}

func (w *worker) buffer(size int) []byte {
	for len(w.free) > 0 {
		buf := w.free[len(w.free)-1]
		w.free = w.free[:len(w.free)-1]
		if len(buf) == size {
			return buf
		}
	}
	return make([]byte, size)
}

// flush muxes queued frames while there is enough audio for them.
// A forced flush muxes every queued frame.
func (w *worker) flush(force bool) error {
	for len(w.queue) > 0 {
		f := w.queue[0]
		w.counter.SetFrameRate(f.params.FPSNum, f.params.FPSDenom)
		n := w.counter.Peek() * int(w.global.Channels)

		if !force && len(w.queue) <= maxQueuedFrames && w.audio.len() < n {
			return nil
		}
		if err := w.mux(f, n); err != nil {
			return err
		}
		w.counter.Next()

		w.queue[0] = nil
		w.queue = w.queue[1:]
		w.free = append(w.free, f.data)
	}
	return nil
}

func (w *worker) mux(f *bufferedFrame, nSamples int) error {
	w.params = f.params

	var reason string
	switch {
	case w.seg == nil:
	case f.params.MaxFrames > 0 && w.majorFrames >= f.params.MaxFrames:
		reason = reasonFrameLimit
	case f.forceBreak:
		reason = reasonParameters
	}
	if w.seg == nil || reason != "" {
		if err := w.nextSegment(f.params, reason); err != nil {
			return err
		}
	}

	samples := w.drainAudio(nSamples)
	pcm := w.encodePCM(samples)

	keyframe := w.seg.file.Frames() == 0 || w.sinceKeyframe >= f.params.KeyframeInterval
	payload, keyframe, err := w.encode(f, keyframe)
	if err != nil {
		return err
	}

	projected := w.seg.file.ProjectedSize(len(payload), len(pcm))
	if w.seg.file.Frames() != 0 && avi.ExceedsLimit(projected, w.sizeLimit) {
		if err := w.nextSegment(f.params, reasonSizeLimit); err != nil {
			return err
		}
		if payload, keyframe, err = w.encode(f, true); err != nil {
			return err
		}
	}

	if err := w.seg.file.WriteVideo(payload, keyframe); err != nil {
		return err
	}
	if err := w.writeAudio(samples, pcm); err != nil {
		return err
	}

	w.majorFrames++
	if keyframe {
		w.sinceKeyframe = 1
	} else {
		w.sinceKeyframe++
	}
	return nil
}

func (w *worker) encode(f *bufferedFrame, keyframe bool) ([]byte, bool, error) {
	payload, keyframe, err := w.encoder.Encode(
		f.data, keyframe, f.params.CompressionLevel, f.params.PixelFormat.BitCount())
	if err != nil {
		return nil, false, fmt.Errorf("encode frame: %w", err)
	}
	return payload, keyframe, nil
}

// drainAudio takes n samples from the shared buffer.
// The result is valid until the next call.
func (w *worker) drainAudio(n int) []uint16 {
	if cap(w.samples) < n {
		w.samples = make([]uint16, n)
	}
	samples := w.samples[:n]

	missing := w.audio.drain(samples)
	if missing != 0 && !w.underrun {
		w.logger.Warn().Src("dumper").Segment(w.major, w.minor).
			Msgf("audio underrun, %d samples filled with silence", missing)
	}
	w.underrun = missing != 0
	return samples
}

func (w *worker) encodePCM(samples []uint16) []byte {
	size := len(samples) * int(w.global.BitsPerSample) / 8
	if cap(w.pcm) < size {
		w.pcm = make([]byte, size)
	}
	pcm := w.pcm[:size]
	pixfmt.EncodePCM(pcm, samples, int(w.global.BitsPerSample))
	return pcm
}

func (w *worker) writeAudio(samples []uint16, pcm []byte) error {
	if err := w.seg.file.WriteAudio(pcm, len(samples)/int(w.global.Channels)); err != nil {
		return err
	}
	if w.sidecar != nil {
		if err := w.sidecar.Write(samples); err != nil {
			return fmt.Errorf("sidecar: %w", err)
		}
	}
	return nil
}

// nextSegment closes the open segment, if any, and opens the next one.
func (w *worker) nextSegment(params SegmentParameters, reason string) error {
	if w.seg != nil {
		if err := w.closeSegment(reason); err != nil {
			return err
		}
		if reason == reasonFrameLimit {
			w.major++
			w.minor = 0
			w.majorFrames = 0
		} else {
			w.minor++
		}
	}
	return w.openSegment(params)
}

func (w *worker) openSegment(params SegmentParameters) error {
	out, err := w.createSegment(w.major, w.minor)
	if err != nil {
		return fmt.Errorf("create segment %04d_%04d: %w", w.major, w.minor, err)
	}

	video := avi.VideoFormat{
		Width:     pixfmt.PadTo4(params.Width),
		Height:    pixfmt.PadTo4(params.Height),
		BitCount:  params.PixelFormat.BitCount(),
		Handler:   cscd.Handler,
		RateNum:   params.FPSNum,
		RateDenom: params.FPSDenom,
	}
	audio := avi.AudioFormat{
		SampleRate:    w.global.SampleRate,
		Channels:      w.global.Channels,
		BitsPerSample: w.global.BitsPerSample,
	}
	file := avi.NewFile(out, video, audio)
	if err := file.StartData(); err != nil {
		out.Close()
		return fmt.Errorf("segment %04d_%04d: %w", w.major, w.minor, err)
	}
	w.seg = &segment{
		major: w.major,
		minor: w.minor,
		out:   out,
		file:  file,
	}

	if w.createSidecar != nil && w.sidecar == nil {
		out, err := w.createSidecar()
		if err != nil {
			return fmt.Errorf("create sidecar: %w", err)
		}
		if w.sidecar, err = sidecar.NewWriter(out, w.global.SampleRate, w.global.Channels); err != nil {
			out.Close()
			return fmt.Errorf("sidecar: %w", err)
		}
	}

	w.logger.Info().Src("dumper").Segment(w.major, w.minor).
		Msgf("segment opened: %dx%d %d bit, %d/%d fps",
			video.Width, video.Height, video.BitCount, video.RateNum, video.RateDenom)
	return nil
}

func (w *worker) closeSegment(reason string) error {
	seg := w.seg
	w.seg = nil

	if err := seg.file.Finish(); err != nil {
		seg.out.Close()
		return fmt.Errorf("finish segment %04d_%04d: %w", seg.major, seg.minor, err)
	}
	if err := seg.out.Close(); err != nil {
		return fmt.Errorf("close segment %04d_%04d: %w", seg.major, seg.minor, err)
	}

	w.logger.Info().Src("dumper").Segment(seg.major, seg.minor).
		Msgf("segment closed: %d frames, %d samples, %s",
			seg.file.Frames(), seg.file.Samples(), reason)
	return nil
}

// finish muxes every queued frame, writes the remaining audio
// and closes all files.
func (w *worker) finish() error {
	if err := w.flush(true); err != nil {
		return err
	}

	channels := int(w.global.Channels)
	if remaining := w.audio.len() / channels * channels; remaining != 0 {
		if w.seg == nil {
			if err := w.openSegment(w.params); err != nil {
				return err
			}
		}
		samples := w.drainAudio(remaining)
		if err := w.writeAudio(samples, w.encodePCM(samples)); err != nil {
			return err
		}
	}

	if w.seg != nil {
		if err := w.closeSegment(reasonEnd); err != nil {
			return err
		}
	}
	if w.sidecar != nil {
		if err := w.sidecar.Close(); err != nil {
			return fmt.Errorf("close sidecar: %w", err)
		}
		w.sidecar = nil
	}
	return nil
}

// abort closes the open files without finalizing them.
func (w *worker) abort() {
	if w.seg != nil {
		w.seg.out.Close()
		w.seg = nil
	}
	if w.sidecar != nil {
		w.sidecar.Close()
		w.sidecar = nil
	}
	w.queue = nil
}
