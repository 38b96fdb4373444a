// SPDX-License-Identifier: GPL-2.0-or-later

// Package dumper records emulator video and audio into segmented AVI files.
//
// The caller pushes frames and samples. A single worker goroutine owns
// every file and all codec work. Errors in the worker are stored and
// returned by the next call on the caller side.
package dumper

import (
	"errors"
	"fmt"
	"sync"

	"avidump/pkg/avi"
	"avidump/pkg/log"
	"avidump/pkg/pixfmt"
	"avidump/pkg/storage"
)

// Pipeline errors.
var (
	ErrWorkerFailed = errors.New("dumper worker failed")
	ErrEnded        = errors.New("dumper ended")

	errWorkerPanic = errors.New("worker panic")
)

// CreateSegmentFunc creates the file of a segment.
type CreateSegmentFunc func(major, minor int) (storage.File, error)

// CreateSidecarFunc creates the raw audio sidecar file.
type CreateSidecarFunc func() (storage.File, error)

// Config dumper configuration.
type Config struct {
	Global  GlobalParameters
	Segment SegmentParameters

	// Source format of the samples passed to Audio.
	SampleFormat pixfmt.SampleFormat

	CreateSegment CreateSegmentFunc
	CreateSidecar CreateSidecarFunc // Optional.

	// Segments are closed before reaching this size.
	// Defaults to the legacy AVI limit.
	SizeLimit int64

	Logger *log.Logger
}

type rawFrame struct {
	data       []byte // Nil repeats the previous frame.
	params     SegmentParameters
	forceBreak bool
}

// Dumper is the capture pipeline.
type Dumper struct {
	global       GlobalParameters
	sampleFormat pixfmt.SampleFormat
	logger       *log.Logger

	mu      sync.Mutex
	active  SegmentParameters
	pending *SegmentParameters
	ended   bool

	err         error
	errReported bool

	audio *sampleBuffer

	frames   chan rawFrame
	inflight chan struct{}
	flush    chan struct{}
	quit     chan struct{}
	done     chan struct{}

	endOnce sync.Once
}

// New validates the configuration and starts the worker.
func New(c Config) (*Dumper, error) {
	if err := c.Global.Validate(); err != nil {
		return nil, err
	}
	if err := c.Segment.Validate(); err != nil {
		return nil, err
	}
	if err := c.Global.CheckFrameRate(c.Segment); err != nil {
		return nil, err
	}
	if err := c.SampleFormat.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	if c.CreateSegment == nil {
		return nil, fmt.Errorf("%w: no segment create function", ErrInvalidParameter)
	}
	if c.SizeLimit <= 0 {
		c.SizeLimit = avi.MaxLegacySize
	}
	if c.Logger == nil {
		c.Logger = log.NewLogger()
	}

	d, w := newDumper(c)
	go d.run(w)
	return d, nil
}

func newDumper(c Config) (*Dumper, *worker) {
	d := &Dumper{
		global:       c.Global,
		sampleFormat: c.SampleFormat,
		logger:       c.Logger,
		active:       c.Segment,
		audio:        &sampleBuffer{},

		frames:   make(chan rawFrame, 1),
		inflight: make(chan struct{}, 1),
		flush:    make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	return d, newWorker(c, d.audio)
}

// Video submits one frame. It blocks until the previous frame has
// been taken over by the worker. The frame must not be modified
// until the next call to Video or End has returned.
// A nil frame repeats the previous frame.
func (d *Dumper) Video(frame []byte) error {
	if err := d.takeErr(); err != nil {
		return err
	}

	d.mu.Lock()
	if d.ended {
		d.mu.Unlock()
		return ErrEnded
	}
	params := d.active
	if d.pending != nil {
		params = *d.pending
	}
	if frame != nil {
		if size := params.frame().SourceSize(); len(frame) < size {
			d.mu.Unlock()
			return fmt.Errorf("%w: frame is %d bytes, need %d",
				ErrInvalidParameter, len(frame), size)
		}
	}
	forceBreak := d.pending != nil
	d.active = params
	d.pending = nil
	d.mu.Unlock()

	select {
	case d.inflight <- struct{}{}:
	case <-d.done:
		return d.stoppedErr()
	}
	select {
	case <-d.done:
		<-d.inflight
		return d.stoppedErr()
	default:
	}

	d.frames <- rawFrame{
		data:       frame,
		params:     params,
		forceBreak: forceBreak,
	}
	return nil
}

// Audio copies interleaved samples in the configured source format.
func (d *Dumper) Audio(samples []byte) error {
	if err := d.takeErr(); err != nil {
		return err
	}
	if d.isEnded() {
		return ErrEnded
	}
	if err := d.audio.appendSamples(samples, d.sampleFormat); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	d.requestFlush()
	return nil
}

// AudioStereo copies two planar signed 16-bit channels.
func (d *Dumper) AudioStereo(left, right []int16) error {
	if err := d.takeErr(); err != nil {
		return err
	}
	if d.global.Channels != 2 {
		return fmt.Errorf("%w: stereo audio with %d channels", ErrInvalidParameter, d.global.Channels)
	}
	if d.isEnded() {
		return ErrEnded
	}
	d.audio.appendStereo(left, right)
	d.requestFlush()
	return nil
}

func (d *Dumper) requestFlush() {
	select {
	case d.flush <- struct{}{}:
	default:
	}
}

// SetSegmentParameters changes the segment parameters. Compatible
// changes apply to the next frame. Other changes are staged and
// start a new segment at the next frame.
func (d *Dumper) SetSegmentParameters(p SegmentParameters) error {
	if err := d.takeErr(); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if err := d.global.CheckFrameRate(p); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ended {
		return ErrEnded
	}
	if d.active.CompatibleWith(p) {
		d.active = p
		d.pending = nil
		return nil
	}
	d.pending = &p
	d.logger.Debug().Src("dumper").
		Msgf("pending parameters: %dx%d %v %d/%d fps",
			p.Width, p.Height, p.PixelFormat, p.FPSNum, p.FPSDenom)
	return nil
}

// End drains the queued frames, finalizes the open segment and stops
// the worker. Calling End again is a no-op.
func (d *Dumper) End() error {
	first := false
	d.endOnce.Do(func() {
		first = true
		d.mu.Lock()
		d.ended = true
		d.mu.Unlock()

		close(d.quit)
		<-d.done
	})
	if !first {
		return nil
	}
	return d.takeErr()
}

func (d *Dumper) stoppedErr() error {
	if err := d.takeErr(); err != nil {
		return err
	}
	return ErrEnded
}

func (d *Dumper) isEnded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ended
}

// takeErr returns the worker error once, ErrWorkerFailed after that.
func (d *Dumper) takeErr() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err == nil {
		return nil
	}
	if d.errReported {
		return ErrWorkerFailed
	}
	d.errReported = true
	return d.err
}

func (d *Dumper) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err == nil {
		d.err = fmt.Errorf("%w: %w", ErrWorkerFailed, err)
	}
}

func (d *Dumper) run(w *worker) {
	defer close(d.done)
	defer func() {
		if r := recover(); r != nil {
			d.fail(w, fmt.Errorf("%w: %v", errWorkerPanic, r))
		}
	}()

	for {
		var err error
		select {
		case f := <-d.frames:
			err = w.addFrame(f)
			<-d.inflight
			if err == nil {
				err = w.flush(false)
			}
		case <-d.flush:
			err = w.flush(false)
		case <-d.quit:
			err = d.drainFrame(w)
			if err == nil {
				err = w.finish()
			}
			if err != nil {
				d.fail(w, err)
			}
			return
		}
		if err != nil {
			d.fail(w, err)
			return
		}
	}
}

// The last frame may still be in the channel when quit is requested.
func (d *Dumper) drainFrame(w *worker) error {
	select {
	case f := <-d.frames:
		err := w.addFrame(f)
		<-d.inflight
		return err
	default:
		return nil
	}
}

func (d *Dumper) fail(w *worker, err error) {
	d.logger.Error().Src("dumper").Msgf("worker: %v", err)
	d.setErr(err)
	w.abort()
}
