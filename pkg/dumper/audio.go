// SPDX-License-Identifier: GPL-2.0-or-later

package dumper

import (
	"sync"

	"avidump/pkg/pixfmt"
)

// sampleBuffer is shared between the caller, which appends,
// and the worker, which drains from the front.
type sampleBuffer struct {
	mu      sync.Mutex
	samples []uint16
}

func (b *sampleBuffer) appendSamples(src []byte, format pixfmt.SampleFormat) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	b.samples, err = pixfmt.AppendSamples(b.samples, src, format)
	return err
}

func (b *sampleBuffer) appendStereo(left, right []int16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = pixfmt.AppendStereo(b.samples, left, right)
}

func (b *sampleBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// drain moves n samples into dst and returns how many were missing.
// Missing samples are filled with silence. The remainder is shifted
// to the front of the buffer.
func (b *sampleBuffer) drain(dst []uint16) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := copy(dst, b.samples)
	for i := n; i < len(dst); i++ {
		dst[i] = pixfmt.Silence
	}
	b.samples = b.samples[:copy(b.samples, b.samples[n:])]
	return len(dst) - n
}
