// SPDX-License-Identifier: GPL-2.0-or-later

// Package avsync decides how many audio samples belong to each video frame.
package avsync

// Counter spreads the sample rate over frames with rational arithmetic.
// For every frame the nominal count is floor(rate*denom/num), plus one
// when the running counter modulo num is below r = (rate*denom) mod num.
// The counter then advances by r, so an extra sample is added exactly
// when the accumulated remainder wraps. The sum over num frames is
// exactly rate*denom and the sum over any run of frames stays within
// one sample of the ideal count.
type Counter struct {
	rate  uint64
	num   uint64
	denom uint64

	base      uint64
	remainder uint64
	acc       uint64
}

// NewCounter creates a new Counter. num and denom must be nonzero.
func NewCounter(sampleRate, num, denom uint32) *Counter {
	c := &Counter{rate: uint64(sampleRate)}
	c.SetFrameRate(num, denom)
	return c
}

// SetFrameRate changes the frame rate. The running counter is
// reset when the rate differs from the current one.
func (c *Counter) SetFrameRate(num, denom uint32) {
	if uint64(num) == c.num && uint64(denom) == c.denom {
		return
	}
	c.num = uint64(num)
	c.denom = uint64(denom)
	c.base = c.rate * c.denom / c.num
	c.remainder = c.rate * c.denom % c.num
	c.acc = 0
}

// Peek returns the number of samples of the next frame.
func (c *Counter) Peek() int {
	n := c.base
	if c.acc < c.remainder {
		n++
	}
	return int(n)
}

// Next returns the number of samples of the next frame
// and advances the counter.
func (c *Counter) Next() int {
	n := c.Peek()
	c.acc = (c.acc + c.remainder) % c.num
	return n
}
