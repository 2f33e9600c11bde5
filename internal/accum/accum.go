// Package accum provides the per-pass sample accumulation buffer sitting
// between format conversion and callback delivery.
package accum

import "github.com/voibo/desktop-audio-capture/pkg/frame"

// Buffer accumulates interleaved samples until the owner decides a pass is
// complete and drains it.
//
// A Buffer is confined to the goroutine processing its session's deliveries;
// it is not safe for concurrent use. Capacity is retained across drains so a
// steady-state session stops allocating.
type Buffer struct {
	samples frame.PCMFrame
}

// Append adds one converted chunk to the accumulation.
func (b *Buffer) Append(samples frame.PCMFrame) {
	b.samples = append(b.samples, samples...)
}

// Frames reports the number of whole sample frames currently accumulated for
// the given channel count.
func (b *Buffer) Frames(channels int) int {
	if channels <= 0 {
		return 0
	}
	return len(b.samples) / channels
}

// Len reports the number of accumulated samples.
func (b *Buffer) Len() int {
	return len(b.samples)
}

// Drain returns everything accumulated since the last drain and resets the
// buffer. The returned slice is invalidated by the next Append; callers must
// finish with it (or copy it) before feeding the buffer again.
func (b *Buffer) Drain() frame.PCMFrame {
	out := b.samples
	b.samples = b.samples[:0]
	return out
}
