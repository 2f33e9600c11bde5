// Package resample adapts the streaming sample rate converter from
// github.com/oov/audio to the interleaved float32 chunks used by the capture
// pipeline.
//
// A Resampler is a persistent streaming context: filter history is carried
// across Process calls, so feeding a signal chunk-by-chunk produces the same
// output as feeding it in one call. The context must never be shared between
// sessions or reset mid-session; either would produce an audible seam.
package resample

import (
	"errors"

	"github.com/oov/audio/resampler"
	"github.com/voibo/desktop-audio-capture/pkg/frame"
)

// Conversion quality passed to the underlying converter, on its 0..10 scale.
const quality = 10

var errStalled = errors.New("sample rate converter made no progress")

// Resampler converts interleaved float32 audio from one sample rate to
// another, preserving continuity across calls.
//
// Fractional ratios (e.g. 44100 -> 48000) are handled by the underlying
// polyphase converter; per-call output lengths vary by a frame or two but the
// total converges to inputFrames * dstRate/srcRate.
type Resampler struct {
	channels int
	rs       *resampler.Resampler

	// Scratch buffers reused between calls to keep the hot path free of
	// per-chunk allocations.
	planarIn  [][]float32
	planarOut [][]float32
	out       frame.PCMFrame

	// pending holds samples a channel produced beyond what the other
	// channel emitted in the same call. Carried into the next call so
	// inter-channel alignment never drifts.
	pending [][]float32
}

// New creates a streaming resampler for the given channel count (1 or 2) and
// rate pair. srcRate and dstRate must be positive; they need not divide
// evenly.
func New(channels, srcRate, dstRate int) *Resampler {
	r := &Resampler{
		channels:  channels,
		rs:        resampler.New(channels, srcRate, dstRate, quality),
		planarIn:  make([][]float32, channels),
		planarOut: make([][]float32, channels),
		pending:   make([][]float32, channels),
	}
	return r
}

// Process converts one chunk of interleaved samples. The returned slice is
// owned by the Resampler and valid until the next call.
//
// Input must be contiguous with the previous call for this session: no gaps,
// no interleaving of other signals. A conversion stall (the converter
// accepting no input and producing no output) is returned as an error and is
// fatal to the owning session.
func (r *Resampler) Process(in frame.PCMFrame) (frame.PCMFrame, error) {
	frames := len(in) / r.channels
	if frames == 0 {
		return nil, nil
	}

	if r.channels == 1 {
		return r.processChannel(0, in, frames)
	}

	// Deinterleave, convert each channel against its own filter state,
	// interleave again. Identical filter configs produce identical output
	// lengths per call, but a sample one channel emits ahead of the other
	// is queued, not dropped: discarding it would skew alignment for the
	// rest of the session.
	for ch := 0; ch < r.channels; ch++ {
		r.planarIn[ch] = grow(r.planarIn[ch], frames)
		for i := 0; i < frames; i++ {
			r.planarIn[ch][i] = in[i*r.channels+ch]
		}
	}

	written := 0
	for ch := 0; ch < r.channels; ch++ {
		out, err := r.processChannel(ch, r.planarIn[ch], frames)
		if err != nil {
			return nil, err
		}
		r.pending[ch] = append(r.pending[ch], out...)
		if ch == 0 || len(r.pending[ch]) < written {
			written = len(r.pending[ch])
		}
	}

	r.out = growPCM(r.out, written*r.channels)
	for ch := 0; ch < r.channels; ch++ {
		queued := r.pending[ch]
		for i := 0; i < written; i++ {
			r.out[i*r.channels+ch] = queued[i]
		}
		rest := copy(queued, queued[written:])
		r.pending[ch] = queued[:rest]
	}
	return r.out, nil
}

// processChannel feeds one channel's samples through the converter until all
// input is consumed, growing the channel's scratch buffer as needed.
func (r *Resampler) processChannel(ch int, in []float32, frames int) ([]float32, error) {
	// The converter emits roughly ratio*frames samples plus filter latency.
	out := grow(r.planarOut[ch], frames*4+64)

	pos, produced := 0, 0
	for pos < len(in) {
		if produced == len(out) {
			next := make([]float32, len(out)*2)
			copy(next, out)
			out = next
		}
		read, written := r.rs.ProcessFloat32(ch, in[pos:], out[produced:])
		if read == 0 && written == 0 {
			return nil, errStalled
		}
		pos += read
		produced += written
	}
	r.planarOut[ch] = out
	return out[:produced], nil
}

func grow(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}
	return buf[:n]
}

func growPCM(buf frame.PCMFrame, n int) frame.PCMFrame {
	if cap(buf) < n {
		return make(frame.PCMFrame, n)
	}
	return buf[:n]
}
