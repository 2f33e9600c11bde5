package resample

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voibo/desktop-audio-capture/pkg/frame"
)

func sine(frames int, freq float64, rate int) frame.PCMFrame {
	out := make(frame.PCMFrame, frames)
	for i := 0; i < frames; i++ {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / float64(rate)))
	}
	return out
}

func TestProcessConvergesToRatio(t *testing.T) {
	const srcRate, dstRate = 44100, 48000
	const inputFrames = srcRate // one second

	r := New(1, srcRate, dstRate)

	in := sine(inputFrames, 440, srcRate)
	total := 0
	// Feed in uneven chunks, as the OS would.
	for pos := 0; pos < len(in); {
		n := 480 + (pos/480%7)*33
		if pos+n > len(in) {
			n = len(in) - pos
		}
		out, err := r.Process(in[pos : pos+n])
		require.NoError(t, err)
		total += len(out)
		pos += n
	}

	expected := float64(inputFrames) * dstRate / srcRate
	// The converter holds back up to its filter length of samples.
	assert.InDelta(t, expected, float64(total), 4096)
	assert.LessOrEqual(t, float64(total), expected+64)
}

func TestChunkingDoesNotIntroduceDiscontinuities(t *testing.T) {
	const srcRate, dstRate = 44100, 48000
	in := sine(8192, 1000, srcRate)

	whole := New(1, srcRate, dstRate)
	wholeOut, err := whole.Process(in)
	require.NoError(t, err)
	wholeCopy := append(frame.PCMFrame(nil), wholeOut...)

	chunked := New(1, srcRate, dstRate)
	var chunkedOut frame.PCMFrame
	for pos := 0; pos < len(in); pos += 1000 {
		end := min(pos+1000, len(in))
		out, err := chunked.Process(in[pos:end])
		require.NoError(t, err)
		chunkedOut = append(chunkedOut, out...)
	}

	// Persistent filter history means chunking changes nothing: same
	// output, no boundary seams.
	require.InDelta(t, len(wholeCopy), len(chunkedOut), 8)
	n := min(len(wholeCopy), len(chunkedOut))
	for i := 0; i < n; i++ {
		require.InDelta(t, wholeCopy[i], chunkedOut[i], 1e-4, "sample %d diverged", i)
	}
}

func TestStereoKeepsChannelsSeparate(t *testing.T) {
	const srcRate, dstRate = 44100, 48000
	const frames = 8192

	in := make(frame.PCMFrame, 2*frames)
	for i := 0; i < frames; i++ {
		in[2*i] = 0.5
		in[2*i+1] = -0.25
	}

	r := New(2, srcRate, dstRate)
	out, err := r.Process(in)
	require.NoError(t, err)
	require.NotEmpty(t, out)
	require.Zero(t, len(out)%2)

	// Skip the filter warmup, then both channels must hold their DC level.
	outFrames := len(out) / 2
	for i := outFrames / 2; i < outFrames; i++ {
		assert.InDelta(t, 0.5, out[2*i], 0.05)
		assert.InDelta(t, -0.25, out[2*i+1], 0.05)
	}
}

func TestStereoRemainderCarriesIntoNextCall(t *testing.T) {
	const srcRate, dstRate = 44100, 48000
	const frames = 256

	r := New(2, srcRate, dstRate)

	// One channel running a sample ahead of the other must not lose that
	// sample: it leads the next call's output instead.
	r.pending[0] = append(r.pending[0], 0.25)

	in := make(frame.PCMFrame, 2*frames)
	for i := 0; i < frames; i++ {
		in[2*i] = 0.5
		in[2*i+1] = -0.25
	}

	out, err := r.Process(in)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	assert.Equal(t, float32(0.25), out[0], "queued sample must be emitted first")
	assert.Len(t, r.pending[0], 1, "the lead is preserved, not discarded")
	assert.Empty(t, r.pending[1])
}

func TestProcessEmptyInput(t *testing.T) {
	r := New(1, 44100, 48000)
	out, err := r.Process(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
