package source

import (
	"fmt"

	"github.com/voibo/desktop-audio-capture/internal/accum"
	"github.com/voibo/desktop-audio-capture/internal/convert"
	"github.com/voibo/desktop-audio-capture/internal/resample"
	"github.com/voibo/desktop-audio-capture/pkg/frame"
)

// audioPipeline is the conversion path shared by both source adapters:
// device-format samples in, session-format chunks out.
//
// Channel conversion runs before the resampler so the converter processes
// the smaller number of channels. The resampler context persists for the
// pipeline's lifetime; it is never reset between chunks.
//
// A pipeline is confined to whichever goroutine drives its source.
type audioPipeline struct {
	src        AudioFormat
	channels   int
	sampleRate int

	res *resample.Resampler
	mix frame.PCMFrame
	out accum.Buffer
	min int
}

// newAudioPipeline builds the conversion path from a device format to the
// session format. minFrames is the delivery granularity; 0 selects roughly
// 10ms of audio at the session rate.
func newAudioPipeline(src AudioFormat, channels, sampleRate, minFrames int) (*audioPipeline, error) {
	if src.SampleRate <= 0 || src.Channels <= 0 {
		return nil, fmt.Errorf("invalid device audio format: %d Hz, %d channels", src.SampleRate, src.Channels)
	}
	if minFrames <= 0 {
		minFrames = sampleRate / 100
		if minFrames < 1 {
			minFrames = 1
		}
	}

	p := &audioPipeline{
		src:        src,
		channels:   channels,
		sampleRate: sampleRate,
		min:        minFrames,
	}
	if src.SampleRate != sampleRate {
		p.res = resample.New(channels, src.SampleRate, sampleRate)
	}
	return p, nil
}

// push runs one device-format delivery through the conversion path and
// invokes deliver for every finished session-format chunk. The chunk's
// samples are only valid for the duration of the deliver call.
func (p *audioPipeline) push(samples frame.PCMFrame, deliver func(frame.AudioChunk)) error {
	work := samples
	switch {
	case p.src.Channels == p.channels:
		// Pass through.
	case p.channels == 1:
		p.mix = convert.DownmixMono(work, p.src.Channels, p.mix)
		work = p.mix
	case p.src.Channels == 1 && p.channels == 2:
		p.mix = convert.MonoToStereo(work, p.mix)
		work = p.mix
	default:
		// Arbitrary N -> stereo: collapse to mono first, then duplicate.
		p.mix = convert.DownmixMono(work, p.src.Channels, p.mix)
		p.mix = convert.MonoToStereo(p.mix, nil)
		work = p.mix
	}

	if p.res != nil {
		converted, err := p.res.Process(work)
		if err != nil {
			return fmt.Errorf("sample rate conversion failed: %w", err)
		}
		work = converted
	}

	p.out.Append(work)
	if p.out.Frames(p.channels) >= p.min {
		samples := p.out.Drain()
		deliver(frame.AudioChunk{
			Channels:   p.channels,
			SampleRate: p.sampleRate,
			Frames:     len(samples) / p.channels,
			Samples:    samples,
		})
	}
	return nil
}
