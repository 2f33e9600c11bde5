// Package convert holds the stateless format conversion routines shared by
// the capture sources: channel downmix/upmix for audio and pixel format
// normalization for video.
//
// Everything in this package is a pure function over its inputs. Callers that
// care about allocation pass a reusable destination buffer; the returned
// slice aliases it when capacity allows.
package convert

import (
	"github.com/voibo/desktop-audio-capture/pkg/frame"
)

// DownmixMono reduces interleaved multi-channel audio to mono by taking the
// arithmetic mean of the channels in each sample frame. For stereo input the
// produced sample is (L+R)/2.
//
// The mix is lossy and irreversible: per-channel information is discarded.
// A trailing partial sample frame (len(src) not divisible by channels) is
// dropped.
func DownmixMono(src frame.PCMFrame, channels int, dst frame.PCMFrame) frame.PCMFrame {
	if channels <= 1 {
		return append(dst[:0], src...)
	}

	frames := len(src) / channels
	dst = growFrame(dst, frames)
	for i := 0; i < frames; i++ {
		sum := float32(0)
		for ch := 0; ch < channels; ch++ {
			sum += src[i*channels+ch]
		}
		dst[i] = sum / float32(channels)
	}
	return dst
}

// MonoToStereo duplicates each mono sample into both channels of an
// interleaved stereo frame.
func MonoToStereo(src frame.PCMFrame, dst frame.PCMFrame) frame.PCMFrame {
	dst = growFrame(dst, 2*len(src))
	for i, v := range src {
		dst[2*i] = v
		dst[2*i+1] = v
	}
	return dst
}

func growFrame(buf frame.PCMFrame, n int) frame.PCMFrame {
	if cap(buf) < n {
		return make(frame.PCMFrame, n)
	}
	return buf[:n]
}
