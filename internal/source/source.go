// Package source implements the two capture source adapters that bridge the
// OS capture models into the session pipeline:
//
//   - the pull model (Source A): an event-signaled audio endpoint drained by
//     a dedicated worker goroutine owned by this package, and
//   - the push model (Source B): an OS-managed media stream that drives a
//     registered sink on its own delivery goroutine.
//
// Both adapters share the same audio processing path (channel conversion,
// streaming resample, accumulation) and differ only in who owns the
// delivery loop.
package source

import (
	"errors"
	"time"

	"github.com/voibo/desktop-audio-capture/pkg/frame"
)

// AudioFormat describes the device-native format of raw audio handed over by
// an OS capture subsystem: interleaved float32 at the given rate and channel
// count.
type AudioFormat struct {
	SampleRate int
	Channels   int
}

// EndpointKind selects which audio endpoint a pull session opens.
type EndpointKind int

const (
	// System audio output, captured in loopback.
	EndpointLoopback EndpointKind = iota
	// Default microphone input.
	EndpointMicrophone
)

// ErrEndpointStopped is returned by AudioEndpoint.WaitPacket when the
// upstream device reports a clean end of stream (device removed or stream
// closed by the OS without error). The session reports this as an exit
// notification with no error, distinct from a runtime failure.
var ErrEndpointStopped = errors.New("audio endpoint stopped upstream")

// AudioEndpoint is the pull-model OS boundary. Implementations wrap an
// event-driven OS capture client; the worker goroutine in this package
// drives them.
//
// Acquire, WaitPacket, ReadPacket and Release are always called from a
// single goroutine, in that order, with WaitPacket/ReadPacket repeated.
type AudioEndpoint interface {
	// Acquire opens the OS resource and reports the device-native format.
	Acquire() (AudioFormat, error)

	// WaitPacket blocks until the endpoint signals available data or the
	// timeout elapses. It returns false on timeout so the caller can
	// re-check its stop flag; the wait must never be unbounded.
	WaitPacket(timeout time.Duration) (bool, error)

	// ReadPacket returns one pending OS-sized packet of device-format
	// samples, or frames == 0 once the endpoint is drained. The returned
	// slice is only valid until the next ReadPacket call.
	ReadPacket() (samples frame.PCMFrame, frames int, err error)

	// Release tears down the OS resource. Called exactly once, after the
	// worker has finished.
	Release()
}

// LockedPixels exposes an OS pixel buffer while it is locked for read-only
// access. Planes hold one plane for packed formats, or the luma plane
// followed by the interleaved CbCr plane for NV12; Strides matches Planes.
type LockedPixels struct {
	Format    frame.PixelFormat
	Width     int
	Height    int
	Planes    [][]byte
	Strides   []int
	Timestamp time.Time
}

// PixelBuffer is one OS-owned video delivery. The sink locks it only for the
// duration of the copy-out; it is unlocked before any CPU-bound encode work
// so the OS can reuse the buffer.
type PixelBuffer interface {
	Lock() (LockedPixels, error)
	Unlock()
}

// MediaSink receives push-model deliveries. The OS stream invokes it
// serially on its own goroutine; audio and video calls are interleaved in
// arrival order with no cross-kind ordering guarantee.
type MediaSink interface {
	OnAudio(samples frame.PCMFrame, format AudioFormat)
	OnVideo(buf PixelBuffer)

	// OnStopped confirms stream teardown. A nil error after a stop request
	// is the normal acknowledgement; anything else is a runtime failure
	// reported by the OS.
	OnStopped(err error)
}

// MediaStream is the push-model OS boundary: an OS-managed capture stream
// that delivers into a registered sink. RequestStop is asynchronous; the
// stream keeps the right to deliver a few in-flight buffers before
// confirming teardown through the sink's OnStopped.
type MediaStream interface {
	Start(sink MediaSink) error
	RequestStop()
}

// StreamConfig carries the capture target and video parameters down to a
// MediaStream implementation.
type StreamConfig struct {
	DisplayID uint32
	WindowID  uint32
	BundleID  string
	FrameRate float64
}

// Provider constructs the platform capture boundaries for a session. The
// default implementation talks to the real OS subsystems; tests substitute
// synthetic ones.
type Provider interface {
	AudioEndpoint(kind EndpointKind) (AudioEndpoint, error)
	MediaStream(cfg StreamConfig) (MediaStream, error)
}
