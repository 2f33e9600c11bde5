package source

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"
	"github.com/voibo/desktop-audio-capture/pkg/frame"
)

const (
	// Ring between the miniaudio data callback and the worker goroutine.
	// One second of 48kHz stereo float32 is ~384KiB; 1MiB absorbs a slow
	// worker without letting the backlog grow unbounded.
	endpointRingSize = 1 << 20

	// Upper bound on one ReadPacket, in bytes. Larger backlogs are drained
	// over successive calls within the same wake.
	endpointPacketSize = 64 * 1024
)

// malgoEndpoint is the system-audio implementation of AudioEndpoint, built
// on miniaudio. Loopback endpoints capture what the system is playing;
// microphone endpoints capture the default input device.
//
// miniaudio pushes data on its own thread. The data callback must never
// block, so samples go through a ring buffer: on overrun the newest write is
// dropped (an audible glitch) rather than stalling the OS thread.
type malgoEndpoint struct {
	kind   EndpointKind
	logger *slog.Logger

	device *malgo.Device
	format AudioFormat

	ring    *ringbuffer.RingBuffer
	notify  chan struct{}
	dropped atomic.Uint64

	raw     []byte
	samples frame.PCMFrame
}

// NewSystemEndpoint returns an endpoint for the platform's default device of
// the given kind. The OS resource is not touched until Acquire.
func NewSystemEndpoint(kind EndpointKind, logger *slog.Logger) AudioEndpoint {
	if logger == nil {
		logger = slog.Default()
	}
	return &malgoEndpoint{
		kind:   kind,
		logger: logger,
		notify: make(chan struct{}, 1),
		raw:    make([]byte, endpointPacketSize),
	}
}

func (e *malgoEndpoint) Acquire() (AudioFormat, error) {
	ctx, err := acquireAudioContext()
	if err != nil {
		return AudioFormat{}, fmt.Errorf("audio subsystem init failed: %w", err)
	}

	deviceType := malgo.Loopback
	if e.kind == EndpointMicrophone {
		deviceType = malgo.Capture
	}

	cfg := malgo.DefaultDeviceConfig(deviceType)
	cfg.Capture.Format = malgo.FormatF32
	// Zero keeps the device's native rate and channel count; the session
	// pipeline owns the conversion to the requested format.
	cfg.Capture.Channels = 0
	cfg.SampleRate = 0
	cfg.Alsa.NoMMap = 1

	e.ring = ringbuffer.New(endpointRingSize)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			e.ingest(input)
		},
		Stop: func() {
			// Device-level interruption (endpoint removed, stream closed).
			select {
			case e.notify <- struct{}{}:
			default:
			}
		},
	}

	device, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		releaseAudioContext()
		return AudioFormat{}, fmt.Errorf("opening audio endpoint: %w", err)
	}

	e.format = AudioFormat{
		SampleRate: int(device.SampleRate()),
		Channels:   int(device.CaptureChannels()),
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		releaseAudioContext()
		return AudioFormat{}, fmt.Errorf("starting audio endpoint: %w", err)
	}

	e.device = device
	e.logger.Debug(
		"system audio endpoint started",
		"kind", e.kind,
		"deviceSampleRate", e.format.SampleRate,
		"deviceChannels", e.format.Channels,
	)
	return e.format, nil
}

// ingest runs on the miniaudio thread and must never block: what the ring
// cannot take is dropped and accounted. The worker is notified either way so
// it can report the loss.
func (e *malgoEndpoint) ingest(input []byte) {
	n, err := e.ring.Write(input)
	if err != nil || n < len(input) {
		e.dropped.Add(uint64(len(input) - n))
	}
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

func (e *malgoEndpoint) WaitPacket(timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-e.notify:
		if e.device != nil && !e.device.IsStarted() && e.ring.IsEmpty() {
			return false, ErrEndpointStopped
		}
		return true, nil
	case <-timer.C:
		if e.device != nil && !e.device.IsStarted() && e.ring.IsEmpty() {
			return false, ErrEndpointStopped
		}
		return false, nil
	}
}

func (e *malgoEndpoint) ReadPacket() (frame.PCMFrame, int, error) {
	bytesPerFrame := 4 * e.format.Channels

	avail := e.ring.Length()
	avail -= avail % bytesPerFrame
	if avail == 0 {
		if n := e.dropped.Swap(0); n > 0 {
			e.logger.Warn("audio ring overrun, samples lost", "bytesDropped", n)
		}
		return nil, 0, nil
	}
	if avail > len(e.raw) {
		avail = len(e.raw) - len(e.raw)%bytesPerFrame
	}

	if _, err := e.ring.Read(e.raw[:avail]); err != nil {
		return nil, 0, fmt.Errorf("reading audio ring: %w", err)
	}

	sampleCount := avail / 4
	if cap(e.samples) < sampleCount {
		e.samples = make(frame.PCMFrame, sampleCount)
	}
	e.samples = e.samples[:sampleCount]
	for i := 0; i < sampleCount; i++ {
		e.samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(e.raw[i*4:]))
	}

	return e.samples, sampleCount / e.format.Channels, nil
}

func (e *malgoEndpoint) Release() {
	if e.device != nil {
		e.device.Uninit()
		e.device = nil
		releaseAudioContext()
	}
	if n := e.dropped.Load(); n > 0 {
		e.logger.Warn("audio ring dropped samples during capture", "bytesDropped", n)
	}
}

// EndpointInfo is one enumerable audio capture device.
type EndpointInfo struct {
	Name string
	ID   string
}

// ListAudioEndpoints enumerates the capture devices the platform reports.
// Purely informational; sessions always open the default device of the
// configured kind.
func ListAudioEndpoints() ([]EndpointInfo, error) {
	ctx, err := acquireAudioContext()
	if err != nil {
		return nil, fmt.Errorf("audio subsystem init failed: %w", err)
	}
	defer releaseAudioContext()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerating audio devices: %w", err)
	}

	devices := make([]EndpointInfo, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, EndpointInfo{
			Name: info.Name(),
			ID:   info.ID.String(),
		})
	}
	return devices, nil
}
