package source

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/voibo/desktop-audio-capture/internal/convert"
	"github.com/voibo/desktop-audio-capture/internal/encode"
	"github.com/voibo/desktop-audio-capture/pkg/frame"
)

// PushVideoParams configures the video leg of a push-model source.
type PushVideoParams struct {
	// Compress selects JPEG delivery; raw RGBA otherwise.
	Compress bool
	// JPEGQuality is the resolved numeric quality used when compressing.
	JPEGQuality int
}

// PushConfig configures a push-model source.
type PushConfig struct {
	Stream MediaStream

	// Session output format for the audio leg.
	Channels   int
	SampleRate int

	// Minimum frames accumulated before an audio delivery; 0 selects the
	// default granularity.
	MinDeliveryFrames int

	// Video is nil for audio-only streams.
	Video *PushVideoParams

	OnAudio func(frame.AudioChunk)
	OnVideo func(frame.VideoFrame)

	// OnExit is invoked once on a runtime failure (or an unrequested
	// upstream stop). Never invoked after a stop request.
	OnExit func(err error)

	// OnStopped is invoked exactly once when the stream confirms teardown
	// of a requested stop.
	OnStopped func()

	Logger *slog.Logger
}

// Push adapts an OS-managed media stream to the session pipeline. It owns no
// goroutine: the stream drives the sink methods on its own delivery queue.
// This is the Source B adapter.
//
// Stopping is asynchronous at the OS level. Between RequestStop and the
// stream's teardown confirmation a few in-flight deliveries may still
// arrive; the teardown gate silently discards them so no callback fires on
// a torn-down session.
type Push struct {
	cfg PushConfig

	// pipeline is created on the first audio delivery, once the stream's
	// device format is known. Deliveries are serial per stream, so no lock
	// is needed around it.
	pipeline *audioPipeline

	tornDown      atomic.Bool
	stopRequested atomic.Bool
	stoppedOnce   sync.Once
}

// NewPush registers the sink with the stream. Deliveries may begin before
// this returns; the caller must be ready for them. An error is an
// acquisition failure.
func NewPush(cfg PushConfig) (*Push, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	p := &Push{cfg: cfg}
	if err := cfg.Stream.Start(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Stop asks the stream to tear down and returns immediately. The stream
// confirms through OnStopped at its own pace; OnStopped resolves the
// configured completion callback exactly once. Safe to call more than once.
func (p *Push) Stop() {
	p.stopRequested.Store(true)
	p.tornDown.Store(true)
	p.cfg.Stream.RequestStop()
}

// --------------------------------------------------------------------------------
// MediaSink

func (p *Push) OnAudio(samples frame.PCMFrame, format AudioFormat) {
	if p.tornDown.Load() {
		return
	}

	if p.pipeline == nil || p.pipeline.src != format {
		pipeline, err := newAudioPipeline(format, p.cfg.Channels, p.cfg.SampleRate, p.cfg.MinDeliveryFrames)
		if err != nil {
			p.fail(err)
			return
		}
		if p.pipeline != nil {
			// A mid-stream format change would force a resampler restart
			// and an audible seam; the OS does not do this for one stream.
			p.cfg.Logger.Warn(
				"stream audio format changed mid-capture",
				"sampleRate", format.SampleRate,
				"channels", format.Channels,
			)
		}
		p.pipeline = pipeline
	}

	if err := p.pipeline.push(samples, p.cfg.OnAudio); err != nil {
		p.fail(err)
	}
}

func (p *Push) OnVideo(buf PixelBuffer) {
	if p.tornDown.Load() || p.cfg.OnVideo == nil {
		return
	}

	locked, err := buf.Lock()
	if err != nil {
		// A single unlockable buffer is not fatal; skip the frame.
		p.cfg.Logger.Warn("could not lock pixel buffer", "err", err)
		return
	}

	// Copy out and normalize while locked, nothing else. The OS buffer is
	// released before any encode work.
	rgba, convErr := normalizePixels(locked)
	buf.Unlock()
	if convErr != nil {
		p.fail(convErr)
		return
	}

	delivered := frame.VideoFrame{
		Data:      rgba,
		Width:     locked.Width,
		Height:    locked.Height,
		Stride:    locked.Width * 4,
		Format:    frame.PixelFormatRGBA,
		Timestamp: locked.Timestamp,
	}

	if p.cfg.Video != nil && p.cfg.Video.Compress {
		data, err := encode.JPEG(rgba, locked.Width, locked.Height, p.cfg.Video.JPEGQuality)
		if err != nil {
			p.fail(fmt.Errorf("jpeg encode failed: %w", err))
			return
		}
		delivered.Data = data
		delivered.Format = frame.PixelFormatJPEG
	}

	if p.tornDown.Load() {
		// Teardown raced the conversion; drop rather than call back.
		return
	}
	p.cfg.OnVideo(delivered)
}

func (p *Push) OnStopped(err error) {
	if p.stopRequested.Load() {
		p.stoppedOnce.Do(p.cfg.OnStopped)
		return
	}
	// Unrequested teardown is a runtime condition: the OS stopped the
	// stream underneath the session.
	if err == nil {
		err = errors.New("capture stream stopped by OS")
	}
	p.fail(err)
}

// fail reports a runtime failure once and gates out all further deliveries.
// The stream is asked to tear down; its eventual confirmation is ignored
// because no stop was requested.
func (p *Push) fail(err error) {
	if p.tornDown.Swap(true) {
		return
	}
	p.cfg.Logger.Error("media stream failed", "err", err)
	p.cfg.Stream.RequestStop()
	p.cfg.OnExit(err)
}

// normalizePixels copies a locked OS buffer into a tightly packed
// session-owned RGBA buffer.
func normalizePixels(px LockedPixels) ([]byte, error) {
	switch {
	case px.Format == frame.PixelFormatNV12:
		if len(px.Planes) < 2 || len(px.Strides) < 2 {
			return nil, fmt.Errorf("nv12 delivery with %d planes", len(px.Planes))
		}
		return convert.NV12ToRGBA(px.Planes[0], px.Planes[1], px.Width, px.Height, px.Strides[0], px.Strides[1]), nil
	case px.Format.Packed():
		if len(px.Planes) < 1 || len(px.Strides) < 1 {
			return nil, errors.New("packed delivery without plane data")
		}
		return convert.PackedToRGBA(px.Planes[0], px.Width, px.Height, px.Strides[0], px.Format)
	default:
		return nil, fmt.Errorf("unsupported pixel format: %q", px.Format)
	}
}
