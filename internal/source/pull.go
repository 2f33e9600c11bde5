package source

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/voibo/desktop-audio-capture/pkg/frame"
)

// DefaultPollTimeout bounds each wait on the endpoint event. A stop request
// is observed within at most one timeout interval.
const DefaultPollTimeout = 100 * time.Millisecond

// PullConfig configures a pull-model source.
type PullConfig struct {
	Endpoint AudioEndpoint

	// Session output format.
	Channels   int
	SampleRate int

	// Minimum frames accumulated before a delivery; 0 selects the default
	// granularity (about 10ms).
	MinDeliveryFrames int

	// PollTimeout overrides DefaultPollTimeout when positive.
	PollTimeout time.Duration

	// OnAudio receives finished chunks from the worker goroutine.
	OnAudio func(frame.AudioChunk)

	// OnExit is invoked once if the endpoint fails at runtime (non-nil
	// error) or reports a clean upstream stop (nil error). It is never
	// invoked after a stop request.
	OnExit func(err error)

	Logger *slog.Logger
}

// Pull drives an AudioEndpoint from a dedicated worker goroutine: wait on
// the endpoint event with a bounded timeout, drain every pending packet,
// convert, deliver. This is the Source A adapter.
type Pull struct {
	cfg      PullConfig
	pipeline *audioPipeline
	timeout  time.Duration

	stopRequested atomic.Bool
	done          chan struct{}
}

// NewPull acquires the endpoint and prepares the worker. No goroutine runs
// yet; the caller transitions its own state and then calls Run. An error
// here is an acquisition failure and leaves no resources held.
func NewPull(cfg PullConfig) (*Pull, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	format, err := cfg.Endpoint.Acquire()
	if err != nil {
		return nil, err
	}

	pipeline, err := newAudioPipeline(format, cfg.Channels, cfg.SampleRate, cfg.MinDeliveryFrames)
	if err != nil {
		cfg.Endpoint.Release()
		return nil, err
	}

	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}

	cfg.Logger.Debug(
		"audio endpoint acquired",
		"deviceSampleRate", format.SampleRate,
		"deviceChannels", format.Channels,
		"sessionSampleRate", cfg.SampleRate,
		"sessionChannels", cfg.Channels,
	)

	return &Pull{
		cfg:      cfg,
		pipeline: pipeline,
		timeout:  timeout,
		done:     make(chan struct{}),
	}, nil
}

// Run spawns the worker goroutine. Call exactly once.
func (p *Pull) Run() {
	go p.run()
}

// Stop requests shutdown and joins the worker before returning. The
// endpoint is released by the worker on its way out, so once Stop returns no
// further deliveries can occur. Safe to call more than once.
func (p *Pull) Stop() {
	p.stopRequested.Store(true)
	<-p.done
}

func (p *Pull) run() {
	defer close(p.done)
	defer p.cfg.Endpoint.Release()

	for !p.stopRequested.Load() {
		ready, err := p.cfg.Endpoint.WaitPacket(p.timeout)
		if err != nil {
			p.exit(err)
			return
		}
		if !ready {
			// Timeout; loop to re-check the stop flag.
			continue
		}

		// Drain everything pending. The OS buffer is finite: leaving
		// packets behind risks overrun, which loses samples instead of
		// blocking.
		for {
			samples, frames, err := p.cfg.Endpoint.ReadPacket()
			if err != nil {
				p.exit(err)
				return
			}
			if frames == 0 {
				break
			}
			if err := p.pipeline.push(samples, p.cfg.OnAudio); err != nil {
				p.exit(err)
				return
			}
		}
	}
}

// exit reports an abnormal end of capture, unless a stop was requested, in
// which case the condition is expected and swallowed.
func (p *Pull) exit(err error) {
	if p.stopRequested.Load() {
		return
	}
	if errors.Is(err, ErrEndpointStopped) {
		p.cfg.Logger.Info("audio endpoint stopped upstream")
		p.cfg.OnExit(nil)
		return
	}
	p.cfg.Logger.Error("audio capture worker failed", "err", err)
	p.cfg.OnExit(err)
}
