// Package capture is the public surface of the desktop media capture
// pipeline: configure a session once, receive a stream of typed audio/video
// buffers through callbacks, stop cleanly.
//
// Two OS capture models hide behind this one contract. Audio-only sessions
// run a pull-model worker that drains an event-signaled endpoint; video
// sessions register a sink on a push-model OS stream. The session state
// machine and the callback discipline are identical either way.
package capture

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/voibo/desktop-audio-capture/internal/source"
	"github.com/voibo/desktop-audio-capture/pkg/frame"
)

// State is a session's position in its lifecycle. Stopped is terminal; a
// handle starts a fresh session for the next capture.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateCapturing
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateCapturing:
		return "capturing"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// AudioDataFunc receives finished audio chunks, in capture order. The
// chunk's samples are only valid for the duration of the call.
type AudioDataFunc func(chunk frame.AudioChunk)

// VideoDataFunc receives finished video frames, in capture order. The frame
// data is session-owned and may be retained.
type VideoDataFunc func(f frame.VideoFrame)

// ExitFunc is invoked at most once per session: with a non-nil error on a
// fatal acquisition or runtime failure, or with nil when the upstream device
// stopped cleanly without a stop request. A clean Stop never invokes it.
type ExitFunc func(err error)

// StopFunc acknowledges a completed Stop. Invoked exactly once per Stop
// call.
type StopFunc func()

// Session owns one capture: its configuration, conversion state, the worker
// (for pull sources) and the delivery callbacks. Sessions are single-use;
// obtain them through a Registry or NewSession.
type Session struct {
	id       uuid.UUID
	logger   *slog.Logger
	provider source.Provider

	state atomic.Int32

	mu          sync.Mutex
	onAudio     AudioDataFunc
	onVideo     VideoDataFunc
	onExit      ExitFunc
	pull        *source.Pull
	push        *source.Push
	stopWaiters []StopFunc
	pendingStop bool

	exitOnce sync.Once
	doneOnce sync.Once
	done     chan struct{}
}

// NewSession creates an idle session. A nil provider selects the host OS
// subsystems.
func NewSession(provider source.Provider, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	logger = logger.With("session", id)
	if provider == nil {
		provider = source.SystemProvider(logger)
	}
	return &Session{
		id:       id,
		logger:   logger,
		provider: provider,
		done:     make(chan struct{}),
	}
}

// ID returns the session's identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Done is closed once the session reaches Stopped, whether by Stop, by
// failure, or by upstream interruption.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Start validates the config and acquires the platform capture source.
//
// Configuration problems (and a non-idle session) are reported
// synchronously, before any OS resource is touched. Everything past
// validation — acquisition failures included — surfaces through onExit,
// never as a return value, because acquisition is asynchronous on some
// platforms. Data callbacks begin only after the OS resource is acquired.
func (s *Session) Start(cfg Config, onAudio AudioDataFunc, onVideo VideoDataFunc, onExit ExitFunc) error {
	if err := s.claim(cfg, onAudio, onVideo, onExit); err != nil {
		return err
	}
	s.acquire(cfg)
	return nil
}

// claim validates the config and moves the session Idle -> Starting without
// touching any OS resource. Callbacks are registered here so a later
// acquisition failure can reach onExit.
func (s *Session) claim(cfg Config, onAudio AudioDataFunc, onVideo VideoDataFunc, onExit ExitFunc) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != StateIdle {
		return ErrAlreadyActive
	}
	s.state.Store(int32(StateStarting))
	s.onAudio = onAudio
	s.onVideo = onVideo
	s.onExit = onExit
	return nil
}

// acquire opens the platform capture source for a claimed session. It can
// block on the OS, and its failure path invokes onExit synchronously, so the
// caller must not hold any lock onExit could need.
func (s *Session) acquire(cfg Config) {
	if cfg.Video == nil {
		s.startPull(cfg)
	} else {
		s.startPush(cfg)
	}
}

func (s *Session) startPull(cfg Config) {
	kind := source.EndpointLoopback
	if cfg.WindowID == MicrophoneWindowID {
		kind = source.EndpointMicrophone
	}

	endpoint, err := s.provider.AudioEndpoint(kind)
	if err != nil {
		s.fail(&AcquisitionError{Err: err})
		return
	}

	pull, err := source.NewPull(source.PullConfig{
		Endpoint:   endpoint,
		Channels:   cfg.Channels,
		SampleRate: cfg.SampleRate,
		OnAudio:    s.deliverAudio,
		OnExit:     s.sourceExit,
		Logger:     s.logger,
	})
	if err != nil {
		s.fail(&AcquisitionError{Err: err})
		return
	}

	s.mu.Lock()
	s.pull = pull
	s.state.Store(int32(StateCapturing))
	pending := s.pendingStop
	s.mu.Unlock()

	s.logger.Info("capture started",
		"mode", "pull",
		"target", cfg.TargetKind().String(),
		"channels", cfg.Channels,
		"sampleRate", cfg.SampleRate,
	)
	pull.Run()

	if pending {
		s.beginStop()
	}
}

func (s *Session) startPush(cfg Config) {
	stream, err := s.provider.MediaStream(source.StreamConfig{
		DisplayID: cfg.DisplayID,
		WindowID:  cfg.WindowID,
		BundleID:  cfg.BundleID,
		FrameRate: cfg.Video.FrameRate,
	})
	if err != nil {
		s.fail(&AcquisitionError{Err: err})
		return
	}

	push, err := source.NewPush(source.PushConfig{
		Stream:     stream,
		Channels:   cfg.Channels,
		SampleRate: cfg.SampleRate,
		Video: &source.PushVideoParams{
			Compress:    cfg.Video.Format != ImageFormatRaw,
			JPEGQuality: cfg.Video.EffectiveJPEGQuality(),
		},
		OnAudio:   s.deliverAudio,
		OnVideo:   s.deliverVideo,
		OnExit:    s.sourceExit,
		OnStopped: s.finishStop,
		Logger:    s.logger,
	})
	if err != nil {
		s.fail(&AcquisitionError{Err: err})
		return
	}

	s.mu.Lock()
	s.push = push
	s.state.Store(int32(StateCapturing))
	pending := s.pendingStop
	s.mu.Unlock()

	s.logger.Info("capture started",
		"mode", "push",
		"target", cfg.TargetKind().String(),
		"channels", cfg.Channels,
		"sampleRate", cfg.SampleRate,
		"frameRate", cfg.Video.FrameRate,
	)

	if pending {
		s.beginStop()
	}
}

// Stop requests shutdown and always acknowledges through onStopped, exactly
// once per call, whether the session was capturing or not. Redundant calls
// are no-ops that still acknowledge. Stop never reports an error.
//
// For pull sessions the call joins the worker, so once onStopped runs no
// data callback can follow. For push sessions the OS confirms teardown
// asynchronously; late in-flight deliveries are discarded silently.
func (s *Session) Stop(onStopped StopFunc) {
	if onStopped == nil {
		onStopped = func() {}
	}

	s.mu.Lock()
	switch s.State() {
	case StateIdle, StateStopped:
		s.mu.Unlock()
		onStopped()
		return
	case StateStarting:
		s.stopWaiters = append(s.stopWaiters, onStopped)
		s.pendingStop = true
		s.mu.Unlock()
		return
	case StateStopping:
		s.stopWaiters = append(s.stopWaiters, onStopped)
		s.mu.Unlock()
		return
	default: // StateCapturing
		s.stopWaiters = append(s.stopWaiters, onStopped)
		s.mu.Unlock()
		s.beginStop()
	}
}

// beginStop transitions Capturing -> Stopping and shuts the source down.
func (s *Session) beginStop() {
	s.mu.Lock()
	if s.State() != StateCapturing {
		s.mu.Unlock()
		return
	}
	s.state.Store(int32(StateStopping))
	pull, push := s.pull, s.push
	s.mu.Unlock()

	switch {
	case pull != nil:
		// Joins the worker; the endpoint is released before this returns.
		pull.Stop()
		s.finishStop()
	case push != nil:
		// Asynchronous: the stream confirms through finishStop.
		push.Stop()
	default:
		s.finishStop()
	}
}

// finishStop resolves the stop completion exactly once and releases every
// caller waiting on it.
func (s *Session) finishStop() {
	s.mu.Lock()
	s.state.Store(int32(StateStopped))
	waiters := s.stopWaiters
	s.stopWaiters = nil
	s.mu.Unlock()

	s.doneOnce.Do(func() { close(s.done) })
	s.logger.Info("capture stopped")
	for _, w := range waiters {
		w()
	}
}

// fail forces the session to Stopped and reports through the exit callback
// (at most once for the session's lifetime). Queued stop waiters are still
// acknowledged: Stop never fails.
func (s *Session) fail(err error) {
	s.mu.Lock()
	s.state.Store(int32(StateStopped))
	waiters := s.stopWaiters
	s.stopWaiters = nil
	onExit := s.onExit
	s.mu.Unlock()

	s.doneOnce.Do(func() { close(s.done) })
	if err != nil {
		s.logger.Error("capture session failed", "err", err)
	}
	s.exitOnce.Do(func() {
		if onExit != nil {
			onExit(err)
		}
	})
	for _, w := range waiters {
		w()
	}
}

// sourceExit handles abnormal source termination: nil means the upstream
// device stopped cleanly, anything else is a runtime failure.
func (s *Session) sourceExit(err error) {
	if err != nil {
		err = &RuntimeError{Err: err}
	}
	s.fail(err)
}

func (s *Session) deliverAudio(chunk frame.AudioChunk) {
	if s.State() != StateCapturing || s.onAudio == nil {
		return
	}
	s.onAudio(chunk)
}

func (s *Session) deliverVideo(f frame.VideoFrame) {
	if s.State() != StateCapturing || s.onVideo == nil {
		return
	}
	s.onVideo(f)
}
