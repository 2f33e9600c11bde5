package capture

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/voibo/desktop-audio-capture/internal/source"
)

// Handle is the opaque identifier a consumer holds instead of a session
// pointer. Handles are never reused: operations against a released handle
// are rejected with ErrStaleHandle rather than touching freed state.
type Handle uuid.UUID

func (h Handle) String() string {
	return uuid.UUID(h).String()
}

// Registry maps handles to sessions and enforces one active capture per
// handle. Sessions are single-use; starting again on the same handle after a
// stop creates a fresh session under the hood.
//
// All methods are safe for concurrent use.
type Registry struct {
	logger   *slog.Logger
	provider source.Provider

	mu    sync.Mutex
	slots map[Handle]*registrySlot
}

type registrySlot struct {
	mu      sync.Mutex
	current *Session
}

// NewRegistry creates an empty registry. A nil provider selects the host OS
// subsystems.
func NewRegistry(provider source.Provider, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		provider = source.SystemProvider(logger)
	}
	return &Registry{
		logger:   logger,
		provider: provider,
		slots:    make(map[Handle]*registrySlot),
	}
}

// NewHandle allocates a handle with no active session.
func (r *Registry) NewHandle() Handle {
	h := Handle(uuid.New())
	r.mu.Lock()
	r.slots[h] = &registrySlot{}
	r.mu.Unlock()
	r.logger.Debug("capture handle created", "handle", h)
	return h
}

// Start begins a capture under the handle. It fails fast with
// ErrAlreadyActive if a capture is already running there, with no side
// effects on the running capture. onExit may call back into the registry.
func (r *Registry) Start(h Handle, cfg Config, onAudio AudioDataFunc, onVideo VideoDataFunc, onExit ExitFunc) error {
	slot, ok := r.slot(h)
	if !ok {
		return ErrStaleHandle
	}

	slot.mu.Lock()
	if s := slot.current; s != nil {
		switch s.State() {
		case StateStarting, StateCapturing, StateStopping:
			slot.mu.Unlock()
			return ErrAlreadyActive
		}
	}

	session := NewSession(r.provider, r.logger)
	if err := session.claim(cfg, onAudio, onVideo, onExit); err != nil {
		slot.mu.Unlock()
		return err
	}
	slot.current = session
	slot.mu.Unlock()

	// Acquisition runs outside the slot lock: it can block on the OS, and
	// its failure path invokes onExit, which may re-enter the registry.
	session.acquire(cfg)
	return nil
}

// Stop requests shutdown of the handle's capture. Idempotent: with nothing
// running, onStopped is still acknowledged. The only error is a stale
// handle.
func (r *Registry) Stop(h Handle, onStopped StopFunc) error {
	slot, ok := r.slot(h)
	if !ok {
		return ErrStaleHandle
	}

	slot.mu.Lock()
	session := slot.current
	slot.mu.Unlock()

	if session == nil {
		if onStopped != nil {
			onStopped()
		}
		return nil
	}
	session.Stop(onStopped)
	return nil
}

// Session returns the session currently under the handle, or nil.
func (r *Registry) Session(h Handle) *Session {
	slot, ok := r.slot(h)
	if !ok {
		return nil
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.current
}

// Release stops whatever runs under the handle and retires the handle.
// Further operations against it return ErrStaleHandle.
func (r *Registry) Release(h Handle, onStopped StopFunc) error {
	r.mu.Lock()
	slot, ok := r.slots[h]
	if ok {
		delete(r.slots, h)
	}
	r.mu.Unlock()
	if !ok {
		return ErrStaleHandle
	}

	slot.mu.Lock()
	session := slot.current
	slot.mu.Unlock()

	r.logger.Debug("capture handle released", "handle", h)
	if session == nil {
		if onStopped != nil {
			onStopped()
		}
		return nil
	}
	session.Stop(onStopped)
	return nil
}

func (r *Registry) slot(h Handle) (*registrySlot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.slots[h]
	return slot, ok
}
