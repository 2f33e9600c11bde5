package source

import (
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"
)

// The platform audio subsystem wants process-wide initialization before any
// endpoint opens (the COM-apartment analog). One shared context is held for
// as long as at least one endpoint or enumeration is using it, guarded by a
// reference count: first acquire initializes, last release tears down.
var (
	audioContextMu   sync.Mutex
	audioContextRefs int
	audioContext     *malgo.AllocatedContext
)

func acquireAudioContext() (*malgo.AllocatedContext, error) {
	audioContextMu.Lock()
	defer audioContextMu.Unlock()

	if audioContextRefs == 0 {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
			slog.Debug("miniaudio", "message", message)
		})
		if err != nil {
			return nil, err
		}
		audioContext = ctx
	}
	audioContextRefs++
	return audioContext, nil
}

func releaseAudioContext() {
	audioContextMu.Lock()
	defer audioContextMu.Unlock()

	audioContextRefs--
	if audioContextRefs > 0 {
		return
	}
	audioContextRefs = 0
	if audioContext != nil {
		if err := audioContext.Uninit(); err != nil {
			slog.Warn("audio context teardown failed", "err", err)
		}
		audioContext.Free()
		audioContext = nil
	}
}
