package source

import (
	"errors"
	"log/slog"
)

// systemProvider hands out the real platform capture boundaries.
type systemProvider struct {
	logger *slog.Logger
}

// SystemProvider returns the Provider backed by the host OS subsystems.
func SystemProvider(logger *slog.Logger) Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &systemProvider{logger: logger}
}

func (p *systemProvider) AudioEndpoint(kind EndpointKind) (AudioEndpoint, error) {
	return NewSystemEndpoint(kind, p.logger), nil
}

func (p *systemProvider) MediaStream(cfg StreamConfig) (MediaStream, error) {
	// Push-model media streams come from an OS screen capture service
	// (ScreenCaptureKit and friends) that binds in above this module.
	// Audio-only capture does not need one.
	return nil, errors.New("no screen capture stream backend available on this host")
}
