package capture

import "errors"

var (
	// ErrAlreadyActive is returned synchronously by Start when the session
	// under the handle is not idle. The running capture is unaffected.
	ErrAlreadyActive = errors.New("capture session already active")

	// ErrStaleHandle is returned for operations against a handle that was
	// never issued or has been released.
	ErrStaleHandle = errors.New("unknown or released capture handle")
)

// ConfigError rejects an invalid configuration before any OS resource is
// touched. Always reported synchronously from Start.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid capture config: " + e.Reason
}

// AcquisitionError reports that the OS denied or failed to open the capture
// resource (permission denied, target gone, no backend). Delivered through
// the exit callback; the session never reaches the capturing state.
type AcquisitionError struct {
	Err error
}

func (e *AcquisitionError) Error() string {
	return "capture acquisition failed: " + e.Err.Error()
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// RuntimeError reports a fatal condition after capture began (device
// disconnected, conversion failure, OS stream stop). Delivered through the
// exit callback; the session is forced to the stopped state.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return "capture runtime failure: " + e.Err.Error()
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}
