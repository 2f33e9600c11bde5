package capture

import (
	"fmt"

	"github.com/voibo/desktop-audio-capture/internal/encode"
)

// TargetKind classifies what a session captures from.
type TargetKind int

const (
	// No explicit target: capture the entire display (and system audio).
	TargetEntireDisplay TargetKind = iota
	TargetDisplay
	TargetWindow
	TargetApplication
)

func (k TargetKind) String() string {
	switch k {
	case TargetEntireDisplay:
		return "entire display"
	case TargetDisplay:
		return "display"
	case TargetWindow:
		return "window"
	case TargetApplication:
		return "application"
	}
	return fmt.Sprintf("TargetKind(%d)", int(k))
}

// MicrophoneWindowID is the reserved window id that redirects a session's
// audio to the default microphone instead of system-audio loopback.
const MicrophoneWindowID = 101

// Quality is an enumerated video quality tier.
type Quality int

const (
	QualityHigh Quality = iota
	QualityMedium
	QualityLow
)

// JPEGQuality maps the tier to a numeric JPEG quality.
func (q Quality) JPEGQuality() int {
	switch q {
	case QualityMedium:
		return encode.QualityMedium
	case QualityLow:
		return encode.QualityLow
	}
	return encode.QualityHigh
}

// ImageFormat selects how video frames are delivered.
type ImageFormat string

const (
	// JPEG-compressed frames, sized by the quality setting.
	ImageFormatJPEG ImageFormat = "jpeg"
	// Uncompressed tightly packed RGBA.
	ImageFormatRaw ImageFormat = "raw"
)

// VideoConfig holds the parameters of a video-capable session.
type VideoConfig struct {
	// Frames per second; 0 selects the default rate of the stream backend.
	FrameRate float64

	// Quality is the enumerated tier. QualityValue, when positive, is an
	// explicit numeric JPEG quality that overrides the tier.
	Quality      Quality
	QualityValue int

	// Format defaults to ImageFormatJPEG when empty.
	Format ImageFormat
}

// EffectiveJPEGQuality resolves the tier/override precedence: the numeric
// value wins whenever it is positive.
func (v *VideoConfig) EffectiveJPEGQuality() int {
	if v.QualityValue > 0 {
		return v.QualityValue
	}
	return v.Quality.JPEGQuality()
}

// Config describes one capture session. It is immutable once handed to
// Start.
//
// At most one of DisplayID, WindowID and BundleID may be set; all zero means
// the entire display. The reserved window id MicrophoneWindowID selects
// microphone audio rather than an actual window.
type Config struct {
	// Delivered audio format. Channels must be 1 or 2; a stereo device
	// downmixed to one channel delivers the per-frame mean (L+R)/2, which
	// is lossy and irreversible.
	Channels   int
	SampleRate int

	// Capture target selector.
	DisplayID uint32
	WindowID  uint32
	BundleID  string

	// Video is nil for audio-only sessions.
	Video *VideoConfig
}

// TargetKind reports which selector the config carries.
func (c *Config) TargetKind() TargetKind {
	switch {
	case c.DisplayID != 0:
		return TargetDisplay
	case c.WindowID != 0:
		return TargetWindow
	case c.BundleID != "":
		return TargetApplication
	}
	return TargetEntireDisplay
}

// Validate rejects configs before any OS resource is touched.
func (c *Config) Validate() error {
	if c.Channels < 1 || c.Channels > 2 {
		return &ConfigError{Reason: fmt.Sprintf("unsupported channel count %d, only 1-2 channels supported", c.Channels)}
	}
	if c.SampleRate <= 0 {
		return &ConfigError{Reason: fmt.Sprintf("invalid sample rate: %d", c.SampleRate)}
	}

	selectors := 0
	if c.DisplayID != 0 {
		selectors++
	}
	if c.WindowID != 0 {
		selectors++
	}
	if c.BundleID != "" {
		selectors++
	}
	if selectors > 1 {
		return &ConfigError{Reason: "at most one capture target may be selected"}
	}

	if v := c.Video; v != nil {
		if v.FrameRate < 0 {
			return &ConfigError{Reason: fmt.Sprintf("invalid frame rate: %v", v.FrameRate)}
		}
		if v.QualityValue < 0 || v.QualityValue > 100 {
			return &ConfigError{Reason: fmt.Sprintf("quality value out of range: %d", v.QualityValue)}
		}
		switch v.Format {
		case "", ImageFormatJPEG, ImageFormatRaw:
		default:
			return &ConfigError{Reason: fmt.Sprintf("unknown image format: %q", v.Format)}
		}
	}
	return nil
}
