package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsMinimalConfig(t *testing.T) {
	cfg := Config{Channels: 2, SampleRate: 48000}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, TargetEntireDisplay, cfg.TargetKind())
}

func TestValidateRejectsBadAudioParams(t *testing.T) {
	cases := []Config{
		{Channels: 0, SampleRate: 48000},
		{Channels: 3, SampleRate: 48000},
		{Channels: -1, SampleRate: 48000},
		{Channels: 1, SampleRate: 0},
		{Channels: 1, SampleRate: -44100},
	}
	for _, cfg := range cases {
		err := cfg.Validate()
		var confErr *ConfigError
		require.ErrorAs(t, err, &confErr, "config %+v", cfg)
	}
}

func TestValidateEnforcesSingleTarget(t *testing.T) {
	valid := []Config{
		{Channels: 1, SampleRate: 48000},
		{Channels: 1, SampleRate: 48000, DisplayID: 1},
		{Channels: 1, SampleRate: 48000, WindowID: 42},
		{Channels: 1, SampleRate: 48000, BundleID: "com.example.app"},
	}
	for _, cfg := range valid {
		assert.NoError(t, cfg.Validate(), "config %+v", cfg)
	}

	invalid := []Config{
		{Channels: 1, SampleRate: 48000, DisplayID: 1, WindowID: 42},
		{Channels: 1, SampleRate: 48000, DisplayID: 1, BundleID: "com.example.app"},
		{Channels: 1, SampleRate: 48000, WindowID: 42, BundleID: "com.example.app"},
		{Channels: 1, SampleRate: 48000, DisplayID: 1, WindowID: 42, BundleID: "com.example.app"},
	}
	for _, cfg := range invalid {
		var confErr *ConfigError
		require.ErrorAs(t, cfg.Validate(), &confErr, "config %+v", cfg)
	}
}

func TestTargetKindSelection(t *testing.T) {
	assert.Equal(t, TargetDisplay, (&Config{DisplayID: 2}).TargetKind())
	assert.Equal(t, TargetWindow, (&Config{WindowID: 7}).TargetKind())
	assert.Equal(t, TargetApplication, (&Config{BundleID: "com.example"}).TargetKind())
	assert.Equal(t, TargetEntireDisplay, (&Config{}).TargetKind())
}

func TestVideoConfigValidation(t *testing.T) {
	good := Config{Channels: 1, SampleRate: 48000, Video: &VideoConfig{FrameRate: 30, Quality: QualityMedium}}
	assert.NoError(t, good.Validate())

	bad := []Config{
		{Channels: 1, SampleRate: 48000, Video: &VideoConfig{FrameRate: -1}},
		{Channels: 1, SampleRate: 48000, Video: &VideoConfig{QualityValue: -5}},
		{Channels: 1, SampleRate: 48000, Video: &VideoConfig{QualityValue: 101}},
		{Channels: 1, SampleRate: 48000, Video: &VideoConfig{Format: "png"}},
	}
	for _, cfg := range bad {
		var confErr *ConfigError
		require.ErrorAs(t, cfg.Validate(), &confErr, "config %+v", cfg)
	}
}

func TestJPEGQualityPrecedence(t *testing.T) {
	// The numeric override wins whenever it is positive.
	assert.Equal(t, 95, (&VideoConfig{Quality: QualityHigh}).EffectiveJPEGQuality())
	assert.Equal(t, 85, (&VideoConfig{Quality: QualityMedium}).EffectiveJPEGQuality())
	assert.Equal(t, 75, (&VideoConfig{Quality: QualityLow}).EffectiveJPEGQuality())
	assert.Equal(t, 60, (&VideoConfig{Quality: QualityHigh, QualityValue: 60}).EffectiveJPEGQuality())
	assert.Equal(t, 95, (&VideoConfig{Quality: QualityHigh, QualityValue: 0}).EffectiveJPEGQuality())
}
