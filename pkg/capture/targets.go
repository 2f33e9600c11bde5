package capture

import "github.com/voibo/desktop-audio-capture/internal/source"

// TargetInfo is one enumerable capture target: plain metadata consumed only
// to fill in a Config's target selector.
type TargetInfo struct {
	Kind      TargetKind
	DisplayID uint32
	WindowID  uint32
	Title     string
}

// AudioDeviceInfo is one enumerable audio capture device, informational
// only.
type AudioDeviceInfo struct {
	Name string
	ID   string
}

// EnumerateTargets lists the capture targets this host offers. The entire
// display and the microphone pseudo target are always present; window and
// application enumeration needs a screen capture backend above this module.
func EnumerateTargets() []TargetInfo {
	return []TargetInfo{
		{Kind: TargetEntireDisplay, Title: "Entire display"},
		{Kind: TargetWindow, WindowID: MicrophoneWindowID, Title: "Default microphone"},
	}
}

// EnumerateAudioDevices lists the audio capture devices the platform
// reports.
func EnumerateAudioDevices() ([]AudioDeviceInfo, error) {
	endpoints, err := source.ListAudioEndpoints()
	if err != nil {
		return nil, err
	}
	devices := make([]AudioDeviceInfo, 0, len(endpoints))
	for _, ep := range endpoints {
		devices = append(devices, AudioDeviceInfo{Name: ep.Name, ID: ep.ID})
	}
	return devices, nil
}
