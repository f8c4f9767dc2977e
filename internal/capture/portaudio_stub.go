//go:build !portaudio

package capture

import "fmt"

// NewPortAudioDevice reports that this binary was built without PortAudio.
// Rebuild with -tags portaudio to record from the default input device.
func NewPortAudioDevice(sampleRate int) (Device, error) {
	return nil, fmt.Errorf("%w: built without portaudio support", ErrDeviceUnavailable)
}
