package media

import (
	"context"

	"recorder-agent/constant"
	"recorder-agent/dto"
)

type DeviceInfo struct {
	DeviceId string `json:"deviceId"`
	Label    string `json:"label"`
	Kind     string `json:"kind"`
}

// DisplayRequest asks the platform for a screen-sharing stream with a
// display-surface hint and an ideal resolution.
type DisplayRequest struct {
	Source constant.CaptureSource
	Width  int
	Height int
}

// DeviceRequest asks for a camera or microphone. A non-empty DeviceId is an
// exact-device constraint; empty means the platform default with the given
// ideal dimensions.
type DeviceRequest struct {
	DeviceId string
	Width    int
	Height   int
}

// DeviceProvider negotiates access to capture devices. Implementations wrap
// whatever the host platform offers; failures map onto the typed acquisition
// errors in this package. Opening a device may block on a permission prompt,
// so every call takes a context.
type DeviceProvider interface {
	OpenDisplay(ctx context.Context, req DisplayRequest) (*Stream, error)
	OpenCamera(ctx context.Context, req DeviceRequest) (*Stream, error)
	OpenMicrophone(ctx context.Context, req DeviceRequest) (*Stream, error)
	EnumerateDevices(ctx context.Context) ([]DeviceInfo, error)
}

// PresetDimensions maps a quality preset to ideal capture dimensions.
func PresetDimensions(q constant.QualityPreset) (int, int) {
	if q == constant.Quality720p {
		return 1280, 720
	}
	return 1920, 1080
}

// CaptureSet holds every stream acquired for one session attempt.
type CaptureSet struct {
	Screen     *Stream
	Camera     *Stream
	Microphone *Stream
}

// Release stops every stream in the set. Safe on a partially-filled set and
// safe to call more than once.
func (c *CaptureSet) Release() {
	if c == nil {
		return
	}
	if c.Screen != nil {
		c.Screen.Stop()
	}
	if c.Camera != nil {
		c.Camera.Stop()
	}
	if c.Microphone != nil {
		c.Microphone.Stop()
	}
}

// AcquireForConfig requests every stream the config calls for. Any failure
// releases the streams already acquired in the same attempt and returns the
// error; no partial session is left running.
func AcquireForConfig(ctx context.Context, provider DeviceProvider, cfg dto.RecorderConfig) (*CaptureSet, error) {
	width, height := PresetDimensions(cfg.Quality)
	set := &CaptureSet{}

	screen, err := provider.OpenDisplay(ctx, DisplayRequest{Source: cfg.CaptureSource, Width: width, Height: height})
	if err != nil {
		return nil, err
	}
	set.Screen = screen

	if cfg.WebcamEnabled {
		camera, err := provider.OpenCamera(ctx, DeviceRequest{DeviceId: cfg.VideoDeviceId, Width: 1920, Height: 1080})
		if err != nil {
			set.Release()
			return nil, err
		}
		set.Camera = camera
	}

	if cfg.MicEnabled {
		mic, err := provider.OpenMicrophone(ctx, DeviceRequest{DeviceId: cfg.AudioDeviceId})
		if err != nil {
			set.Release()
			return nil, err
		}
		set.Microphone = mic
	}

	return set, nil
}
