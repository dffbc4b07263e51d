package media

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync/atomic"
	"time"
)

// SyntheticProvider generates test-pattern streams in place of real platform
// capture. Real device backends are host integrations supplied by the
// embedding application; the agent binary and the test suite run on this one.
type SyntheticProvider struct {
	FPS int

	// Optional fault knobs.
	DenyPermission bool
	KnownDevices   []DeviceInfo
	BusyDevices    map[string]bool

	nextID atomic.Int64
}

func NewSyntheticProvider() *SyntheticProvider {
	return &SyntheticProvider{FPS: 30}
}

func (p *SyntheticProvider) fps() int {
	if p.FPS <= 0 {
		return 30
	}
	return p.FPS
}

func (p *SyntheticProvider) checkDevice(deviceId string) error {
	if p.DenyPermission {
		return ErrPermissionDenied
	}
	if deviceId == "" {
		return nil
	}
	if p.BusyDevices[deviceId] {
		return ErrDeviceInUse
	}
	if len(p.KnownDevices) == 0 {
		return nil
	}
	for _, d := range p.KnownDevices {
		if d.DeviceId == deviceId {
			return nil
		}
	}
	return ErrDeviceNotFound
}

func (p *SyntheticProvider) OpenDisplay(_ context.Context, req DisplayRequest) (*Stream, error) {
	if p.DenyPermission {
		return nil, ErrPermissionDenied
	}
	id := fmt.Sprintf("display-%s-%d", req.Source, p.nextID.Add(1))
	return p.startPattern(id, StreamKindDisplay, req.Width, req.Height), nil
}

func (p *SyntheticProvider) OpenCamera(_ context.Context, req DeviceRequest) (*Stream, error) {
	if err := p.checkDevice(req.DeviceId); err != nil {
		return nil, err
	}
	id := fmt.Sprintf("camera-%d", p.nextID.Add(1))
	w, h := req.Width, req.Height
	if w <= 0 || h <= 0 {
		w, h = 640, 480
	}
	return p.startPattern(id, StreamKindCamera, w, h), nil
}

func (p *SyntheticProvider) OpenMicrophone(_ context.Context, req DeviceRequest) (*Stream, error) {
	if err := p.checkDevice(req.DeviceId); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	stream := NewStream(fmt.Sprintf("microphone-%d", p.nextID.Add(1)), StreamKindMicrophone, cancel)
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		silence := make([]byte, 1600)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stream.PushSamples(silence)
			}
		}
	}()
	return stream, nil
}

func (p *SyntheticProvider) EnumerateDevices(_ context.Context) ([]DeviceInfo, error) {
	if len(p.KnownDevices) > 0 {
		return p.KnownDevices, nil
	}
	return []DeviceInfo{
		{DeviceId: "synthetic-cam", Label: "Synthetic Camera", Kind: "videoinput"},
		{DeviceId: "synthetic-mic", Label: "Synthetic Microphone", Kind: "audioinput"},
	}, nil
}

// startPattern pushes a moving gradient so consecutive frames differ.
func (p *SyntheticProvider) startPattern(id string, kind StreamKind, width, height int) *Stream {
	if width <= 0 || height <= 0 {
		width, height = 1280, 720
	}
	ctx, cancel := context.WithCancel(context.Background())
	stream := NewStream(id, kind, cancel)

	go func() {
		ticker := time.NewTicker(time.Second / time.Duration(p.fps()))
		defer ticker.Stop()
		tick := 0
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				img := image.NewRGBA(image.Rect(0, 0, width, height))
				for y := 0; y < height; y += 4 {
					for x := 0; x < width; x += 4 {
						c := color.RGBA{uint8((x + tick) & 0xff), uint8((y + tick) & 0xff), uint8(tick & 0xff), 255}
						for dy := 0; dy < 4 && y+dy < height; dy++ {
							for dx := 0; dx < 4 && x+dx < width; dx++ {
								img.SetRGBA(x+dx, y+dy, c)
							}
						}
					}
				}
				tick++
				stream.Push(Frame{Image: img, At: now})
			}
		}
	}()
	return stream
}
