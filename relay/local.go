package relay

import (
	"context"

	"recorder-agent/media"
)

// InProcessLauncher runs the capture surface as a goroutine in the same
// process, connected to the coordinator through an in-memory port pair.
type InProcessLauncher struct {
	Provider media.DeviceProvider
}

func (l *InProcessLauncher) Launch(ctx context.Context) (*Port, error) {
	near, far := Pipe("capture", 16)
	surface := NewCaptureSurface(l.Provider)
	go func() {
		surface.Run(ctx, far)
		far.Close()
	}()
	return near, nil
}
