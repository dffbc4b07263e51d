package relay

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"recorder-agent/dto"
	"recorder-agent/media"
)

const (
	captureFPS        = 20
	captureResolution = 480
	captureJPEGOption = 90
)

// CaptureSurface is the isolated actor that owns the camera device on the
// coordinator's behalf. It captures frames at a fixed rate, center-crops to
// a square, downsamples, JPEG-encodes, and pushes each frame over its port.
// At most one encode is in flight; a capture tick that fires while an encode
// is still running is skipped entirely, never queued.
type CaptureSurface struct {
	provider media.DeviceProvider
	encode   func(*image.RGBA) ([]byte, error)
}

func NewCaptureSurface(provider media.DeviceProvider) *CaptureSurface {
	return &CaptureSurface{provider: provider, encode: encodeSquare}
}

// Run serves start-capture/stop-capture commands on the port until the port
// closes or the context ends.
func (c *CaptureSurface) Run(ctx context.Context, port *Port) {
	var stopActive context.CancelFunc

	defer func() {
		if stopActive != nil {
			stopActive()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-port.Done():
			return
		case msg := <-port.Recv():
			switch msg.Kind {
			case dto.KindStartCapture:
				if stopActive != nil {
					// Already capturing; start is idempotent.
					continue
				}
				captureCtx, cancel := context.WithCancel(ctx)
				stopActive = cancel
				go c.capture(captureCtx, port, msg.DeviceId)
			case dto.KindStopCapture:
				if stopActive != nil {
					stopActive()
					stopActive = nil
				}
			}
		}
	}
}

func (c *CaptureSurface) capture(ctx context.Context, port *Port, deviceId string) {
	stream, err := c.provider.OpenCamera(ctx, media.DeviceRequest{
		DeviceId: deviceId,
		Width:    captureResolution,
		Height:   captureResolution,
	})
	if err != nil {
		port.Send(dto.RelayMessage{Kind: dto.KindCaptureError, Error: err.Error()})
		return
	}
	defer stream.Stop()

	frames, cancelSub := stream.Subscribe()
	defer cancelSub()

	ticker := time.NewTicker(time.Second / captureFPS)
	defer ticker.Stop()

	var latest *media.Frame
	var encodeInFlight atomic.Bool

	for {
		select {
		case <-ctx.Done():
			return
		case <-port.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			latest = &f
		case <-ticker.C:
			if latest == nil {
				continue
			}
			if !encodeInFlight.CompareAndSwap(false, true) {
				// Prior encode still running; drop this tick to bound memory.
				continue
			}
			frame := latest.Image
			go func() {
				defer encodeInFlight.Store(false)
				payload, err := c.encode(frame)
				if err != nil {
					zerolog.Ctx(ctx).Error().Err(err).Msg("frame encode failed")
					return
				}
				port.Send(dto.RelayMessage{Kind: dto.KindOverlayFrame, Frame: payload})
			}()
		}
	}
}

// encodeSquare center-crops to a square, scales to the fixed capture
// resolution, and compresses to JPEG.
func encodeSquare(src *image.RGBA) ([]byte, error) {
	b := src.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	sx := b.Min.X + (b.Dx()-side)/2
	sy := b.Min.Y + (b.Dy()-side)/2

	out := image.NewRGBA(image.Rect(0, 0, captureResolution, captureResolution))
	for y := 0; y < captureResolution; y++ {
		for x := 0; x < captureResolution; x++ {
			out.Set(x, y, src.At(sx+x*side/captureResolution, sy+y*side/captureResolution))
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: captureJPEGOption}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
