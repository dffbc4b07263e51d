package relay

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"sync/atomic"
	"testing"
	"time"

	"recorder-agent/dto"
	"recorder-agent/media"
)

func startCaptureSurface(t *testing.T, provider media.DeviceProvider) *Port {
	t.Helper()
	return runCaptureSurface(t, NewCaptureSurface(provider))
}

func runCaptureSurface(t *testing.T, surface *CaptureSurface) *Port {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	near, far := Pipe("capture", 32)
	done := make(chan struct{})
	go func() {
		surface.Run(ctx, far)
		close(done)
	}()
	t.Cleanup(func() {
		near.Close()
		cancel()
		<-done
	})
	return near
}

func collect(port *Port, d time.Duration) []dto.RelayMessage {
	deadline := time.After(d)
	var msgs []dto.RelayMessage
	for {
		select {
		case msg := <-port.Recv():
			msgs = append(msgs, msg)
		case <-deadline:
			return msgs
		}
	}
}

func TestCaptureSurfaceStreamsJPEGFrames(t *testing.T) {
	port := startCaptureSurface(t, &media.SyntheticProvider{FPS: 30})

	port.Send(dto.RelayMessage{Kind: dto.KindStartCapture})

	msgs := collect(port, 500*time.Millisecond)
	var frames int
	for _, m := range msgs {
		if m.Kind != dto.KindOverlayFrame {
			t.Errorf("unexpected message kind %s", m.Kind)
			continue
		}
		frames++
		if !bytes.HasPrefix(m.Frame, []byte{0xff, 0xd8}) {
			t.Error("frame payload is not a JPEG")
			continue
		}
		img, err := jpeg.Decode(bytes.NewReader(m.Frame))
		if err != nil {
			t.Fatalf("frame does not decode: %v", err)
		}
		if b := img.Bounds(); b.Dx() != captureResolution || b.Dy() != captureResolution {
			t.Fatalf("frame is %dx%d, want %dx%d square", b.Dx(), b.Dy(), captureResolution, captureResolution)
		}
	}
	if frames == 0 {
		t.Fatal("no frames received")
	}
	// 20 fps cap over half a second, generous slack for scheduling.
	if frames > captureFPS {
		t.Errorf("received %d frames in 500ms, capture rate not bounded", frames)
	}
}

func TestCaptureSurfaceReportsOpenFailure(t *testing.T) {
	port := startCaptureSurface(t, &media.SyntheticProvider{DenyPermission: true})

	port.Send(dto.RelayMessage{Kind: dto.KindStartCapture})

	select {
	case msg := <-port.Recv():
		if msg.Kind != dto.KindCaptureError {
			t.Fatalf("kind = %s, want capture-error", msg.Kind)
		}
		if msg.Error == "" {
			t.Error("capture-error without a message")
		}
	case <-time.After(time.Second):
		t.Fatal("no capture-error received")
	}
}

func TestCaptureSurfaceStopHaltsFrames(t *testing.T) {
	port := startCaptureSurface(t, &media.SyntheticProvider{FPS: 30})

	port.Send(dto.RelayMessage{Kind: dto.KindStartCapture})
	if msgs := collect(port, 300*time.Millisecond); len(msgs) == 0 {
		t.Fatal("capture never produced frames")
	}

	port.Send(dto.RelayMessage{Kind: dto.KindStopCapture})
	// Drain anything already in flight, then expect silence.
	collect(port, 200*time.Millisecond)
	if late := collect(port, 300*time.Millisecond); len(late) != 0 {
		t.Errorf("%d frames arrived after stop", len(late))
	}
}

func TestCaptureSurfaceStartIsIdempotent(t *testing.T) {
	port := startCaptureSurface(t, &media.SyntheticProvider{FPS: 10})

	port.Send(dto.RelayMessage{Kind: dto.KindStartCapture})
	port.Send(dto.RelayMessage{Kind: dto.KindStartCapture})

	// A second start must not double the frame rate: over one second a
	// single 10fps-source capture stays well under the 20fps tick cap.
	msgs := collect(port, time.Second)
	if len(msgs) > captureFPS+5 {
		t.Errorf("%d frames in 1s after double start, want single capture loop", len(msgs))
	}
}

func TestCaptureTickDroppedWhileEncodeInFlight(t *testing.T) {
	surface := NewCaptureSurface(&media.SyntheticProvider{FPS: 30})
	var encodes atomic.Int32
	surface.encode = func(*image.RGBA) ([]byte, error) {
		encodes.Add(1)
		time.Sleep(150 * time.Millisecond)
		return []byte{0xff, 0xd8, 0xff, 0xd9}, nil
	}
	port := runCaptureSurface(t, surface)

	port.Send(dto.RelayMessage{Kind: dto.KindStartCapture})
	frames := len(collect(port, 600*time.Millisecond))

	port.Send(dto.RelayMessage{Kind: dto.KindStopCapture})
	// A queued design would keep draining encodes here; a dropping one has
	// nothing left.
	frames += len(collect(port, 500*time.Millisecond))

	// Roughly 12 ticks fired over 600ms, but an encode occupies 150ms and
	// blocks the ticks under it.
	if frames > 5 {
		t.Errorf("received %d frames with a 150ms encoder, ticks were queued not dropped", frames)
	}
	if n := encodes.Load(); n > 5 {
		t.Errorf("%d encodes started with one allowed in flight", n)
	}
	if frames == 0 {
		t.Fatal("no frames received")
	}
}

func TestEncodeSquareCropsToCenterSquare(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 640, 480))
	payload, err := encodeSquare(src)
	if err != nil {
		t.Fatalf("encodeSquare: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != b.Dy() {
		t.Errorf("encoded frame %dx%d is not square", b.Dx(), b.Dy())
	}
}
