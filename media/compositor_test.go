package media

import (
	"image"
	"image/color"
	"testing"
	"time"

	"recorder-agent/constant"
)

func solidFrame(w, h int, c color.RGBA) Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return Frame{Image: img, At: time.Now()}
}

func waitFrame(t *testing.T, ch <-chan Frame) Frame {
	t.Helper()
	select {
	case f, ok := <-ch:
		if !ok {
			t.Fatal("output stream closed")
		}
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no composed frame within deadline")
	}
	return Frame{}
}

func TestCompositorRequiresScreenAndDimensions(t *testing.T) {
	screen := NewStream("s", StreamKindDisplay, nil)
	if _, err := NewCompositor(nil, nil, CompositorOptions{Width: 100, Height: 100}); err != ErrCompositorUnavailable {
		t.Errorf("nil screen: err = %v", err)
	}
	if _, err := NewCompositor(screen, nil, CompositorOptions{Width: 0, Height: 100}); err != ErrCompositorUnavailable {
		t.Errorf("zero width: err = %v", err)
	}
}

func TestCompositorDrawsWebcamInset(t *testing.T) {
	screen := NewStream("screen", StreamKindDisplay, nil)
	cam := NewStream("cam", StreamKindCamera, nil)

	comp, err := NewCompositor(screen, cam, CompositorOptions{
		Width:    640,
		Height:   360,
		Position: constant.WebcamPositionTopLeft,
		Shape:    constant.WebcamShapeSquare,
	})
	if err != nil {
		t.Fatalf("NewCompositor: %v", err)
	}
	defer comp.Stop()

	out, cancel := comp.Output().Subscribe()
	defer cancel()

	red := color.RGBA{255, 0, 0, 255}
	green := color.RGBA{0, 255, 0, 255}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				screen.Push(solidFrame(640, 360, red))
				cam.Push(solidFrame(320, 240, green))
				time.Sleep(10 * time.Millisecond)
			}
		}
	}()

	var f Frame
	deadline := time.Now().Add(2 * time.Second)
	for {
		f = waitFrame(t, out)
		// Wait for a frame composed after both sources delivered.
		if f.Image.RGBAAt(camInsetPad+10, camInsetPad+10) == green {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("webcam inset never appeared")
		}
	}

	if got := f.Image.RGBAAt(600, 300); got != red {
		t.Errorf("screen pixel = %v, want %v", got, red)
	}
	if got := f.Image.RGBAAt(camInsetPad+10, camInsetPad+10); got != green {
		t.Errorf("inset pixel = %v, want %v", got, green)
	}
}

func TestCompositorScreenOnly(t *testing.T) {
	screen := NewStream("screen", StreamKindDisplay, nil)
	comp, err := NewCompositor(screen, nil, CompositorOptions{Width: 320, Height: 180})
	if err != nil {
		t.Fatalf("NewCompositor: %v", err)
	}
	defer comp.Stop()

	out, cancel := comp.Output().Subscribe()
	defer cancel()

	blue := color.RGBA{0, 0, 255, 255}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				screen.Push(solidFrame(640, 360, blue))
				time.Sleep(10 * time.Millisecond)
			}
		}
	}()

	f := waitFrame(t, out)
	if got := f.Image.Bounds(); got.Dx() != 320 || got.Dy() != 180 {
		t.Fatalf("output dimensions = %v", got)
	}
	if got := f.Image.RGBAAt(160, 90); got != blue {
		t.Errorf("pixel = %v, want %v", got, blue)
	}
}

func TestCompositorStopClosesOutputNotSources(t *testing.T) {
	screen := NewStream("screen", StreamKindDisplay, nil)
	comp, err := NewCompositor(screen, nil, CompositorOptions{Width: 100, Height: 100})
	if err != nil {
		t.Fatalf("NewCompositor: %v", err)
	}

	comp.Stop()
	comp.Stop()

	if !comp.Output().Stopped() {
		t.Error("output stream still live after stop")
	}
	if screen.Stopped() {
		t.Error("compositor stopped the source stream it does not own")
	}
}
