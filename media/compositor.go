package media

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"recorder-agent/constant"
)

const (
	compositorFPS = 30
	camInsetSize  = 240
	camInsetPad   = 16
)

type CompositorOptions struct {
	Width    int
	Height   int
	Position constant.WebcamPosition
	Shape    constant.WebcamShape
}

// Compositor merges a screen stream and an optional webcam stream into one
// rendered output stream at a fixed frame rate. Used only when the recording
// must be a single flattened video; with a floating companion surface the
// webcam stays separate and the primary recording is screen-only.
type Compositor struct {
	out      *Stream
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	cancelScreenSub func()
	cancelCamSub    func()
}

// NewCompositor starts the draw loop immediately. The webcam stream may be
// nil. Fails with ErrCompositorUnavailable when no drawable target can be
// produced for the requested dimensions.
func NewCompositor(screen *Stream, webcam *Stream, opts CompositorOptions) (*Compositor, error) {
	if screen == nil || opts.Width <= 0 || opts.Height <= 0 {
		return nil, ErrCompositorUnavailable
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Compositor{
		out:    NewStream(screen.ID()+"+composite", StreamKindComposite, nil),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	screenCh, cancelScreen := screen.Subscribe()
	c.cancelScreenSub = cancelScreen

	var camCh <-chan Frame
	if webcam != nil {
		camCh, c.cancelCamSub = webcam.Subscribe()
	}

	go c.drawLoop(ctx, screenCh, camCh, opts)
	return c, nil
}

// Output is the composed stream. Stopping the compositor stops it.
func (c *Compositor) Output() *Stream {
	return c.out
}

// Stop halts the per-frame draw loop and releases the intermediate
// subscriptions. It does not stop the source streams. Idempotent.
func (c *Compositor) Stop() {
	c.stopOnce.Do(func() {
		c.cancel()
		<-c.done
		c.cancelScreenSub()
		if c.cancelCamSub != nil {
			c.cancelCamSub()
		}
		c.out.Stop()
	})
}

func (c *Compositor) drawLoop(ctx context.Context, screenCh, camCh <-chan Frame, opts CompositorOptions) {
	defer close(c.done)

	canvas := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	ticker := time.NewTicker(time.Second / compositorFPS)
	defer ticker.Stop()

	var lastScreen, lastCam *Frame

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-screenCh:
			if !ok {
				screenCh = nil
				continue
			}
			lastScreen = &f
		case f, ok := <-camCh:
			if !ok {
				camCh = nil
				continue
			}
			lastCam = &f
		case now := <-ticker.C:
			if lastScreen == nil {
				continue
			}
			drawScaled(canvas, canvas.Bounds(), lastScreen.Image)
			if lastCam != nil {
				drawWebcamInset(canvas, lastCam.Image, opts.Position, opts.Shape)
			}
			out := image.NewRGBA(canvas.Bounds())
			copy(out.Pix, canvas.Pix)
			c.out.Push(Frame{Image: out, At: now})
		}
	}
}

// drawWebcamInset draws the webcam frame as a fixed-size inset in the
// configured corner. Circle shape is clipped to a circular path with a
// light stroke border.
func drawWebcamInset(canvas *image.RGBA, cam image.Image, position constant.WebcamPosition, shape constant.WebcamShape) {
	bounds := canvas.Bounds()

	x := camInsetPad
	if position == constant.WebcamPositionTopRight || position == constant.WebcamPositionBottomRight {
		x = bounds.Dx() - camInsetSize - camInsetPad
	}
	y := camInsetPad
	if position == constant.WebcamPositionBottomLeft || position == constant.WebcamPositionBottomRight {
		y = bounds.Dy() - camInsetSize - camInsetPad
	}

	inset := image.NewRGBA(image.Rect(0, 0, camInsetSize, camInsetSize))
	drawScaled(inset, inset.Bounds(), cam)

	dst := image.Rect(x, y, x+camInsetSize, y+camInsetSize)
	if shape == constant.WebcamShapeCircle {
		mask := &circleMask{r: camInsetSize / 2}
		draw.DrawMask(canvas, dst, inset, image.Point{}, mask, image.Point{}, draw.Over)
		strokeCircle(canvas, x+camInsetSize/2, y+camInsetSize/2, camInsetSize/2, color.RGBA{255, 255, 255, 128})
	} else {
		draw.Draw(canvas, dst, inset, image.Point{}, draw.Over)
	}
}

// drawScaled does a nearest-neighbor scale of src into the dst rectangle.
func drawScaled(dst *image.RGBA, rect image.Rectangle, src image.Image) {
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	dw, dh := rect.Dx(), rect.Dy()
	if sw == 0 || sh == 0 || dw == 0 || dh == 0 {
		return
	}
	for dy := 0; dy < dh; dy++ {
		sy := sb.Min.Y + dy*sh/dh
		for dx := 0; dx < dw; dx++ {
			sx := sb.Min.X + dx*sw/dw
			dst.Set(rect.Min.X+dx, rect.Min.Y+dy, src.At(sx, sy))
		}
	}
}

// circleMask is an alpha mask selecting the inscribed circle of a
// (2r)x(2r) square.
type circleMask struct {
	r int
}

func (m *circleMask) ColorModel() color.Model {
	return color.AlphaModel
}

func (m *circleMask) Bounds() image.Rectangle {
	return image.Rect(0, 0, 2*m.r, 2*m.r)
}

func (m *circleMask) At(x, y int) color.Color {
	dx := x - m.r
	dy := y - m.r
	if dx*dx+dy*dy <= m.r*m.r {
		return color.Alpha{A: 255}
	}
	return color.Alpha{}
}

func strokeCircle(dst *image.RGBA, cx, cy, r int, col color.RGBA) {
	inner := (r - 2) * (r - 2)
	outer := r * r
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			d := x*x + y*y
			if d >= inner && d <= outer {
				dst.Set(cx+x, cy+y, col)
			}
		}
	}
}
