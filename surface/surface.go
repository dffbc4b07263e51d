package surface

import (
	"sync"

	"recorder-agent/constant"
	"recorder-agent/media"
)

// Host opens platform-level always-on-top windows. A nil Host, or an OpenWindow
// failure, makes the controller fall back to an in-page draggable overlay
// bound to the current tab's viewport.
type Host interface {
	OpenWindow(opts WindowOptions) (Window, error)
}

type WindowOptions struct {
	Width  float64
	Height float64
}

// Window is one floating surface provided by the host platform.
type Window interface {
	MoveTo(x, y float64)
	ResizeTo(w, h float64)
	Close()
}

// Transport receives the surface's control-button presses. Implementations
// must treat illegal transitions as no-ops.
type Transport interface {
	Pause()
	Resume()
	Stop()
	Restart()
}

// Mode is the surface's current interaction state.
type Mode int

const (
	ModeIdle Mode = iota
	ModeDragging
	ModeResizing
)

// CameraView selects what the surface renders: the live camera feed, a
// static profile placeholder, or nothing (controls only).
type CameraView string

const (
	ViewCamera  CameraView = "camera"
	ViewProfile CameraView = "profile"
	ViewHidden  CameraView = "hidden"
)

type Options struct {
	Size     constant.SizePreset
	Shape    constant.WebcamShape
	OnClose  func()
	OnResize func(constant.SizePreset)
}

// Surface mirrors the live camera feed next to transport controls, either in
// a floating always-on-top window or as an in-page overlay. It holds a
// subscription to the camera stream but never stops the underlying track;
// closing drops the subscription and fires OnClose so the owner stays
// consistent.
type Surface struct {
	mu sync.Mutex

	shape     constant.WebcamShape
	preset    constant.SizePreset
	mode      Mode
	view      CameraView
	floating  bool
	win       Window
	transport Transport
	onClose   func()
	onResize  func(constant.SizePreset)

	width  float64
	height float64
	x, y   float64

	// Pointer-delta drag bookkeeping, valid only in ModeDragging.
	dragStartX, dragStartY float64
	winStartX, winStartY   float64

	frames    <-chan media.Frame
	cancelSub func()
	lastFrame *media.Frame
	closed    bool
}

// Open attaches a surface to a live camera stream. host may be nil.
func Open(stream *media.Stream, host Host, transport Transport, opts Options) *Surface {
	if opts.Size == "" {
		opts.Size = constant.SizeMedium
	}
	if opts.Shape == "" {
		opts.Shape = constant.WebcamShapeCircle
	}

	s := &Surface{
		shape:     opts.Shape,
		preset:    opts.Size,
		view:      ViewCamera,
		transport: transport,
		onClose:   opts.OnClose,
		onResize:  opts.OnResize,
	}

	if host != nil {
		d := PresetSize(opts.Size, opts.Shape)
		if win, err := host.OpenWindow(WindowOptions{Width: d.Width, Height: d.Height}); err == nil {
			s.win = win
			s.floating = true
			s.width, s.height = d.Width, d.Height
		}
	}
	if !s.floating {
		side := overlayPresets[opts.Size]
		s.width, s.height = side, side
	}

	if stream != nil {
		s.frames, s.cancelSub = stream.Subscribe()
		go s.consume()
	}
	return s
}

// consume keeps the latest frame so the surface always renders live video,
// not a periodically sampled snapshot.
func (s *Surface) consume() {
	for f := range s.frames {
		s.mu.Lock()
		frame := f
		s.lastFrame = &frame
		s.mu.Unlock()
	}
}

func (s *Surface) Floating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.floating
}

func (s *Surface) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Surface) Size() Dimensions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Dimensions{Width: s.width, Height: s.height}
}

func (s *Surface) Position() (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.x, s.y
}

func (s *Surface) Preset() constant.SizePreset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preset
}

// LatestFrame is the most recent camera frame, or nil before the first one
// or while the camera view is switched away.
func (s *Surface) LatestFrame() *media.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view != ViewCamera {
		return nil
	}
	return s.lastFrame
}

// SetView switches between the live feed, the profile placeholder, and a
// hidden video area. The subscription stays live so switching back to the
// camera view resumes instantly.
func (s *Surface) SetView(v CameraView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch v {
	case ViewCamera, ViewProfile, ViewHidden:
		s.view = v
	}
}

func (s *Surface) View() CameraView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// ResizeTo applies a size preset, preserving the shape's aspect ratio and
// the minimum floor.
func (s *Surface) ResizeTo(preset constant.SizePreset) {
	s.mu.Lock()
	if s.closed || preset == s.preset {
		s.mu.Unlock()
		return
	}
	s.preset = preset

	var d Dimensions
	if s.floating {
		d = PresetSize(preset, s.shape)
	} else {
		side := overlayPresets[preset]
		d = Dimensions{Width: side, Height: side}
	}
	s.width, s.height = d.Width, d.Height
	win := s.win
	onResize := s.onResize
	s.mu.Unlock()

	if win != nil {
		win.ResizeTo(d.Width, d.Height)
	}
	if onResize != nil {
		onResize(preset)
	}
}

// HostResized handles a manual drag-resize reported by the platform window.
// If the new size drifts from the required aspect ratio by more than the
// pixel tolerance, or falls below the shape's floor, the surface corrects
// itself.
func (s *Surface) HostResized(w, h float64) {
	s.mu.Lock()
	if s.closed || !s.floating || s.mode == ModeResizing {
		s.mu.Unlock()
		return
	}
	widthChanged := abs(w-s.width) > abs(h-s.height)
	d, corrected := correctAspect(w, h, widthChanged, s.shape)
	s.width, s.height = d.Width, d.Height
	win := s.win
	if corrected {
		s.mode = ModeResizing
	}
	s.mu.Unlock()

	if corrected && win != nil {
		win.ResizeTo(d.Width, d.Height)
		s.mu.Lock()
		s.mode = ModeIdle
		s.mu.Unlock()
	}
}

// PointerDown begins a drag unless the pointer landed on a control.
func (s *Surface) PointerDown(x, y float64, onControls bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || onControls || s.mode != ModeIdle {
		return
	}
	s.mode = ModeDragging
	s.dragStartX, s.dragStartY = x, y
	s.winStartX, s.winStartY = s.x, s.y
}

// PointerMove repositions the surface by the pointer delta while dragging.
func (s *Surface) PointerMove(x, y float64) {
	s.mu.Lock()
	if s.mode != ModeDragging {
		s.mu.Unlock()
		return
	}
	s.x = s.winStartX + (x - s.dragStartX)
	s.y = s.winStartY + (y - s.dragStartY)
	nx, ny := s.x, s.y
	win := s.win
	s.mu.Unlock()

	if win != nil {
		win.MoveTo(nx, ny)
	}
}

func (s *Surface) PointerUp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeDragging {
		s.mode = ModeIdle
	}
}

// Transport buttons. Legality of the transition is the transport's concern;
// the surface only forwards.

func (s *Surface) Pause() {
	if t := s.transport; t != nil {
		t.Pause()
	}
}

func (s *Surface) Resume() {
	if t := s.transport; t != nil {
		t.Resume()
	}
}

func (s *Surface) StopRecording() {
	if t := s.transport; t != nil {
		t.Stop()
	}
}

func (s *Surface) RestartRecording() {
	if t := s.transport; t != nil {
		t.Restart()
	}
}

// Close releases the surface's stream subscription without stopping the
// underlying camera track, closes the floating window if one is open, and
// fires OnClose exactly once.
func (s *Surface) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancelSub := s.cancelSub
	win := s.win
	s.win = nil
	onClose := s.onClose
	s.mu.Unlock()

	if cancelSub != nil {
		cancelSub()
	}
	if win != nil {
		win.Close()
	}
	if onClose != nil {
		onClose()
	}
}

// HandleWindowClosed reacts to the user closing the floating window from the
// platform side: same teardown as Close but without re-closing the window.
func (s *Surface) HandleWindowClosed() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancelSub := s.cancelSub
	s.win = nil
	onClose := s.onClose
	s.mu.Unlock()

	if cancelSub != nil {
		cancelSub()
	}
	if onClose != nil {
		onClose()
	}
}
