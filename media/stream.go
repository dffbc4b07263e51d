package media

import (
	"image"
	"sync"
	"time"
)

type StreamKind string

const (
	StreamKindDisplay    StreamKind = "display"
	StreamKindCamera     StreamKind = "camera"
	StreamKindMicrophone StreamKind = "microphone"
	StreamKindComposite  StreamKind = "composite"
)

// Frame is one raster captured from a live video source.
type Frame struct {
	Image *image.RGBA
	At    time.Time
}

// Stream is a live media handle. The producing side pushes frames (or audio
// samples); any number of consumers subscribe independently. A subscriber
// that falls behind drops frames rather than stalling the producer.
//
// Ownership: only the component that acquired the stream stops it. Consumers
// that merely render it (compositor, companion surface) drop their
// subscription and signal through their own onClose callbacks instead.
type Stream struct {
	id   string
	kind StreamKind

	mu        sync.Mutex
	stopped   bool
	stopTrack func()
	videoSubs map[int]chan Frame
	audioSubs map[int]chan []byte
	nextSub   int
}

// NewStream wraps a platform track. stopTrack releases the underlying device
// and is invoked exactly once, from Stop.
func NewStream(id string, kind StreamKind, stopTrack func()) *Stream {
	return &Stream{
		id:        id,
		kind:      kind,
		stopTrack: stopTrack,
		videoSubs: make(map[int]chan Frame),
		audioSubs: make(map[int]chan []byte),
	}
}

func (s *Stream) ID() string {
	return s.id
}

func (s *Stream) Kind() StreamKind {
	return s.kind
}

// Push delivers a frame to every subscriber, dropping for any subscriber
// whose buffer is full.
func (s *Stream) Push(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	for _, ch := range s.videoSubs {
		select {
		case ch <- f:
		default:
		}
	}
}

// PushSamples delivers an audio buffer to every audio subscriber.
func (s *Stream) PushSamples(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	for _, ch := range s.audioSubs {
		select {
		case ch <- b:
		default:
		}
	}
}

// Subscribe returns a frame channel and a cancel func. The channel is closed
// when the subscription is cancelled or the stream stops.
func (s *Stream) Subscribe() (<-chan Frame, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Frame, 1)
	if s.stopped {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.videoSubs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.videoSubs[id]; ok {
			delete(s.videoSubs, id)
			close(c)
		}
	}
	return ch, cancel
}

// SubscribeSamples is the audio counterpart of Subscribe.
func (s *Stream) SubscribeSamples() (<-chan []byte, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan []byte, 4)
	if s.stopped {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.audioSubs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.audioSubs[id]; ok {
			delete(s.audioSubs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Stop releases the underlying track and closes every subscription.
// Safe to call more than once.
func (s *Stream) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	stop := s.stopTrack
	for id, ch := range s.videoSubs {
		delete(s.videoSubs, id)
		close(ch)
	}
	for id, ch := range s.audioSubs {
		delete(s.audioSubs, id)
		close(ch)
	}
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
}

func (s *Stream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
