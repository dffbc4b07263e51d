package media

import (
	"image"
	"testing"
	"time"
)

func testFrame() Frame {
	return Frame{Image: image.NewRGBA(image.Rect(0, 0, 4, 4)), At: time.Now()}
}

func TestSubscribersReceiveIndependently(t *testing.T) {
	s := NewStream("s", StreamKindDisplay, nil)
	a, cancelA := s.Subscribe()
	b, cancelB := s.Subscribe()
	defer cancelA()
	defer cancelB()

	s.Push(testFrame())

	select {
	case <-a:
	default:
		t.Error("subscriber a missed the frame")
	}
	select {
	case <-b:
	default:
		t.Error("subscriber b missed the frame")
	}
}

func TestSlowSubscriberDropsInsteadOfStalling(t *testing.T) {
	s := NewStream("s", StreamKindDisplay, nil)
	ch, cancel := s.Subscribe()
	defer cancel()

	// Buffer is 1; the second push must not block and must be dropped.
	done := make(chan struct{})
	go func() {
		s.Push(testFrame())
		s.Push(testFrame())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push blocked on a full subscriber")
	}

	<-ch
	select {
	case <-ch:
		t.Error("dropped frame was delivered")
	default:
	}
}

func TestStopReleasesTrackOnce(t *testing.T) {
	calls := 0
	s := NewStream("s", StreamKindCamera, func() { calls++ })
	ch, _ := s.Subscribe()

	s.Stop()
	s.Stop()

	if calls != 1 {
		t.Errorf("stopTrack called %d times, want 1", calls)
	}
	if !s.Stopped() {
		t.Error("stream not marked stopped")
	}
	if _, ok := <-ch; ok {
		t.Error("subscription still open after stop")
	}
}

func TestSubscribeAfterStopIsClosed(t *testing.T) {
	s := NewStream("s", StreamKindCamera, nil)
	s.Stop()
	ch, cancel := s.Subscribe()
	defer cancel()
	if _, ok := <-ch; ok {
		t.Error("subscription on a stopped stream delivered a frame")
	}
}

func TestCancelOnlyDropsOwnSubscription(t *testing.T) {
	s := NewStream("s", StreamKindDisplay, nil)
	a, cancelA := s.Subscribe()
	b, cancelB := s.Subscribe()
	defer cancelB()

	cancelA()
	if _, ok := <-a; ok {
		t.Error("cancelled subscription still open")
	}

	s.Push(testFrame())
	select {
	case <-b:
	default:
		t.Error("surviving subscriber missed the frame")
	}
}
