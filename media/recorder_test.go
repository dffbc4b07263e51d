package media

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type sinkCall struct {
	index   int
	payload []byte
}

type recordingSink struct {
	mu    sync.Mutex
	calls []sinkCall
	fail  map[int]bool // call ordinal -> fail
	n     int
}

func (r *recordingSink) sink(_ context.Context, index int, payload []byte, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n++
	if r.fail[r.n] {
		return errors.New("store unavailable")
	}
	r.calls = append(r.calls, sinkCall{index: index, payload: payload})
	return nil
}

func (r *recordingSink) snapshot() []sinkCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sinkCall(nil), r.calls...)
}

func pushFrames(s *Stream, n int) {
	for i := 0; i < n; i++ {
		s.Push(testFrame())
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRecorderEmitsOrderedChunks(t *testing.T) {
	s := NewStream("s", StreamKindDisplay, nil)
	sink := &recordingSink{}
	rec := StartRecorder(s, sink.sink, RecorderOptions{ChunkInterval: 30 * time.Millisecond})

	pushFrames(s, 20)
	rec.Stop()

	calls := sink.snapshot()
	if len(calls) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(calls))
	}
	for i, c := range calls {
		if c.index != i {
			t.Errorf("chunk %d carries index %d", i, c.index)
		}
		if len(c.payload) == 0 {
			t.Errorf("chunk %d is empty", i)
		}
		// Each chunk is a valid self-contained JPEG sequence.
		if !bytes.HasPrefix(c.payload, []byte{0xff, 0xd8}) {
			t.Errorf("chunk %d does not start with a JPEG SOI marker", i)
		}
	}
}

func TestRecorderStopFlushesFinalChunk(t *testing.T) {
	s := NewStream("s", StreamKindDisplay, nil)
	sink := &recordingSink{}
	// Interval far longer than the test; only Stop can flush.
	rec := StartRecorder(s, sink.sink, RecorderOptions{ChunkInterval: time.Hour})

	pushFrames(s, 3)
	rec.Stop()
	rec.Stop() // idempotent

	calls := sink.snapshot()
	if len(calls) != 1 {
		t.Fatalf("got %d chunks, want exactly 1 flushed on stop", len(calls))
	}
	if calls[0].index != 0 {
		t.Errorf("final chunk index = %d, want 0", calls[0].index)
	}
}

func TestRecorderPauseSuspendsEmission(t *testing.T) {
	s := NewStream("s", StreamKindDisplay, nil)
	sink := &recordingSink{}
	rec := StartRecorder(s, sink.sink, RecorderOptions{ChunkInterval: 20 * time.Millisecond})

	rec.Pause()
	time.Sleep(10 * time.Millisecond)
	pushFrames(s, 10)
	paused := len(sink.snapshot())

	rec.Resume()
	pushFrames(s, 10)
	rec.Stop()

	if paused != 0 {
		t.Errorf("%d chunks emitted while paused", paused)
	}
	if len(sink.snapshot()) == 0 {
		t.Error("no chunks emitted after resume")
	}
}

func TestRecorderSinkFailureKeepsIndicesGapFree(t *testing.T) {
	s := NewStream("s", StreamKindDisplay, nil)
	var reported []error
	var mu sync.Mutex
	sink := &recordingSink{fail: map[int]bool{1: true}}
	rec := StartRecorder(s, sink.sink, RecorderOptions{
		ChunkInterval: 25 * time.Millisecond,
		OnError: func(err error) {
			mu.Lock()
			reported = append(reported, err)
			mu.Unlock()
		},
	})

	pushFrames(s, 25)
	rec.Stop()

	mu.Lock()
	errCount := len(reported)
	mu.Unlock()
	if errCount == 0 {
		t.Fatal("sink failure was not reported")
	}

	// The failed chunk's index is reused by the next successful append, so
	// the stored sequence starts at 0 with no gaps.
	calls := sink.snapshot()
	if len(calls) == 0 {
		t.Fatal("no chunks stored after the failure")
	}
	for i, c := range calls {
		if c.index != i {
			t.Fatalf("stored sequence has a gap: position %d carries index %d", i, c.index)
		}
	}
}

func TestRecorderStartIndexResumesSequence(t *testing.T) {
	s := NewStream("s", StreamKindDisplay, nil)
	sink := &recordingSink{}
	rec := StartRecorder(s, sink.sink, RecorderOptions{ChunkInterval: time.Hour, StartIndex: 7})

	pushFrames(s, 3)
	rec.Stop()

	calls := sink.snapshot()
	if len(calls) != 1 || calls[0].index != 7 {
		t.Fatalf("resumed recorder emitted %v, want single chunk at index 7", calls)
	}
}
