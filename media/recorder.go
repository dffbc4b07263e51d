package media

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// DefaultChunkInterval is the cadence at which buffered media is cut into
// a persisted chunk while recording.
const DefaultChunkInterval = 2 * time.Second

// ChunkSink persists one chunk. The recorder awaits each call before
// emitting the next chunk so indices stay strictly ordered; a sink error is
// reported through OnError and the chunk's data is dropped, recording
// continues.
type ChunkSink func(ctx context.Context, index int, payload []byte, capturedAt time.Time) error

type RecorderOptions struct {
	ChunkInterval time.Duration
	Encoder       ChunkEncoder
	StartIndex    int
	OnError       func(error)
}

type recorderCmd int

const (
	cmdPause recorderCmd = iota
	cmdResume
)

// Recorder is the MediaRecorder-equivalent: it consumes one live stream,
// encodes frames, and emits the encoded bytes as ordered chunks on a fixed
// interval. Exactly one Recorder writes chunks for a session.
type Recorder struct {
	cmds      chan recorderCmd
	cancelSub func()
	cancel    context.CancelFunc
	done      chan struct{}
	stopOnce  sync.Once
}

// StartRecorder begins consuming the stream immediately.
func StartRecorder(stream *Stream, sink ChunkSink, opts RecorderOptions) *Recorder {
	if opts.ChunkInterval <= 0 {
		opts.ChunkInterval = DefaultChunkInterval
	}
	if opts.Encoder == nil {
		opts.Encoder = NewMJPEGEncoder(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	frames, cancelSub := stream.Subscribe()

	r := &Recorder{
		cmds:      make(chan recorderCmd, 4),
		cancelSub: cancelSub,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go r.loop(ctx, frames, sink, opts)
	return r
}

// Pause freezes chunk emission. No-op while already paused.
func (r *Recorder) Pause() {
	select {
	case r.cmds <- cmdPause:
	case <-r.done:
	}
}

// Resume returns to emitting chunks. No-op while not paused.
func (r *Recorder) Resume() {
	select {
	case r.cmds <- cmdResume:
	case <-r.done:
	}
}

// Stop flushes any buffered data as a final chunk and halts the recorder.
// Idempotent; subsequent calls return immediately.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		r.cancel()
		<-r.done
		r.cancelSub()
	})
}

func (r *Recorder) loop(ctx context.Context, frames <-chan Frame, sink ChunkSink, opts RecorderOptions) {
	defer close(r.done)

	ticker := time.NewTicker(opts.ChunkInterval)
	defer ticker.Stop()

	var buf bytes.Buffer
	index := opts.StartIndex
	paused := false
	lastAt := time.Now()

	reportErr := func(err error) {
		if opts.OnError != nil {
			opts.OnError(err)
		}
	}

	emit := func() {
		if buf.Len() == 0 {
			return
		}
		payload := make([]byte, buf.Len())
		copy(payload, buf.Bytes())
		buf.Reset()
		// The sink call is awaited before the next append, never retried.
		if err := sink(context.WithoutCancel(ctx), index, payload, lastAt); err != nil {
			reportErr(err)
			return
		}
		index++
	}

	for {
		select {
		case <-ctx.Done():
			emit()
			return
		case cmd := <-r.cmds:
			switch cmd {
			case cmdPause:
				paused = true
			case cmdResume:
				paused = false
			}
		case f, ok := <-frames:
			if !ok {
				emit()
				return
			}
			if paused {
				continue
			}
			encoded, err := opts.Encoder.Encode(f)
			if err != nil {
				reportErr(err)
				continue
			}
			buf.Write(encoded)
			lastAt = f.At
		case <-ticker.C:
			if paused {
				continue
			}
			emit()
		}
	}
}
