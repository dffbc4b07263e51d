package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"recorder-agent/constant"
	"recorder-agent/dto"
	"recorder-agent/media"
	"recorder-agent/repository"
)

type capturingPublisher struct {
	mu   sync.Mutex
	msgs []dto.ProcessingJobMessage
	fail bool
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, msg dto.ProcessingJobMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func newFinalizeFixture(t *testing.T, blobs BlobStore, jobs JobPublisher) (*Finalizer, repository.ChunkStore) {
	t.Helper()
	store, err := repository.Open(filepath.Join(t.TempDir(), "recordings.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	uploads := NewUploadService(store, blobs, UploadOptions{
		Bucket:      "recordings",
		WorkspaceId: "ws-1",
		Sleep:       func(time.Duration) {},
	})
	session := NewSessionService(store, &media.SyntheticProvider{FPS: 5}, nil, nil, SessionOptions{})
	return NewFinalizer(uploads, session, jobs), store
}

func TestFinalizeUploadsDiscardsAndDispatchesJobs(t *testing.T) {
	blobs := newMemBlobStore()
	jobs := &capturingPublisher{}
	finalizer, store := newFinalizeFixture(t, blobs, jobs)
	ctx := context.Background()

	sessionId := uuid.New()
	seedChunks(t, store, sessionId, []byte("aa"), []byte("bb"))

	videoId := uuid.New()
	asset, err := finalizer.Finalize(ctx, sessionId, videoId, nil)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if asset.VideoId != videoId || asset.AssetType != "raw_webm" {
		t.Errorf("asset = %+v", asset)
	}
	if asset.StoragePath != "ws-1/"+videoId.String()+"/raw.webm" {
		t.Errorf("storage path = %q", asset.StoragePath)
	}

	// Local chunks are gone once the artifact is verified remote.
	if _, err := store.FindSessionById(ctx, sessionId); err == nil {
		t.Error("session still in local store after finalize")
	}

	jobs.mu.Lock()
	defer jobs.mu.Unlock()
	if len(jobs.msgs) != 2 {
		t.Fatalf("dispatched %d jobs, want 2", len(jobs.msgs))
	}
	types := map[constant.JobType]bool{}
	for _, m := range jobs.msgs {
		if m.VideoId != videoId {
			t.Errorf("job for video %s, want %s", m.VideoId, videoId)
		}
		if m.JobId == (uuid.UUID{}) {
			t.Error("job without an id")
		}
		if m.Status != constant.JobStatusPending {
			t.Errorf("job dispatched with status %q, want PENDING", m.Status)
		}
		types[m.JobType] = true
	}
	if !types[constant.JobTypeTranscribe] || !types[constant.JobTypeThumbnail] {
		t.Errorf("job types = %v", types)
	}
}

func TestFinalizeFailedUploadKeepsChunksAndSkipsJobs(t *testing.T) {
	blobs := newMemBlobStore()
	blobs.putFails = 100
	jobs := &capturingPublisher{}
	finalizer, store := newFinalizeFixture(t, blobs, jobs)
	ctx := context.Background()

	sessionId := uuid.New()
	seedChunks(t, store, sessionId, []byte("aa"))

	if _, err := finalizer.Finalize(ctx, sessionId, uuid.New(), nil); err == nil {
		t.Fatal("finalize succeeded against a dead blob store")
	}

	// Chunks stay local so the upload can be retried later.
	chunks, err := store.GetChunksBySessionId(ctx, sessionId)
	if err != nil || len(chunks) != 1 {
		t.Errorf("local chunks after failed upload: %d (%v)", len(chunks), err)
	}
	jobs.mu.Lock()
	defer jobs.mu.Unlock()
	if len(jobs.msgs) != 0 {
		t.Errorf("%d jobs dispatched for an unverified upload", len(jobs.msgs))
	}
}

func TestFinalizePublishFailureIsNotFatal(t *testing.T) {
	blobs := newMemBlobStore()
	jobs := &capturingPublisher{fail: true}
	finalizer, store := newFinalizeFixture(t, blobs, jobs)
	ctx := context.Background()

	sessionId := uuid.New()
	seedChunks(t, store, sessionId, []byte("aa"))

	if _, err := finalizer.Finalize(ctx, sessionId, uuid.New(), nil); err != nil {
		t.Fatalf("Finalize failed on a publish error: %v", err)
	}
}

func TestFinalizeWithoutPublisher(t *testing.T) {
	blobs := newMemBlobStore()
	finalizer, store := newFinalizeFixture(t, blobs, nil)
	ctx := context.Background()

	sessionId := uuid.New()
	seedChunks(t, store, sessionId, []byte("aa"))

	if _, err := finalizer.Finalize(ctx, sessionId, uuid.New(), nil); err != nil {
		t.Fatalf("Finalize without a publisher: %v", err)
	}
}
