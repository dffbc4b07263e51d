package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"

	"recorder-agent/constant"
	"recorder-agent/dto"
	"recorder-agent/repository"
)

const (
	uploadMaxAttempts    = 3
	uploadAttemptTimeout = 5 * time.Minute
	uploadBackoffStep    = time.Second
)

var ErrNoChunks = errors.New("session has no recorded chunks")

// BlobStore is the remote artifact store the combined recording is pushed
// to. Kept narrow so the retry pipeline is testable with an in-memory fake.
type BlobStore interface {
	Put(ctx context.Context, bucket string, objectName string, reader io.Reader, size int64, contentType string) error
	Exists(ctx context.Context, bucket string, objectName string) (bool, error)
}

type minioBlobStore struct {
	client *minio.Client
}

func NewMinioBlobStore(client *minio.Client) BlobStore {
	return &minioBlobStore{client: client}
}

func (m *minioBlobStore) Put(ctx context.Context, bucket string, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

// Exists lists the object's parent prefix and looks for the exact key, so a
// half-written or renamed object never passes verification.
func (m *minioBlobStore) Exists(ctx context.Context, bucket string, objectName string) (bool, error) {
	prefix := path.Dir(objectName) + "/"
	for obj := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return false, obj.Err
		}
		if obj.Key == objectName {
			return true, nil
		}
	}
	return false, nil
}

// ProgressFunc receives upload progress transitions; may be nil.
type ProgressFunc func(dto.UploadProgress)

type UploadOptions struct {
	Bucket      string
	WorkspaceId string
	ContentType string
	Sleep       func(time.Duration)
}

// UploadService combines a session's ordered chunks into one artifact and
// pushes it to the blob store, retrying transient failures.
type UploadService struct {
	store repository.ChunkStore
	blobs BlobStore
	opts  UploadOptions
}

func NewUploadService(store repository.ChunkStore, blobs BlobStore, opts UploadOptions) *UploadService {
	if opts.ContentType == "" {
		opts.ContentType = "video/webm"
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &UploadService{store: store, blobs: blobs, opts: opts}
}

// ObjectPath is where the raw recording lands in the blob store.
func (u *UploadService) ObjectPath(videoId uuid.UUID) string {
	return fmt.Sprintf("%s/%s/raw.webm", u.opts.WorkspaceId, videoId.String())
}

// Upload reads every chunk of the session in index order, concatenates them
// into the raw recording, and uploads it. Up to three attempts with linear
// backoff (1s, 2s); each attempt runs under its own five-minute deadline.
// Progress is recomputed per attempt, so a retry starts over at combining.
func (u *UploadService) Upload(ctx context.Context, sessionId uuid.UUID, videoId uuid.UUID, progress ProgressFunc) error {
	log := zerolog.Ctx(ctx)
	if progress == nil {
		progress = func(dto.UploadProgress) {}
	}

	var lastErr error
	for attempt := 1; attempt <= uploadMaxAttempts; attempt++ {
		total, err := u.attempt(ctx, sessionId, videoId, attempt, progress)
		if err == nil {
			progress(dto.UploadProgress{Phase: constant.UploadPhaseDone, Attempt: attempt, Loaded: total, Total: total, Percent: 100})
			return nil
		}
		if errors.Is(err, ErrNoChunks) || ctx.Err() != nil {
			return err
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Str("session_id", sessionId.String()).Msg("upload attempt failed")
		if attempt < uploadMaxAttempts {
			u.opts.Sleep(time.Duration(attempt) * uploadBackoffStep)
		}
	}
	return fmt.Errorf("upload failed after %d attempts: %w", uploadMaxAttempts, lastErr)
}

func (u *UploadService) attempt(parent context.Context, sessionId uuid.UUID, videoId uuid.UUID, attempt int, progress ProgressFunc) (int64, error) {
	ctx, cancel := context.WithTimeout(parent, uploadAttemptTimeout)
	defer cancel()

	progress(dto.UploadProgress{Phase: constant.UploadPhaseCombining, Attempt: attempt})
	chunks, err := u.store.GetChunksBySessionId(ctx, sessionId)
	if err != nil {
		return 0, fmt.Errorf("load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return 0, ErrNoChunks
	}

	var buf bytes.Buffer
	for _, c := range chunks {
		buf.Write(c.Payload)
	}
	total := int64(buf.Len())

	objectName := u.ObjectPath(videoId)
	progress(dto.UploadProgress{Phase: constant.UploadPhaseUploading, Attempt: attempt, Total: total})
	if err := u.blobs.Put(ctx, u.opts.Bucket, objectName, bytes.NewReader(buf.Bytes()), total, u.opts.ContentType); err != nil {
		return 0, fmt.Errorf("put object: %w", err)
	}

	// Only a verified object counts as transferred.
	progress(dto.UploadProgress{Phase: constant.UploadPhaseVerifying, Attempt: attempt, Loaded: total, Total: total, Percent: 100})
	ok, err := u.blobs.Exists(ctx, u.opts.Bucket, objectName)
	if err != nil {
		return 0, fmt.Errorf("verify object: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("object %s missing after upload", objectName)
	}
	return total, nil
}
