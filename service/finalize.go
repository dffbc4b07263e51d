package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"recorder-agent/constant"
	"recorder-agent/dto"
)

const JobRoutingKey = "processing.request"

// JobPublisher dispatches processing jobs to downstream workers.
type JobPublisher interface {
	Publish(ctx context.Context, routingKey string, msg dto.ProcessingJobMessage) error
}

// Finalizer runs after a verified upload: it records where the artifact
// landed and fans out the downstream processing jobs. Job dispatch is
// best-effort; a publish failure is logged and does not fail finalization,
// since the artifact itself is already safe in the blob store.
type Finalizer struct {
	uploads *UploadService
	session *SessionService
	jobs    JobPublisher
}

func NewFinalizer(uploads *UploadService, session *SessionService, jobs JobPublisher) *Finalizer {
	return &Finalizer{uploads: uploads, session: session, jobs: jobs}
}

// Finalize uploads the session's recording and, on success, discards the
// local chunks and dispatches transcription and thumbnail jobs.
func (f *Finalizer) Finalize(ctx context.Context, sessionId uuid.UUID, videoId uuid.UUID, progress ProgressFunc) (dto.AssetReference, error) {
	log := zerolog.Ctx(ctx)

	if err := f.uploads.Upload(ctx, sessionId, videoId, progress); err != nil {
		return dto.AssetReference{}, err
	}

	asset := dto.AssetReference{
		VideoId:     videoId,
		AssetType:   "raw_webm",
		StoragePath: f.uploads.ObjectPath(videoId),
	}

	if err := f.session.Discard(ctx, sessionId); err != nil {
		log.Error().Err(err).Str("session_id", sessionId.String()).Msg("failed to discard local chunks")
	}

	if f.jobs != nil {
		for _, jobType := range []constant.JobType{constant.JobTypeTranscribe, constant.JobTypeThumbnail} {
			msg := dto.ProcessingJobMessage{
				JobId:   uuid.New(),
				VideoId: videoId,
				JobType: jobType,
				Status:  constant.JobStatusPending,
			}
			if err := f.jobs.Publish(ctx, JobRoutingKey, msg); err != nil {
				log.Error().Err(err).Str("job_type", jobType.String()).Msg("failed to dispatch processing job")
			}
		}
	}

	return asset, nil
}
