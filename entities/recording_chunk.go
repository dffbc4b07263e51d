package entities

import (
	"time"

	"github.com/google/uuid"
)

type RecordingChunk struct {
	ID         uint      `json:"id" gorm:"primary_key;autoIncrement"`
	SessionId  uuid.UUID `json:"session_id" gorm:"type:uuid;not null;uniqueIndex:idx_recording_chunks_session_index,priority:1"`
	ChunkIndex int       `json:"chunk_index" gorm:"not null;uniqueIndex:idx_recording_chunks_session_index,priority:2"`
	Payload    []byte    `json:"payload" gorm:"type:blob;not null"`
	CapturedAt time.Time `json:"captured_at" gorm:"not null"`
}

func (RecordingChunk) TableName() string {
	return "recording_chunks"
}
