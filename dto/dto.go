package dto

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"recorder-agent/constant"
)

// RelayKind tags the closed set of message variants exchanged between the
// recording page, the coordinator, the capture surface, and tab overlays.
type RelayKind string

const (
	KindRecordingStarted RelayKind = "recording-started"
	KindRecordingState   RelayKind = "recording-state"
	KindRecordingStopped RelayKind = "recording-stopped"
	KindOverlayAction    RelayKind = "overlay-action"
	KindOverlayFrame     RelayKind = "overlay-frame"
	KindCaptureError     RelayKind = "capture-error"
	KindShowOverlay      RelayKind = "show-overlay"
	KindHideOverlay      RelayKind = "hide-overlay"
	KindStartCapture     RelayKind = "start-capture"
	KindStopCapture      RelayKind = "stop-capture"
	KindRecorderAction   RelayKind = "recorder-action"
)

type OverlayAction string

const (
	ActionPause   OverlayAction = "pause"
	ActionResume  OverlayAction = "resume"
	ActionStop    OverlayAction = "stop"
	ActionRestart OverlayAction = "restart"
)

// RecordingSnapshot is the coordinator's last-known view of the active
// session, handed to overlays so late joiners start in sync.
type RecordingSnapshot struct {
	ElapsedMs     int64                `json:"elapsedMs"`
	IsPaused      bool                 `json:"isPaused"`
	WebcamEnabled bool                 `json:"webcamEnabled"`
	WebcamShape   constant.WebcamShape `json:"webcamShape"`
}

// RelayMessage carries exactly one variant; Validate enforces the required
// fields per kind at the relay boundary.
type RelayMessage struct {
	Kind     RelayKind          `json:"kind"`
	Snapshot *RecordingSnapshot `json:"snapshot,omitempty"`
	DeviceId string             `json:"deviceId,omitempty"`
	Action   OverlayAction      `json:"action,omitempty"`
	Frame    []byte             `json:"frame,omitempty"`
	Error    string             `json:"error,omitempty"`
}

var ErrInvalidRelayMessage = errors.New("invalid relay message")

func (m RelayMessage) Validate() error {
	switch m.Kind {
	case KindRecordingStarted, KindRecordingState, KindShowOverlay:
		if m.Snapshot == nil {
			return fmt.Errorf("%w: %s requires a snapshot", ErrInvalidRelayMessage, m.Kind)
		}
	case KindOverlayAction, KindRecorderAction:
		switch m.Action {
		case ActionPause, ActionResume, ActionStop, ActionRestart:
		default:
			return fmt.Errorf("%w: unknown action %q", ErrInvalidRelayMessage, m.Action)
		}
	case KindOverlayFrame:
		if len(m.Frame) == 0 {
			return fmt.Errorf("%w: frame message without payload", ErrInvalidRelayMessage)
		}
	case KindCaptureError:
		if m.Error == "" {
			return fmt.Errorf("%w: capture-error without message", ErrInvalidRelayMessage)
		}
	case KindRecordingStopped, KindHideOverlay, KindStartCapture, KindStopCapture:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRelayMessage, m.Kind)
	}
	return nil
}

// RecorderConfig is read once at session start and immutable for the
// lifetime of that session. Restart reuses it verbatim.
type RecorderConfig struct {
	CaptureSource     constant.CaptureSource  `json:"captureSource"`
	Quality           constant.QualityPreset  `json:"quality"`
	WebcamEnabled     bool                    `json:"webcamEnabled"`
	WebcamPosition    constant.WebcamPosition `json:"webcamPosition"`
	WebcamShape       constant.WebcamShape    `json:"webcamShape"`
	MicEnabled        bool                    `json:"micEnabled"`
	VideoDeviceId     string                  `json:"videoDeviceId"`
	AudioDeviceId     string                  `json:"audioDeviceId"`
	UseFloatingWindow bool                    `json:"useFloatingWindow"`
}

// UploadProgress is recomputed on each upload attempt; never persisted.
type UploadProgress struct {
	Phase   constant.UploadPhase `json:"phase"`
	Attempt int                  `json:"attempt"`
	Loaded  int64                `json:"loaded"`
	Total   int64                `json:"total"`
	Percent int                  `json:"percent"`
}

// ProcessingJobMessage is published for downstream workers once an upload
// has been verified. Jobs are dispatched PENDING; workers own the status
// from there.
type ProcessingJobMessage struct {
	JobId   uuid.UUID          `json:"jobId"`
	VideoId uuid.UUID          `json:"videoId"`
	JobType constant.JobType   `json:"jobType"`
	Status  constant.JobStatus `json:"status"`
}

// RecorderCommandMessage is a broker-delivered remote control command for
// the agent's session.
type RecorderCommandMessage struct {
	Action OverlayAction `json:"action"`
}

// AssetReference records where the combined artifact landed.
type AssetReference struct {
	VideoId     uuid.UUID `json:"videoId"`
	AssetType   string    `json:"assetType"`
	StoragePath string    `json:"storagePath"`
}
