package constant

type SessionState string

const (
	SessionStateIdle      SessionState = "idle"
	SessionStateSettingUp SessionState = "setting_up"
	SessionStateRecording SessionState = "recording"
	SessionStatePaused    SessionState = "paused"
	SessionStateStopped   SessionState = "stopped"
)

func (s SessionState) String() string {
	return string(s)
}

type CaptureSource string

const (
	CaptureSourceScreen CaptureSource = "screen"
	CaptureSourceWindow CaptureSource = "window"
	CaptureSourceTab    CaptureSource = "tab"
)

type WebcamShape string

const (
	WebcamShapeCircle  WebcamShape = "circle"
	WebcamShapeSquare  WebcamShape = "square"
	WebcamShapeMobile  WebcamShape = "mobile"
	WebcamShapeLaptop  WebcamShape = "laptop"
	WebcamShapeClassic WebcamShape = "classic"
)

type WebcamPosition string

const (
	WebcamPositionTopLeft     WebcamPosition = "top-left"
	WebcamPositionTopRight    WebcamPosition = "top-right"
	WebcamPositionBottomLeft  WebcamPosition = "bottom-left"
	WebcamPositionBottomRight WebcamPosition = "bottom-right"
)

type QualityPreset string

const (
	Quality720p  QualityPreset = "720p"
	Quality1080p QualityPreset = "1080p"
)

type SizePreset string

const (
	SizeSmall  SizePreset = "small"
	SizeMedium SizePreset = "medium"
	SizeLarge  SizePreset = "large"
)

type UploadPhase string

const (
	UploadPhaseCombining UploadPhase = "combining"
	UploadPhaseUploading UploadPhase = "uploading"
	UploadPhaseVerifying UploadPhase = "verifying"
	UploadPhaseDone      UploadPhase = "done"
)

type JobType string

const (
	JobTypeTranscribe JobType = "transcribe"
	JobTypeThumbnail  JobType = "thumbnail"
)

func (j JobType) String() string {
	return string(j)
}

type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
)

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}
