package media

import "errors"

// Acquisition failures are fatal to session start; the caller must release
// anything acquired in the same attempt and return to idle.
var (
	ErrPermissionDenied      = errors.New("media: permission denied")
	ErrDeviceNotFound        = errors.New("media: device not found")
	ErrDeviceInUse           = errors.New("media: device in use")
	ErrCompositorUnavailable = errors.New("media: compositor unavailable")
)
