package dto

import (
	"errors"
	"testing"
)

func TestRelayMessageValidate(t *testing.T) {
	snapshot := &RecordingSnapshot{ElapsedMs: 1000}

	valid := []RelayMessage{
		{Kind: KindRecordingStarted, Snapshot: snapshot},
		{Kind: KindRecordingState, Snapshot: snapshot},
		{Kind: KindShowOverlay, Snapshot: snapshot},
		{Kind: KindRecordingStopped},
		{Kind: KindHideOverlay},
		{Kind: KindStartCapture},
		{Kind: KindStartCapture, DeviceId: "cam-1"},
		{Kind: KindStopCapture},
		{Kind: KindOverlayAction, Action: ActionPause},
		{Kind: KindRecorderAction, Action: ActionRestart},
		{Kind: KindOverlayFrame, Frame: []byte{0xff}},
		{Kind: KindCaptureError, Error: "permission denied"},
	}
	for _, m := range valid {
		if err := m.Validate(); err != nil {
			t.Errorf("Validate(%s) = %v", m.Kind, err)
		}
	}

	invalid := []RelayMessage{
		{Kind: KindRecordingStarted},
		{Kind: KindRecordingState},
		{Kind: KindShowOverlay},
		{Kind: KindOverlayAction},
		{Kind: KindOverlayAction, Action: "fast-forward"},
		{Kind: KindRecorderAction},
		{Kind: KindOverlayFrame},
		{Kind: KindCaptureError},
		{Kind: "telemetry"},
		{},
	}
	for _, m := range invalid {
		err := m.Validate()
		if err == nil {
			t.Errorf("Validate(%+v) accepted an invalid message", m)
			continue
		}
		if !errors.Is(err, ErrInvalidRelayMessage) {
			t.Errorf("Validate(%+v) error %v not wrapping ErrInvalidRelayMessage", m, err)
		}
	}
}
