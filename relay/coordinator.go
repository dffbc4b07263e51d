package relay

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"recorder-agent/dto"
)

// Tab is one open browser tab known to the host environment.
type Tab struct {
	ID  int
	URL string
}

// TabRegistry abstracts the host's ability to enumerate tabs, inject the
// rendering overlay into one, and deliver one-shot messages to tabs that
// have not yet opened a live channel. Every call is best-effort.
type TabRegistry interface {
	ListTabs(ctx context.Context) ([]Tab, error)
	Inject(ctx context.Context, tabID int, msg dto.RelayMessage) error
	SendOneShot(ctx context.Context, tabID int, msg dto.RelayMessage) error
}

// CaptureLauncher provisions the isolated capture surface and returns the
// coordinator-side port to it. Launch is called at most once per recording;
// reprovisioning after a disconnect is the next recording's problem.
type CaptureLauncher interface {
	Launch(ctx context.Context) (*Port, error)
}

// Coordinator is the privileged actor that fans recording state and camera
// frames out to every open tab and relays overlay actions back to the
// recording tab. All state lives behind a single event loop; public methods
// only post events into the mailbox.
type Coordinator struct {
	tabs     TabRegistry
	launcher CaptureLauncher
	events   chan coordEvent
	done     chan struct{}
}

type coordEvent interface{ isCoordEvent() }

type evStarted struct {
	tabID    int
	snapshot dto.RecordingSnapshot
	deviceId string
}
type evState struct{ snapshot dto.RecordingSnapshot }
type evStopped struct{}
type evOverlayConnected struct {
	tabID int
	port  *Port
}
type evOverlayDisconnected struct {
	tabID int
	port  *Port
}
type evOverlayMessage struct {
	tabID int
	msg   dto.RelayMessage
}
type evCaptureConnected struct{ port *Port }
type evCaptureDisconnected struct{}
type evCaptureMessage struct{ msg dto.RelayMessage }
type evTabLoaded struct{ tab Tab }
type evTabClosed struct{ tabID int }
type evQuery struct{ reply chan stateReply }

func (evStarted) isCoordEvent()             {}
func (evState) isCoordEvent()               {}
func (evStopped) isCoordEvent()             {}
func (evOverlayConnected) isCoordEvent()    {}
func (evOverlayDisconnected) isCoordEvent() {}
func (evOverlayMessage) isCoordEvent()      {}
func (evCaptureConnected) isCoordEvent()    {}
func (evCaptureDisconnected) isCoordEvent() {}
func (evCaptureMessage) isCoordEvent()      {}
func (evTabLoaded) isCoordEvent()           {}
func (evTabClosed) isCoordEvent()           {}
func (evQuery) isCoordEvent()               {}

type stateReply struct {
	active   bool
	tabID    int
	snapshot dto.RecordingSnapshot
}

func NewCoordinator(tabs TabRegistry, launcher CaptureLauncher) *Coordinator {
	return &Coordinator{
		tabs:     tabs,
		launcher: launcher,
		events:   make(chan coordEvent, 64),
		done:     make(chan struct{}),
	}
}

// post delivers an event into the mailbox unless the loop has exited.
func (c *Coordinator) post(ev coordEvent) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// RecordingStarted announces a new recording from the given tab, with the
// session's initial config snapshot.
func (c *Coordinator) RecordingStarted(tabID int, snapshot dto.RecordingSnapshot, deviceId string) {
	c.post(evStarted{tabID: tabID, snapshot: snapshot, deviceId: deviceId})
}

// RecordingState is the periodic elapsed/paused update from the recording
// page, roughly 2 Hz.
func (c *Coordinator) RecordingState(snapshot dto.RecordingSnapshot) {
	c.post(evState{snapshot: snapshot})
}

func (c *Coordinator) RecordingStopped() {
	c.post(evStopped{})
}

// OverlayConnected registers a tab's live channel. A surface that connects
// while no recording is active is immediately told to hide.
func (c *Coordinator) OverlayConnected(tabID int, port *Port) {
	c.post(evOverlayConnected{tabID: tabID, port: port})
}

// TabLoaded is notified when a tab finishes loading or navigating, so an
// active recording's overlay follows navigation.
func (c *Coordinator) TabLoaded(tab Tab) {
	c.post(evTabLoaded{tab: tab})
}

func (c *Coordinator) TabClosed(tabID int) {
	c.post(evTabClosed{tabID: tabID})
}

// State answers the popup-style query for the current recording snapshot.
func (c *Coordinator) State(ctx context.Context) (bool, dto.RecordingSnapshot) {
	reply := make(chan stateReply, 1)
	select {
	case c.events <- evQuery{reply: reply}:
	case <-c.done:
		return false, dto.RecordingSnapshot{}
	case <-ctx.Done():
		return false, dto.RecordingSnapshot{}
	}
	select {
	case r := <-reply:
		return r.active, r.snapshot
	case <-c.done:
		return false, dto.RecordingSnapshot{}
	case <-ctx.Done():
		return false, dto.RecordingSnapshot{}
	}
}

// coordState is the loop-owned mutable state; nothing outside the loop may
// touch it.
type coordState struct {
	active          bool
	recordTab       int
	snapshot        dto.RecordingSnapshot
	deviceId        string
	overlayPorts    map[int]*Port
	capturePort     *Port
	captureLaunched bool
	pendingCapture  []dto.RelayMessage
}

// Run processes the mailbox until ctx ends. It must be called exactly once.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)

	st := &coordState{overlayPorts: make(map[int]*Port)}

	for {
		select {
		case <-ctx.Done():
			c.teardown(ctx, st)
			return
		case ev := <-c.events:
			c.handle(ctx, st, ev)
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, st *coordState, ev coordEvent) {
	log := zerolog.Ctx(ctx)

	switch ev := ev.(type) {
	case evStarted:
		st.active = true
		st.recordTab = ev.tabID
		st.snapshot = ev.snapshot
		st.deviceId = ev.deviceId
		log.Info().Int("tab_id", ev.tabID).Bool("webcam", ev.snapshot.WebcamEnabled).Msg("recording started")

		if ev.snapshot.WebcamEnabled {
			c.ensureCapture(ctx, st)
			c.sendToCapture(st, dto.RelayMessage{Kind: dto.KindStartCapture, DeviceId: ev.deviceId})
		}
		c.injectAll(ctx, st.recordTab, dto.RelayMessage{Kind: dto.KindShowOverlay, Snapshot: snapshotCopy(st.snapshot)})

	case evState:
		if !st.active {
			return
		}
		st.snapshot = ev.snapshot
		msg := dto.RelayMessage{Kind: dto.KindRecordingState, Snapshot: snapshotCopy(st.snapshot)}
		c.fanOut(st, msg)
		c.oneShotPortless(ctx, st, msg)

	case evStopped:
		c.clearRecording(ctx, st)

	case evOverlayConnected:
		st.overlayPorts[ev.tabID] = ev.port
		if !st.active {
			// Prevents a stale surface from a previous session surviving a
			// coordinator reload.
			ev.port.Send(dto.RelayMessage{Kind: dto.KindHideOverlay})
		}
		go c.pumpOverlay(ev.tabID, ev.port)

	case evOverlayDisconnected:
		if st.overlayPorts[ev.tabID] == ev.port {
			delete(st.overlayPorts, ev.tabID)
		}

	case evOverlayMessage:
		if err := ev.msg.Validate(); err != nil {
			log.Warn().Err(err).Int("tab_id", ev.tabID).Msg("dropping invalid overlay message")
			return
		}
		if ev.msg.Kind != dto.KindOverlayAction || !st.active {
			return
		}
		action := dto.RelayMessage{Kind: dto.KindRecorderAction, Action: ev.msg.Action}
		go func(tabID int) {
			_ = c.tabs.SendOneShot(ctx, tabID, action)
		}(st.recordTab)

	case evCaptureConnected:
		st.capturePort = ev.port
		for _, msg := range st.pendingCapture {
			ev.port.Send(msg)
		}
		st.pendingCapture = nil
		go c.pumpCapture(ev.port)

	case evCaptureDisconnected:
		st.capturePort = nil
		st.captureLaunched = false
		// Buffered messages are cleared, not retried.
		st.pendingCapture = nil

	case evCaptureMessage:
		if err := ev.msg.Validate(); err != nil {
			log.Warn().Err(err).Msg("dropping invalid capture message")
			return
		}
		switch ev.msg.Kind {
		case dto.KindOverlayFrame:
			msg := dto.RelayMessage{Kind: dto.KindOverlayFrame, Frame: ev.msg.Frame}
			c.fanOut(st, msg)
			c.oneShotPortless(ctx, st, msg)
		case dto.KindCaptureError:
			log.Error().Str("error", ev.msg.Error).Msg("capture surface error")
			c.fanOut(st, dto.RelayMessage{Kind: dto.KindCaptureError, Error: ev.msg.Error})
		}

	case evTabLoaded:
		if !st.active || ev.tab.ID == st.recordTab || !EligibleURL(ev.tab.URL) {
			return
		}
		msg := dto.RelayMessage{Kind: dto.KindShowOverlay, Snapshot: snapshotCopy(st.snapshot)}
		go func(tabID int) {
			_ = c.tabs.Inject(ctx, tabID, msg)
		}(ev.tab.ID)

	case evTabClosed:
		if port, ok := st.overlayPorts[ev.tabID]; ok {
			port.Close()
			delete(st.overlayPorts, ev.tabID)
		}
		if st.active && ev.tabID == st.recordTab {
			c.clearRecording(ctx, st)
		}

	case evQuery:
		ev.reply <- stateReply{active: st.active, tabID: st.recordTab, snapshot: st.snapshot}
	}
}

// ensureCapture provisions the capture surface lazily and idempotently.
func (c *Coordinator) ensureCapture(ctx context.Context, st *coordState) {
	if st.capturePort != nil || st.captureLaunched || c.launcher == nil {
		return
	}
	st.captureLaunched = true
	go func() {
		port, err := c.launcher.Launch(ctx)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("capture surface launch failed")
			c.post(evCaptureDisconnected{})
			return
		}
		c.post(evCaptureConnected{port: port})
	}()
}

// sendToCapture delivers to the capture surface, buffering in order while
// its channel is not yet connected.
func (c *Coordinator) sendToCapture(st *coordState, msg dto.RelayMessage) {
	if st.capturePort == nil {
		st.pendingCapture = append(st.pendingCapture, msg)
		return
	}
	if st.capturePort.Send(msg) == ChannelClosed {
		st.capturePort = nil
		st.captureLaunched = false
		st.pendingCapture = nil
	}
}

// fanOut sends to every live overlay port, pruning any that report closed.
func (c *Coordinator) fanOut(st *coordState, msg dto.RelayMessage) {
	for tabID, port := range st.overlayPorts {
		if port.Send(msg) == ChannelClosed {
			delete(st.overlayPorts, tabID)
		}
	}
}

// oneShotPortless reaches tabs that have not yet established a live channel.
func (c *Coordinator) oneShotPortless(ctx context.Context, st *coordState, msg dto.RelayMessage) {
	connected := make(map[int]bool, len(st.overlayPorts))
	for tabID := range st.overlayPorts {
		connected[tabID] = true
	}
	recordTab := st.recordTab
	go func() {
		tabs, err := c.tabs.ListTabs(ctx)
		if err != nil {
			return
		}
		for _, tab := range tabs {
			if tab.ID == recordTab || connected[tab.ID] || !EligibleURL(tab.URL) {
				continue
			}
			_ = c.tabs.SendOneShot(ctx, tab.ID, msg)
		}
	}()
}

// injectAll injects the overlay into every currently-open eligible tab.
func (c *Coordinator) injectAll(ctx context.Context, recordTab int, msg dto.RelayMessage) {
	go func() {
		tabs, err := c.tabs.ListTabs(ctx)
		if err != nil {
			return
		}
		for _, tab := range tabs {
			if tab.ID == recordTab || !EligibleURL(tab.URL) {
				continue
			}
			_ = c.tabs.Inject(ctx, tab.ID, msg)
		}
	}()
}

// clearRecording hides every overlay, releases the capture surface, and
// resets all per-recording bookkeeping.
func (c *Coordinator) clearRecording(ctx context.Context, st *coordState) {
	hide := dto.RelayMessage{Kind: dto.KindHideOverlay}
	c.fanOut(st, hide)
	go func() {
		tabs, err := c.tabs.ListTabs(ctx)
		if err != nil {
			return
		}
		for _, tab := range tabs {
			_ = c.tabs.SendOneShot(ctx, tab.ID, hide)
		}
	}()

	if st.capturePort != nil {
		st.capturePort.Send(dto.RelayMessage{Kind: dto.KindStopCapture})
		st.capturePort.Close()
		st.capturePort = nil
	}
	st.captureLaunched = false
	st.pendingCapture = nil
	for tabID, port := range st.overlayPorts {
		port.Close()
		delete(st.overlayPorts, tabID)
	}
	st.active = false
	st.recordTab = 0
	st.snapshot = dto.RecordingSnapshot{}
	zerolog.Ctx(ctx).Info().Msg("recording cleared")
}

func (c *Coordinator) teardown(ctx context.Context, st *coordState) {
	if st.active {
		c.clearRecording(ctx, st)
	}
	for _, port := range st.overlayPorts {
		port.Close()
	}
}

// pumpOverlay forwards one overlay port's inbound messages into the mailbox
// until the port closes.
func (c *Coordinator) pumpOverlay(tabID int, port *Port) {
	for {
		select {
		case <-port.Done():
			c.post(evOverlayDisconnected{tabID: tabID, port: port})
			return
		case msg := <-port.Recv():
			c.post(evOverlayMessage{tabID: tabID, msg: msg})
		}
	}
}

func (c *Coordinator) pumpCapture(port *Port) {
	for {
		select {
		case <-port.Done():
			c.post(evCaptureDisconnected{})
			return
		case msg := <-port.Recv():
			c.post(evCaptureMessage{msg: msg})
		}
	}
}

// EligibleURL reports whether a tab may host the rendering overlay.
// Privileged internal schemes cannot be scripted.
func EligibleURL(url string) bool {
	if url == "" {
		return false
	}
	return !strings.HasPrefix(url, "chrome://") && !strings.HasPrefix(url, "edge://") && !strings.HasPrefix(url, "about:")
}

func snapshotCopy(s dto.RecordingSnapshot) *dto.RecordingSnapshot {
	out := s
	return &out
}
