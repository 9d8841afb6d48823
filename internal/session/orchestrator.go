// ABOUTME: Session orchestrator binding renderers to the live stream
// ABOUTME: Discovery loop, activation state machine, and transport polling
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hearcast/hearcast/internal/audio"
	"github.com/hearcast/hearcast/internal/control"
	"github.com/hearcast/hearcast/internal/upnp"
)

// streamMimeType is what renderers are told the stream is. The server sends
// a WAV header, so plain audio/wav keeps the widest range of devices happy.
const streamMimeType = "audio/wav"

var (
	// ErrUnknownRenderer means the id does not match any discovered device.
	ErrUnknownRenderer = errors.New("session: unknown renderer")
	// ErrAlreadyActive means Activate was called for a session that is
	// already activating or playing. An intervening Deactivate is required.
	ErrAlreadyActive = errors.New("session: renderer already active")
	// ErrNoCapture means activation was attempted with no audio to serve.
	ErrNoCapture = errors.New("session: no capture pipeline running")
)

// Discoverer is the discovery dependency, satisfied by upnp.Discoverer.
type Discoverer interface {
	Search(ctx context.Context, window time.Duration) ([]upnp.Renderer, error)
}

// StreamHost is the streaming server dependency, satisfied by stream.Server.
type StreamHost interface {
	Start() error
	URL(host string) string
}

// ControllerFactory builds the protocol-appropriate control client for a
// renderer; injectable for tests.
type ControllerFactory func(r upnp.Renderer) control.Controller

// Config tunes the orchestrator's loops and control calls.
type Config struct {
	ControlTimeout    time.Duration
	PollInterval      time.Duration
	DiscoveryInterval time.Duration
	DiscoveryWindow   time.Duration
	// LocalHost is the IP renderers should fetch the stream from.
	LocalHost string
}

// Orchestrator owns all sessions. It is the only writer of session state;
// control call results come back by value and are folded in under one mutex.
type Orchestrator struct {
	cfg        Config
	discoverer Discoverer
	registry   *upnp.Registry
	host       StreamHost
	newCtl     ControllerFactory
	// format reports the active capture format; ok is false when no
	// capture pipeline is running.
	format func() (audio.Format, bool)
	log    zerolog.Logger

	mu         sync.Mutex
	sessions   map[string]*session
	captureErr error

	listenerMu sync.Mutex
	listeners  []func(Event)
}

// New wires the orchestrator. The capture format callback decides whether
// activation is possible at all.
func New(cfg Config, d Discoverer, host StreamHost, newCtl ControllerFactory, format func() (audio.Format, bool), log zerolog.Logger) *Orchestrator {
	if cfg.ControlTimeout <= 0 {
		cfg.ControlTimeout = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.DiscoveryInterval <= 0 {
		cfg.DiscoveryInterval = 60 * time.Second
	}
	if cfg.DiscoveryWindow <= 0 {
		cfg.DiscoveryWindow = 4 * time.Second
	}
	return &Orchestrator{
		cfg:        cfg,
		discoverer: d,
		registry:   upnp.NewRegistry(),
		host:       host,
		newCtl:     newCtl,
		format:     format,
		log:        log.With().Str("component", "session").Logger(),
		sessions:   make(map[string]*session),
	}
}

// Run drives the discovery and polling loops until ctx is done. An initial
// discovery pass runs immediately.
func (o *Orchestrator) Run(ctx context.Context) {
	o.Refresh(ctx)

	discoverTick := time.NewTicker(o.cfg.DiscoveryInterval)
	pollTick := time.NewTicker(o.cfg.PollInterval)
	defer discoverTick.Stop()
	defer pollTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-discoverTick.C:
			o.Refresh(ctx)
		case <-pollTick.C:
			o.pollSessions(ctx)
		}
	}
}

// Refresh runs one discovery pass and reconciles the renderer registry.
func (o *Orchestrator) Refresh(ctx context.Context) {
	found, err := o.discoverer.Search(ctx, o.cfg.DiscoveryWindow)
	if err != nil {
		o.log.Warn().Err(err).Msg("discovery pass failed")
		return
	}
	added, removed := o.registry.Update(found)

	for _, r := range added {
		o.log.Info().Str("renderer", r.Name).Stringer("protocol", r.Protocol).Msg("renderer discovered")
		o.emit(Event{Type: "renderer", RendererID: r.ID, RendererName: r.Name, State: "found"})
	}
	for _, r := range removed {
		o.log.Info().Str("renderer", r.Name).Msg("renderer gone")
		o.dropSession(r.ID)
		o.emit(Event{Type: "renderer", RendererID: r.ID, RendererName: r.Name, State: "lost"})
	}
}

// Renderers returns the merged renderer + session view, stable-sorted.
func (o *Orchestrator) Renderers() []Status {
	renderers := o.registry.Renderers()

	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Status, 0, len(renderers))
	for _, r := range renderers {
		st := Status{Renderer: r, State: StateIdle}
		if s, ok := o.sessions[r.ID]; ok {
			st.State = s.state
			st.Detail = s.detail
		}
		out = append(out, st)
	}
	return out
}

// OnStateChange registers a listener for session, renderer, and capture
// events. Listeners are called outside the orchestrator lock and must not
// block for long.
func (o *Orchestrator) OnStateChange(fn func(Event)) {
	o.listenerMu.Lock()
	o.listeners = append(o.listeners, fn)
	o.listenerMu.Unlock()
}

// CaptureStatus reports whether audio is being served and, if not, why.
func (o *Orchestrator) CaptureStatus() (ok bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, running := o.format()
	return running && o.captureErr == nil, o.captureErr
}

// Activate points the renderer at the stream URL and starts playback. It
// returns immediately; the outcome arrives as a state-change event. The
// streaming server is started lazily here, on first activation.
func (o *Orchestrator) Activate(id string) error {
	r, ok := o.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRenderer, id)
	}
	if _, running := o.format(); !running {
		return ErrNoCapture
	}

	o.mu.Lock()
	s, ok := o.sessions[id]
	if !ok {
		s = &session{renderer: r, ctl: o.newCtl(r)}
		o.sessions[id] = s
	}
	switch s.state {
	case StateActivating, StatePlaying, StateStopping:
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyActive, r.Name)
	}
	// re-discovered endpoint may differ from the one the session was
	// created with; always control the current descriptor
	if s.renderer != r {
		s.renderer = r
		s.ctl = o.newCtl(r)
	}
	s.state = StateActivating
	s.detail = ""
	s.gen++
	gen := s.gen
	ctl := s.ctl
	o.mu.Unlock()

	o.emit(o.sessionEvent(r, StateActivating, ""))
	go o.activate(r, ctl, gen)
	return nil
}

func (o *Orchestrator) activate(r upnp.Renderer, ctl control.Controller, gen uint64) {
	fail := func(err error) {
		o.log.Warn().Str("renderer", r.Name).Err(err).Msg("activation failed")
		o.transition(r.ID, gen, StateActivating, StateFailed, err.Error())
	}

	if err := o.host.Start(); err != nil {
		fail(err)
		return
	}
	streamURL := o.host.URL(o.cfg.LocalHost)

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.ControlTimeout)
	defer cancel()

	if err := ctl.SetTransportURI(ctx, streamURL, streamMimeType); err != nil {
		fail(err)
		return
	}
	if err := ctl.Play(ctx); err != nil {
		fail(err)
		return
	}

	o.log.Info().Str("renderer", r.Name).Str("url", streamURL).Msg("renderer playing")
	o.transition(r.ID, gen, StateActivating, StatePlaying, "")
}

// Deactivate stops playback and releases the session binding. Non-blocking;
// a Failed session is simply re-armed to Idle.
func (o *Orchestrator) Deactivate(id string) error {
	o.mu.Lock()
	s, ok := o.sessions[id]
	if !ok || s.state == StateIdle || s.state == StateStopping {
		o.mu.Unlock()
		return nil
	}
	r := s.renderer
	if s.state == StateFailed {
		s.state = StateIdle
		s.detail = ""
		s.gen++
		o.mu.Unlock()
		o.emit(o.sessionEvent(r, StateIdle, ""))
		return nil
	}

	s.state = StateStopping
	s.gen++
	gen := s.gen
	ctl := s.ctl
	o.mu.Unlock()

	o.emit(o.sessionEvent(r, StateStopping, ""))
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.ControlTimeout)
		defer cancel()
		if err := ctl.Stop(ctx); err != nil {
			// the renderer may already be gone; the session is released
			// either way
			o.log.Warn().Str("renderer", r.Name).Err(err).Msg("stop failed")
		}
		o.transition(r.ID, gen, StateStopping, StateIdle, "")
	}()
	return nil
}

// CaptureLost fails every active session; with the device gone there is
// nothing left to serve. Stop commands go out best-effort.
func (o *Orchestrator) CaptureLost(cause error) {
	o.mu.Lock()
	o.captureErr = cause
	type target struct {
		r   upnp.Renderer
		ctl control.Controller
	}
	var targets []target
	for _, s := range o.sessions {
		if s.state != StateActivating && s.state != StatePlaying {
			continue
		}
		s.state = StateFailed
		s.detail = cause.Error()
		s.gen++
		targets = append(targets, target{s.renderer, s.ctl})
	}
	o.mu.Unlock()

	o.log.Error().Err(cause).Int("sessions", len(targets)).Msg("capture lost, failing sessions")
	o.emit(Event{Type: "capture", State: "lost", Detail: cause.Error()})
	for _, tgt := range targets {
		o.emit(o.sessionEvent(tgt.r, StateFailed, cause.Error()))
		go func(tgt target) {
			ctx, cancel := context.WithTimeout(context.Background(), o.cfg.ControlTimeout)
			defer cancel()
			_ = tgt.ctl.Stop(ctx)
		}(tgt)
	}
}

// CaptureRestored clears the capture failure after a new device was picked.
func (o *Orchestrator) CaptureRestored() {
	o.mu.Lock()
	o.captureErr = nil
	o.mu.Unlock()
	o.emit(Event{Type: "capture", State: "running"})
}

// pollSessions asks every playing renderer for its transport state. A stop
// we did not initiate is an ordinary external event: the session returns to
// Idle, trusting the device's report.
func (o *Orchestrator) pollSessions(ctx context.Context) {
	type probe struct {
		r   upnp.Renderer
		ctl control.Controller
		gen uint64
	}
	o.mu.Lock()
	var probes []probe
	for _, s := range o.sessions {
		if s.state == StatePlaying {
			probes = append(probes, probe{s.renderer, s.ctl, s.gen})
		}
	}
	o.mu.Unlock()

	// each renderer's poll runs independently; one slow device must not
	// delay the others
	for _, p := range probes {
		go func(p probe) {
			callCtx, cancel := context.WithTimeout(ctx, o.cfg.ControlTimeout)
			defer cancel()
			state, err := p.ctl.TransportState(callCtx)
			if err != nil {
				o.log.Debug().Str("renderer", p.r.Name).Err(err).Msg("transport poll failed")
				return
			}
			o.observeTransport(p.r, p.gen, state)
		}(p)
	}
}

func (o *Orchestrator) observeTransport(r upnp.Renderer, gen uint64, state control.State) {
	o.mu.Lock()
	s, ok := o.sessions[r.ID]
	if !ok || s.gen != gen || s.state != StatePlaying {
		o.mu.Unlock()
		return
	}
	s.lastTransport = state
	if state != control.StateStopped {
		o.mu.Unlock()
		return
	}
	// renderer-side stop (user used the device's own controls)
	s.state = StateIdle
	s.gen++
	o.mu.Unlock()

	o.log.Info().Str("renderer", r.Name).Msg("renderer stopped on its own")
	o.emit(o.sessionEvent(r, StateIdle, "stopped by renderer"))
}

// transition applies a control-call outcome if the session has not been
// superseded by a newer user action.
func (o *Orchestrator) transition(id string, gen uint64, from, to State, detail string) {
	o.mu.Lock()
	s, ok := o.sessions[id]
	if !ok || s.gen != gen || s.state != from {
		o.mu.Unlock()
		return
	}
	s.state = to
	s.detail = detail
	r := s.renderer
	o.mu.Unlock()

	o.emit(o.sessionEvent(r, to, detail))
}

func (o *Orchestrator) dropSession(id string) {
	o.mu.Lock()
	delete(o.sessions, id)
	o.mu.Unlock()
}

func (o *Orchestrator) sessionEvent(r upnp.Renderer, state State, detail string) Event {
	return Event{
		Type:         "session",
		RendererID:   r.ID,
		RendererName: r.Name,
		State:        state.String(),
		Detail:       detail,
	}
}

func (o *Orchestrator) emit(ev Event) {
	o.listenerMu.Lock()
	listeners := make([]func(Event), len(o.listeners))
	copy(listeners, o.listeners)
	o.listenerMu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}
