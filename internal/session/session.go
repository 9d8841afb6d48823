// ABOUTME: Session types and collaborator-facing events
// ABOUTME: Per-renderer state machine vocabulary used by the orchestrator
package session

import (
	"github.com/hearcast/hearcast/internal/control"
	"github.com/hearcast/hearcast/internal/upnp"
)

// State is the orchestrator's per-renderer session state.
type State int

const (
	StateIdle State = iota
	StateActivating
	StatePlaying
	StateStopping
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActivating:
		return "activating"
	case StatePlaying:
		return "playing"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is pushed to state-change listeners and over the events feed.
type Event struct {
	Type         string `json:"type"` // "session", "renderer", "capture"
	RendererID   string `json:"renderer_id,omitempty"`
	RendererName string `json:"renderer_name,omitempty"`
	State        string `json:"state"`
	Detail       string `json:"detail,omitempty"`
}

// Status is the merged renderer + session view handed to the UI collaborator.
type Status struct {
	Renderer upnp.Renderer
	State    State
	Detail   string
}

// session is the orchestrator-private mutable record. All fields are guarded
// by the orchestrator mutex; gen invalidates results of superseded control
// calls.
type session struct {
	renderer      upnp.Renderer
	ctl           control.Controller
	state         State
	lastTransport control.State
	detail        string
	gen           uint64
}
