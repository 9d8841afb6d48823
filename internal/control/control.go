// ABOUTME: Renderer control client interface and error taxonomy
// ABOUTME: Closed polymorphism over the AVTransport and OpenHome variants
package control

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/hearcast/hearcast/internal/upnp"
)

// State is the renderer-reported transport state, normalized across
// protocol variants.
type State int

const (
	StateUnknown State = iota
	StateStopped
	StatePlaying
	StateTransitioning
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StateTransitioning:
		return "transitioning"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrorKind classifies control call failures.
type ErrorKind int

const (
	// KindUnreachable: the renderer could not be contacted at all.
	KindUnreachable ErrorKind = iota
	// KindRejected: the renderer answered with a protocol fault.
	KindRejected
	// KindTimeout: the call did not complete within its deadline.
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindRejected:
		return "rejected"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the failure type every Controller method returns.
type Error struct {
	Kind   ErrorKind
	Action string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("control: %s %s", e.Action, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Controller drives playback on one renderer. Callers never branch on the
// protocol variant; these four operations are the whole polymorphism
// boundary.
type Controller interface {
	// SetTransportURI points the renderer at the stream.
	SetTransportURI(ctx context.Context, streamURL, mimeType string) error
	// Play starts playback of the configured URI.
	Play(ctx context.Context) error
	// Stop halts playback.
	Stop(ctx context.Context) error
	// TransportState polls the renderer's current playback state.
	TransportState(ctx context.Context) (State, error)
}

// New returns the protocol-appropriate controller for a renderer.
func New(r upnp.Renderer, timeout time.Duration, log zerolog.Logger) Controller {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c := &soapClient{
		endpoint: r.ControlURL,
		service:  r.ServiceType,
		client:   &http.Client{Timeout: timeout},
		log: log.With().
			Str("component", "control").
			Str("renderer", r.Name).
			Stringer("protocol", r.Protocol).
			Logger(),
	}
	if r.Protocol == upnp.ProtocolOpenHome {
		return &openHomeClient{soap: c}
	}
	return &avTransportClient{soap: c}
}
