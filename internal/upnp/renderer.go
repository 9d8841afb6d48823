// ABOUTME: Renderer descriptor types produced by discovery
// ABOUTME: Identity, control endpoint, and protocol classification
package upnp

import (
	"strings"

	"github.com/google/uuid"
)

// Protocol is the renderer control protocol family.
type Protocol int

const (
	// ProtocolOpenHome renderers expose the richer Playlist service.
	ProtocolOpenHome Protocol = iota
	// ProtocolAVTransport renderers only speak the standard UPnP service.
	ProtocolAVTransport
)

func (p Protocol) String() string {
	switch p {
	case ProtocolOpenHome:
		return "openhome"
	case ProtocolAVTransport:
		return "avtransport"
	default:
		return "unknown"
	}
}

// Renderer describes one discovered media renderer. Descriptors are
// immutable: discovery replaces the whole value when anything about the
// device changes.
type Renderer struct {
	// ID is the device UUID from its UDN, stable across discovery passes.
	ID string
	// Name is the device's advertised friendly name.
	Name string
	// ControlURL is the absolute control endpoint for the chosen service.
	ControlURL string
	// ServiceType is the full urn of the chosen service, used in SOAPACTION.
	ServiceType string
	// Protocol selects the control client variant.
	Protocol Protocol
	// Location is the device description URL the descriptor came from.
	Location string
}

// deviceID normalizes a UDN ("uuid:xxxx") into a stable id. Devices with a
// missing or mangled UDN get a deterministic id derived from the description
// URL so repeat discoveries still converge.
func deviceID(udn, location string) string {
	id := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(udn), "uuid:"))
	if id != "" {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(location)).String()
}
