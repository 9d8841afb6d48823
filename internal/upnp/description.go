// ABOUTME: UPnP device description parsing
// ABOUTME: Extracts friendly name, UDN, and the control URL of a usable service
package upnp

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Service type prefixes accepted by this system. Version suffixes vary per
// device, so matching ignores them.
const (
	openHomePlaylistPrefix = "urn:av-openhome-org:service:Playlist:"
	avTransportPrefix      = "urn:schemas-upnp-org:service:AVTransport:"
)

// errNoUsableService marks devices that are not media renderers we support.
// They are skipped, not reported.
var errNoUsableService = errors.New("upnp: no supported service in description")

type descRoot struct {
	XMLName xml.Name   `xml:"root"`
	URLBase string     `xml:"URLBase"`
	Device  descDevice `xml:"device"`
}

type descDevice struct {
	DeviceType   string        `xml:"deviceType"`
	FriendlyName string        `xml:"friendlyName"`
	UDN          string        `xml:"UDN"`
	Services     []descService `xml:"serviceList>service"`
	Devices      []descDevice  `xml:"deviceList>device"`
}

type descService struct {
	ServiceType string `xml:"serviceType"`
	ControlURL  string `xml:"controlURL"`
}

// parseDescription turns a device description document into a Renderer.
// OpenHome wins over AVTransport when a device offers both. Embedded devices
// are searched too; OpenHome stacks usually hang their services off one.
func parseDescription(data []byte, location string) (Renderer, error) {
	var root descRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return Renderer{}, fmt.Errorf("upnp: malformed description: %w", err)
	}

	base, err := baseURL(root.URLBase, location)
	if err != nil {
		return Renderer{}, err
	}

	var openHome, avTransport *descService
	findServices(&root.Device, &openHome, &avTransport)

	name := strings.TrimSpace(root.Device.FriendlyName)
	if name == "" {
		name = "Unnamed renderer"
	}

	r := Renderer{
		ID:       deviceID(root.Device.UDN, location),
		Name:     name,
		Location: location,
	}
	switch {
	case openHome != nil:
		r.Protocol = ProtocolOpenHome
		r.ServiceType = openHome.ServiceType
		r.ControlURL, err = resolveURL(base, openHome.ControlURL)
	case avTransport != nil:
		r.Protocol = ProtocolAVTransport
		r.ServiceType = avTransport.ServiceType
		r.ControlURL, err = resolveURL(base, avTransport.ControlURL)
	default:
		return Renderer{}, errNoUsableService
	}
	if err != nil {
		return Renderer{}, err
	}
	return r, nil
}

func findServices(dev *descDevice, openHome, avTransport **descService) {
	for i := range dev.Services {
		s := &dev.Services[i]
		switch {
		case strings.HasPrefix(s.ServiceType, openHomePlaylistPrefix):
			if *openHome == nil {
				*openHome = s
			}
		case strings.HasPrefix(s.ServiceType, avTransportPrefix):
			if *avTransport == nil {
				*avTransport = s
			}
		}
	}
	for i := range dev.Devices {
		findServices(&dev.Devices[i], openHome, avTransport)
	}
}

func baseURL(urlBase, location string) (*url.URL, error) {
	raw := strings.TrimSpace(urlBase)
	if raw == "" {
		raw = location
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("upnp: bad base url %q: %w", raw, err)
	}
	return u, nil
}

func resolveURL(base *url.URL, ref string) (string, error) {
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("upnp: bad control url %q: %w", ref, err)
	}
	return base.ResolveReference(r).String(), nil
}
