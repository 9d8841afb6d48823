// ABOUTME: AVTransport control client
// ABOUTME: SetAVTransportURI/Play/Stop/GetTransportInfo against standard UPnP renderers
package control

import "context"

type avTransportClient struct {
	soap *soapClient
}

func (c *avTransportClient) SetTransportURI(ctx context.Context, streamURL, mimeType string) error {
	_, err := c.soap.call(ctx, "SetAVTransportURI", []soapArg{
		{"InstanceID", "0"},
		{"CurrentURI", streamURL},
		{"CurrentURIMetaData", didlMetadata(streamURL, mimeType, "hearcast stream")},
	})
	return err
}

func (c *avTransportClient) Play(ctx context.Context) error {
	_, err := c.soap.call(ctx, "Play", []soapArg{
		{"InstanceID", "0"},
		{"Speed", "1"},
	})
	return err
}

func (c *avTransportClient) Stop(ctx context.Context) error {
	_, err := c.soap.call(ctx, "Stop", []soapArg{
		{"InstanceID", "0"},
	})
	return err
}

func (c *avTransportClient) TransportState(ctx context.Context) (State, error) {
	values, err := c.soap.call(ctx, "GetTransportInfo", []soapArg{
		{"InstanceID", "0"},
	})
	if err != nil {
		return StateUnknown, err
	}
	switch values["CurrentTransportState"] {
	case "PLAYING", "RECORDING":
		return StatePlaying, nil
	case "TRANSITIONING":
		return StateTransitioning, nil
	case "STOPPED", "NO_MEDIA_PRESENT", "PAUSED_PLAYBACK", "PAUSED_RECORDING":
		return StateStopped, nil
	case "":
		return StateUnknown, nil
	default:
		return StateUnknown, nil
	}
}
