// ABOUTME: OpenHome Playlist control client
// ABOUTME: DeleteAll+Insert+Play sequence and TransportState polling
package control

import "context"

type openHomeClient struct {
	soap *soapClient
}

// SetTransportURI clears the device playlist and inserts the stream as the
// only track. OpenHome renderers play from their playlist, so "set the URI"
// means owning slot one.
func (c *openHomeClient) SetTransportURI(ctx context.Context, streamURL, mimeType string) error {
	if _, err := c.soap.call(ctx, "DeleteAll", nil); err != nil {
		return err
	}
	_, err := c.soap.call(ctx, "Insert", []soapArg{
		{"AfterId", "0"},
		{"Uri", streamURL},
		{"Metadata", didlMetadata(streamURL, mimeType, "hearcast stream")},
	})
	return err
}

func (c *openHomeClient) Play(ctx context.Context) error {
	_, err := c.soap.call(ctx, "Play", nil)
	return err
}

func (c *openHomeClient) Stop(ctx context.Context) error {
	_, err := c.soap.call(ctx, "Stop", nil)
	return err
}

func (c *openHomeClient) TransportState(ctx context.Context) (State, error) {
	values, err := c.soap.call(ctx, "TransportState", nil)
	if err != nil {
		return StateUnknown, err
	}
	switch values["Value"] {
	case "Playing":
		return StatePlaying, nil
	case "Buffering":
		return StateTransitioning, nil
	case "Stopped", "Paused":
		return StateStopped, nil
	default:
		return StateUnknown, nil
	}
}
