// ABOUTME: DIDL-Lite metadata for SetAVTransportURI and Playlist Insert
// ABOUTME: Minimal music-track item wrapping the stream URL and protocolInfo
package control

import (
	"encoding/xml"
	"strings"
)

// didlMetadata renders the DIDL-Lite document renderers expect alongside a
// transport URI. Some devices refuse a bare URL, so this is always sent.
func didlMetadata(streamURL, mimeType, title string) string {
	esc := func(s string) string {
		var b strings.Builder
		xml.EscapeText(&b, []byte(s))
		return b.String()
	}

	var b strings.Builder
	b.WriteString(`<DIDL-Lite xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/" `)
	b.WriteString(`xmlns:dc="http://purl.org/dc/elements/1.1/" `)
	b.WriteString(`xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/">`)
	b.WriteString(`<item id="1" parentID="0" restricted="1">`)
	b.WriteString(`<dc:title>` + esc(title) + `</dc:title>`)
	b.WriteString(`<upnp:class>object.item.audioItem.musicTrack</upnp:class>`)
	b.WriteString(`<res bitsPerSample="16" protocolInfo="http-get:*:` + esc(mimeType) + `:*">`)
	b.WriteString(esc(streamURL))
	b.WriteString(`</res></item></DIDL-Lite>`)
	return b.String()
}
