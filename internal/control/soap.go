// ABOUTME: SOAP envelope construction and invocation for UPnP control
// ABOUTME: Shared by both protocol clients; classifies transport and fault errors
package control

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

const maxSOAPResponseBytes = 64 << 10

type soapClient struct {
	endpoint string
	service  string
	client   *http.Client
	log      zerolog.Logger
}

type soapArg struct {
	name  string
	value string
}

// call posts one SOAP action and returns the response's leaf element values
// keyed by local element name. Fault responses come back as *Error with
// KindRejected; transport failures as KindUnreachable or KindTimeout.
func (c *soapClient) call(ctx context.Context, action string, args []soapArg) (map[string]string, error) {
	body := buildEnvelope(c.service, action, args)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindUnreachable, Action: action, Err: err}
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPACTION", fmt.Sprintf("%q", c.service+"#"+action))
	req.Header.Set("Connection", "close")

	c.log.Debug().Str("action", action).Str("endpoint", c.endpoint).Msg("control call")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: classifyTransportError(err), Action: action, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSOAPResponseBytes))
	if err != nil {
		return nil, &Error{Kind: classifyTransportError(err), Action: action, Err: err}
	}

	values := parseLeafValues(data)
	if resp.StatusCode != http.StatusOK {
		detail := values["errorDescription"]
		if code := values["errorCode"]; code != "" {
			detail = strings.TrimSpace("fault " + code + " " + detail)
		}
		if detail == "" {
			detail = resp.Status
		}
		return nil, &Error{Kind: KindRejected, Action: action, Detail: detail}
	}
	return values, nil
}

func classifyTransportError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindUnreachable
}

func buildEnvelope(service, action string, args []soapArg) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	b.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" `)
	b.WriteString(`s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">`)
	b.WriteString(`<s:Body><u:`)
	b.WriteString(action)
	b.WriteString(` xmlns:u="`)
	b.WriteString(service)
	b.WriteString(`">`)
	for _, a := range args {
		b.WriteString("<")
		b.WriteString(a.name)
		b.WriteString(">")
		xml.EscapeText(&b, []byte(a.value))
		b.WriteString("</")
		b.WriteString(a.name)
		b.WriteString(">")
	}
	b.WriteString(`</u:`)
	b.WriteString(action)
	b.WriteString(`></s:Body></s:Envelope>`)
	return b.String()
}

// parseLeafValues walks the response and records the character data of every
// leaf element by local name. Renderer responses are shallow enough that
// this is unambiguous for the values we extract, and it is forgiving of the
// namespace quirks real devices exhibit.
func parseLeafValues(data []byte) map[string]string {
	out := make(map[string]string)
	dec := xml.NewDecoder(bytes.NewReader(data))

	var stack []string
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
			text.Reset()
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if len(stack) > 0 {
				name := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if v := strings.TrimSpace(text.String()); v != "" {
					out[name] = v
				}
			}
			text.Reset()
		}
	}
}
