// ABOUTME: Tests for both control protocol clients against fake SOAP endpoints
// ABOUTME: Envelope contents, SOAPACTION headers, fault and transport error mapping
package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hearcast/hearcast/internal/logging"
	"github.com/hearcast/hearcast/internal/upnp"
)

type soapCall struct {
	action string
	body   string
}

// fakeRenderer records SOAP calls and answers with canned response bodies
// keyed by action name.
type fakeRenderer struct {
	srv       *httptest.Server
	calls     []soapCall
	responses map[string]string
}

func newFakeRenderer(t *testing.T) *fakeRenderer {
	t.Helper()
	f := &fakeRenderer{responses: map[string]string{}}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		soapAction := strings.Trim(r.Header.Get("SOAPACTION"), `"`)
		action := soapAction[strings.LastIndex(soapAction, "#")+1:]
		f.calls = append(f.calls, soapCall{action: action, body: string(body)})

		resp, ok := f.responses[action]
		if !ok {
			resp = fmt.Sprintf(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><u:%sResponse/></s:Body></s:Envelope>`, action)
		}
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(resp))
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRenderer) controller(t *testing.T, proto upnp.Protocol) Controller {
	t.Helper()
	service := "urn:schemas-upnp-org:service:AVTransport:1"
	if proto == upnp.ProtocolOpenHome {
		service = "urn:av-openhome-org:service:Playlist:1"
	}
	return New(upnp.Renderer{
		ID:          "test",
		Name:        "Fake",
		ControlURL:  f.srv.URL + "/ctl",
		ServiceType: service,
		Protocol:    proto,
	}, time.Second, logging.Nop())
}

func (f *fakeRenderer) actions() []string {
	var out []string
	for _, c := range f.calls {
		out = append(out, c.action)
	}
	return out
}

func TestAVTransportSetURIThenPlay(t *testing.T) {
	f := newFakeRenderer(t)
	c := f.controller(t, upnp.ProtocolAVTransport)
	ctx := context.Background()

	if err := c.SetTransportURI(ctx, "http://10.0.0.2:5901/stream/hearcast.wav", "audio/wav"); err != nil {
		t.Fatalf("SetTransportURI failed: %v", err)
	}
	if err := c.Play(ctx); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	got := f.actions()
	want := []string{"SetAVTransportURI", "Play"}
	if len(got) != len(want) {
		t.Fatalf("expected actions %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected actions %v, got %v", want, got)
		}
	}

	setBody := f.calls[0].body
	for _, fragment := range []string{
		`xmlns:u="urn:schemas-upnp-org:service:AVTransport:1"`,
		"<InstanceID>0</InstanceID>",
		"<CurrentURI>http://10.0.0.2:5901/stream/hearcast.wav</CurrentURI>",
		"protocolInfo=&#34;http-get:*:audio/wav:*&#34;",
	} {
		if !strings.Contains(setBody, fragment) {
			t.Errorf("SetAVTransportURI body missing %q:\n%s", fragment, setBody)
		}
	}
	if !strings.Contains(f.calls[1].body, "<Speed>1</Speed>") {
		t.Errorf("Play body missing Speed argument")
	}
}

func TestOpenHomeInsertBeforePlay(t *testing.T) {
	f := newFakeRenderer(t)
	c := f.controller(t, upnp.ProtocolOpenHome)
	ctx := context.Background()

	if err := c.SetTransportURI(ctx, "http://10.0.0.2:5901/stream/hearcast.wav", "audio/wav"); err != nil {
		t.Fatalf("SetTransportURI failed: %v", err)
	}
	if err := c.Play(ctx); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	got := f.actions()
	want := []string{"DeleteAll", "Insert", "Play"}
	if len(got) != len(want) {
		t.Fatalf("expected actions %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected actions %v, got %v", want, got)
		}
	}

	insert := f.calls[1].body
	if !strings.Contains(insert, `xmlns:u="urn:av-openhome-org:service:Playlist:1"`) {
		t.Errorf("Insert not addressed to Playlist service:\n%s", insert)
	}
	if !strings.Contains(insert, "<AfterId>0</AfterId>") {
		t.Errorf("Insert missing AfterId")
	}
	if !strings.Contains(insert, "<Uri>http://10.0.0.2:5901/stream/hearcast.wav</Uri>") {
		t.Errorf("Insert missing stream uri")
	}
}

func TestStopBothProtocols(t *testing.T) {
	for _, proto := range []upnp.Protocol{upnp.ProtocolAVTransport, upnp.ProtocolOpenHome} {
		t.Run(proto.String(), func(t *testing.T) {
			f := newFakeRenderer(t)
			c := f.controller(t, proto)
			if err := c.Stop(context.Background()); err != nil {
				t.Fatalf("Stop failed: %v", err)
			}
			if got := f.actions(); len(got) != 1 || got[0] != "Stop" {
				t.Errorf("expected single Stop action, got %v", got)
			}
		})
	}
}

func TestAVTransportStateMapping(t *testing.T) {
	tests := []struct {
		device string
		want   State
	}{
		{"PLAYING", StatePlaying},
		{"TRANSITIONING", StateTransitioning},
		{"STOPPED", StateStopped},
		{"NO_MEDIA_PRESENT", StateStopped},
		{"PAUSED_PLAYBACK", StateStopped},
		{"SOMETHING_ELSE", StateUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.device, func(t *testing.T) {
			f := newFakeRenderer(t)
			f.responses["GetTransportInfo"] = fmt.Sprintf(
				`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><u:GetTransportInfoResponse xmlns:u="urn:schemas-upnp-org:service:AVTransport:1"><CurrentTransportState>%s</CurrentTransportState><CurrentTransportStatus>OK</CurrentTransportStatus><CurrentSpeed>1</CurrentSpeed></u:GetTransportInfoResponse></s:Body></s:Envelope>`,
				tt.device)

			c := f.controller(t, upnp.ProtocolAVTransport)
			got, err := c.TransportState(context.Background())
			if err != nil {
				t.Fatalf("TransportState failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("state %s mapped to %v, want %v", tt.device, got, tt.want)
			}
		})
	}
}

func TestOpenHomeStateMapping(t *testing.T) {
	tests := []struct {
		device string
		want   State
	}{
		{"Playing", StatePlaying},
		{"Buffering", StateTransitioning},
		{"Stopped", StateStopped},
		{"Paused", StateStopped},
	}
	for _, tt := range tests {
		t.Run(tt.device, func(t *testing.T) {
			f := newFakeRenderer(t)
			f.responses["TransportState"] = fmt.Sprintf(
				`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><u:TransportStateResponse xmlns:u="urn:av-openhome-org:service:Playlist:1"><Value>%s</Value></u:TransportStateResponse></s:Body></s:Envelope>`,
				tt.device)

			c := f.controller(t, upnp.ProtocolOpenHome)
			got, err := c.TransportState(context.Background())
			if err != nil {
				t.Fatalf("TransportState failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("state %s mapped to %v, want %v", tt.device, got, tt.want)
			}
		})
	}
}

func TestFaultMapsToRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><s:Fault><faultcode>s:Client</faultcode><detail><UPnPError xmlns="urn:schemas-upnp-org:control-1-0"><errorCode>716</errorCode><errorDescription>Resource not found</errorDescription></UPnPError></detail></s:Fault></s:Body></s:Envelope>`))
	}))
	defer srv.Close()

	c := New(upnp.Renderer{
		ControlURL:  srv.URL,
		ServiceType: "urn:schemas-upnp-org:service:AVTransport:1",
		Protocol:    upnp.ProtocolAVTransport,
	}, time.Second, logging.Nop())

	err := c.Play(context.Background())
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if cerr.Kind != KindRejected {
		t.Errorf("expected rejected, got %v", cerr.Kind)
	}
	if !strings.Contains(cerr.Detail, "716") {
		t.Errorf("expected fault code in detail, got %q", cerr.Detail)
	}
}

func TestConnectionRefusedMapsToUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := New(upnp.Renderer{
		ControlURL:  srv.URL,
		ServiceType: "urn:schemas-upnp-org:service:AVTransport:1",
		Protocol:    upnp.ProtocolAVTransport,
	}, time.Second, logging.Nop())

	err := c.Play(context.Background())
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if cerr.Kind != KindUnreachable {
		t.Errorf("expected unreachable, got %v", cerr.Kind)
	}
}

func TestDeadlineMapsToTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := New(upnp.Renderer{
		ControlURL:  srv.URL,
		ServiceType: "urn:schemas-upnp-org:service:AVTransport:1",
		Protocol:    upnp.ProtocolAVTransport,
	}, time.Minute, logging.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Play(ctx)
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if cerr.Kind != KindTimeout {
		t.Errorf("expected timeout, got %v", cerr.Kind)
	}
}

func TestDidlMetadataEscapes(t *testing.T) {
	got := didlMetadata("http://host/s.wav?a=1&b=2", "audio/L16;rate=44100;channels=2", "x")
	if !strings.Contains(got, "a=1&amp;b=2") {
		t.Errorf("url ampersand not escaped: %s", got)
	}
	if strings.Contains(got, "a=1&b=2") {
		t.Errorf("raw ampersand leaked into metadata: %s", got)
	}
}
