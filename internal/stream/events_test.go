// ABOUTME: Tests for the WebSocket event hub
// ABOUTME: Delivery to connected clients and non-blocking publish
package stream

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hearcast/hearcast/internal/logging"
)

type testEvent struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

func dialHub(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubDeliversEvents(t *testing.T) {
	hub := NewHub(logging.Nop())
	ts := httptest.NewServer(hub)
	defer ts.Close()

	conn := dialHub(t, ts)

	// registration races the dial returning; give the hub a beat
	deadline := time.Now().Add(time.Second)
	for {
		hub.Publish(testEvent{Type: "session", State: "playing"})

		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		var got testEvent
		if err := conn.ReadJSON(&got); err == nil {
			if got.Type != "session" || got.State != "playing" {
				t.Errorf("unexpected event %+v", got)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("no event delivered")
		}
	}
}

func TestHubPublishWithoutClientsDoesNotBlock(t *testing.T) {
	hub := NewHub(logging.Nop())
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish(testEvent{Type: "capture", State: "running"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no clients")
	}
}

func TestHubCloseAllDisconnectsClients(t *testing.T) {
	hub := NewHub(logging.Nop())
	ts := httptest.NewServer(hub)
	defer ts.Close()

	conn := dialHub(t, ts)

	// wait for registration
	deadline := time.Now().Add(time.Second)
	for {
		hub.mu.Lock()
		n := len(hub.clients)
		hub.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.CloseAll()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected read error after CloseAll")
	}

	hub.mu.Lock()
	n := len(hub.clients)
	hub.mu.Unlock()
	if n != 0 {
		t.Errorf("expected no clients after CloseAll, got %d", n)
	}
}
