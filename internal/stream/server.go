// ABOUTME: HTTP server exposing the live capture as a streaming WAV resource
// ABOUTME: One fixed stream path, independent cursor per connection, /events feed
package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hearcast/hearcast/internal/audio"
	"github.com/hearcast/hearcast/internal/broadcast"
)

const serverHeader = "hearcast"

// Source hands the server the live broadcaster. ok is false while no capture
// pipeline is running, in which case stream requests are refused.
type Source interface {
	Stream() (b *broadcast.Broadcaster, format audio.Format, ok bool)
}

// Server serves exactly one stream resource plus the event feed. It starts
// lazily on first activation and can be shut down with a bounded context.
type Server struct {
	port   int
	name   string
	source Source
	hub    *Hub
	log    zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *http.Server
}

// NewServer builds the server; nothing listens until Start.
func NewServer(port int, name string, source Source, log zerolog.Logger) *Server {
	s := &Server{
		port:   port,
		name:   name,
		source: source,
		hub:    NewHub(log),
		log:    log.With().Str("component", "stream").Logger(),
	}
	return s
}

// StreamPath is the one resource path this server serves audio on.
func (s *Server) StreamPath() string {
	return "/stream/" + s.name + ".wav"
}

// URL returns the stream URL as reachable from the given local IP.
func (s *Server) URL(host string) string {
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(host, strconv.Itoa(s.port)), s.StreamPath())
}

// Events exposes the hub so the orchestration layer can publish into it.
func (s *Server) Events() *Hub {
	return s.hub
}

// Start begins listening. Calling it again while running is a no-op, which
// is what lazy start-on-first-activation wants.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("stream server listen: %w", err)
	}

	s.listener = ln
	s.httpSrv = &http.Server{Handler: s.routes()}

	s.log.Info().Str("path", s.StreamPath()).Int("port", s.port).Msg("streaming server listening")
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("streaming server failed")
		}
	}()
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.StreamPath(), s.handleStream)
	mux.Handle("/events", s.hub)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return mux
}

// Shutdown stops the listener and disconnects all clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.listener = nil
	s.httpSrv = nil
	s.mu.Unlock()

	s.hub.CloseAll()
	if srv == nil {
		return nil
	}
	// streaming connections never finish on their own; close them hard
	// after the graceful window
	err := srv.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return srv.Close()
	}
	return err
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != s.StreamPath() {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	b, format, ok := s.source.Stream()
	if !ok {
		http.Error(w, "no capture running", http.StatusServiceUnavailable)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "audio/vnd.wave;codec=1")
	h.Set("Server", serverHeader)
	h.Set("icy-name", s.name)
	h.Set("Connection", "close")
	h.Set("Accept-Ranges", "none")
	h.Set("TransferMode.dlna.org", "Streaming")
	// renderers cope badly with chunked encoding; claim a huge fixed length
	h.Set("Content-Length", strconv.FormatUint(0xFFFFFFFF-1, 10))

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	remote := r.RemoteAddr
	s.log.Info().Str("remote", remote).Stringer("format", format).Msg("streaming started")

	if _, err := w.Write(WAVHeader(format)); err != nil {
		return
	}
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	cursor := b.Subscribe()
	buf := make([]byte, 4096)
	ctx := r.Context()
	for {
		n, err := cursor.Read(ctx, buf)
		if err != nil {
			if errors.Is(err, broadcast.ErrLagged) {
				// renderer hears a skip; keep serving from the new offset
				s.log.Debug().Str("remote", remote).Msg("client lagged, stream fast-forwarded")
				continue
			}
			s.log.Info().Str("remote", remote).Err(err).Msg("streaming ended")
			return
		}
		if _, err := w.Write(buf[:n]); err != nil {
			s.log.Info().Str("remote", remote).Msg("client disconnected")
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
