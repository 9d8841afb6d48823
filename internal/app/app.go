// ABOUTME: Application assembly: capture, broadcast, server, and sessions
// ABOUTME: Owns the capture pipeline lifecycle and bridges components together
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hearcast/hearcast/internal/audio"
	"github.com/hearcast/hearcast/internal/broadcast"
	"github.com/hearcast/hearcast/internal/capture"
	"github.com/hearcast/hearcast/internal/config"
	"github.com/hearcast/hearcast/internal/control"
	"github.com/hearcast/hearcast/internal/session"
	"github.com/hearcast/hearcast/internal/stream"
	"github.com/hearcast/hearcast/internal/upnp"
)

// App wires the pipeline together and implements the glue interfaces: it is
// the capture sink and the streaming server's source.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	server *stream.Server
	orch   *session.Orchestrator

	mu          sync.Mutex
	engine      *capture.Engine
	broadcaster *broadcast.Broadcaster
	format      audio.Format
	running     bool
}

// New builds the application from config. Nothing starts until Run.
func New(cfg *config.Config, log zerolog.Logger) *App {
	a := &App{cfg: cfg, log: log}

	a.server = stream.NewServer(cfg.ListenPort, cfg.StreamName, a, log)

	host, err := localIP()
	if err != nil {
		// discovered renderers cannot reach us without it; surfaced at Run
		host = "127.0.0.1"
		log.Warn().Err(err).Msg("could not determine local IP, renderers may not reach the stream")
	}

	factory := func(r upnp.Renderer) control.Controller {
		return control.New(r, cfg.ControlTimeout, log)
	}
	a.orch = session.New(session.Config{
		ControlTimeout:    cfg.ControlTimeout,
		PollInterval:      cfg.PollInterval,
		DiscoveryInterval: cfg.SSDPInterval,
		DiscoveryWindow:   cfg.SSDPWindow,
		LocalHost:         host,
	}, upnp.NewDiscoverer(log), a.server, factory, a.captureFormat, log)

	// every state change goes out on the events feed for the UI collaborator
	a.orch.OnStateChange(func(ev session.Event) {
		a.server.Events().Publish(ev)
	})

	return a
}

// Sessions exposes the orchestrator: the collaborator-facing API surface.
func (a *App) Sessions() *session.Orchestrator {
	return a.orch
}

// Run starts capture and the orchestration loops, then blocks until ctx is
// done and everything has shut down.
func (a *App) Run(ctx context.Context) error {
	if err := a.startCapture(a.cfg.CaptureDevice); err != nil {
		return err
	}

	go a.orch.Run(ctx)

	<-ctx.Done()
	a.log.Info().Msg("shutting down")

	a.stopCapture(nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.Warn().Err(err).Msg("streaming server shutdown")
	}
	return nil
}

// SelectDevice tears the capture pipeline down and rebuilds it on another
// device. Active sessions were already failed if the old device died; after
// a voluntary switch the stream format may change, so they are failed too.
func (a *App) SelectDevice(name string) error {
	a.stopCapture(errors.New("capture device changed"))
	if err := a.startCapture(name); err != nil {
		return err
	}
	a.orch.CaptureRestored()
	return nil
}

func (a *App) startCapture(device string) error {
	engine := capture.New(capture.Config{
		Device:     device,
		SampleRate: a.cfg.SampleRate,
		Channels:   a.cfg.Channels,
	}, a, a.log)

	if err := engine.Start(); err != nil {
		return fmt.Errorf("starting capture: %w", err)
	}

	format := engine.Format()
	if !format.Valid() {
		engine.Stop()
		return fmt.Errorf("capture negotiated unusable format %s", format)
	}

	a.mu.Lock()
	a.engine = engine
	a.format = format
	a.broadcaster = broadcast.New(a.cfg.BufferSeconds*format.ByteRate(), a.log)
	a.running = true
	a.mu.Unlock()

	a.log.Info().Stringer("format", format).Msg("capture pipeline running")
	return nil
}

func (a *App) stopCapture(cause error) {
	a.mu.Lock()
	engine := a.engine
	b := a.broadcaster
	a.engine = nil
	a.broadcaster = nil
	a.running = false
	a.mu.Unlock()

	if engine != nil {
		engine.Stop()
	}
	if b != nil {
		b.Close(cause)
	}
}

// Frame implements capture.Sink, forwarding frames into the ring buffer.
func (a *App) Frame(p []byte) {
	a.mu.Lock()
	b := a.broadcaster
	a.mu.Unlock()
	if b != nil {
		b.Publish(p)
	}
}

// Lost implements capture.Sink: the device is gone, so the stream ends and
// every session fails until a new device is selected.
func (a *App) Lost(err error) {
	a.mu.Lock()
	b := a.broadcaster
	a.running = false
	a.mu.Unlock()

	if b != nil {
		b.Close(err)
	}
	a.orch.CaptureLost(err)
}

// Stream implements stream.Source for the HTTP server.
func (a *App) Stream() (*broadcast.Broadcaster, audio.Format, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.broadcaster, a.format, a.running && a.broadcaster != nil
}

func (a *App) captureFormat() (audio.Format, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.format, a.running
}

// localIP finds a non-loopback IPv4 address renderers can fetch from.
func localIP() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("listing interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				return ip4.String(), nil
			}
		}
	}
	return "", errors.New("no usable network interface found")
}
