// ABOUTME: SSDP renderer discovery
// ABOUTME: M-SEARCH via go-ssdp, description fetch, and classification
package upnp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/koron/go-ssdp"
	"github.com/rs/zerolog"
)

// Search targets. MediaRenderer catches plain DLNA devices; the OpenHome
// Product urn catches devices that do not advertise as MediaRenderer.
var searchTargets = []string{
	"urn:schemas-upnp-org:device:MediaRenderer:1",
	"urn:av-openhome-org:service:Product:1",
}

const maxDescriptionBytes = 256 << 10 // untrusted input, keep it bounded

// searchFunc matches ssdp.Search, injectable for tests.
type searchFunc func(searchType string, waitSec int, localAddr string) ([]ssdp.Service, error)

// Discoverer performs one-shot discovery passes. Safe for concurrent use
// with active sessions; it holds no mutable state of its own.
type Discoverer struct {
	search searchFunc
	client *http.Client
	log    zerolog.Logger
}

// NewDiscoverer builds a discoverer with a bounded HTTP client for
// description fetches.
func NewDiscoverer(log zerolog.Logger) *Discoverer {
	return &Discoverer{
		search: ssdp.Search,
		client: &http.Client{Timeout: 5 * time.Second},
		log:    log.With().Str("component", "discovery").Logger(),
	}
}

// Search multicasts M-SEARCH for every target at once, collects responses
// for the window, then fetches and parses each responder's description. The
// targets run concurrently so a pass costs one window, not one per target.
// Devices that fail to parse or expose no supported service are skipped
// silently; they are simply not renderers this system can drive.
func (d *Discoverer) Search(ctx context.Context, window time.Duration) ([]Renderer, error) {
	waitSec := int(window / time.Second)
	if waitSec < 1 {
		waitSec = 1
	}

	results := make([][]ssdp.Service, len(searchTargets))
	errs := make([]error, len(searchTargets))
	var wg sync.WaitGroup
	for i, target := range searchTargets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			results[i], errs[i] = d.search(target, waitSec, "")
		}(i, target)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("ssdp search %s: %w", searchTargets[i], err)
		}
	}

	locations := make(map[string]struct{})
	var order []string
	for _, services := range results {
		for _, svc := range services {
			if svc.Location == "" {
				continue
			}
			if _, dup := locations[svc.Location]; dup {
				continue
			}
			locations[svc.Location] = struct{}{}
			order = append(order, svc.Location)
		}
	}

	byID := make(map[string]Renderer)
	for _, loc := range order {
		r, err := d.describe(ctx, loc)
		if err != nil {
			d.log.Debug().Str("location", loc).Err(err).Msg("skipping device")
			continue
		}
		// same device advertised under several locations: first one wins
		if _, dup := byID[r.ID]; dup {
			continue
		}
		byID[r.ID] = r
	}

	out := make([]Renderer, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *Discoverer) describe(ctx context.Context, location string) (Renderer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return Renderer{}, fmt.Errorf("upnp: bad location: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return Renderer{}, fmt.Errorf("upnp: fetching description: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Renderer{}, fmt.Errorf("upnp: description fetch returned %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDescriptionBytes))
	if err != nil {
		return Renderer{}, fmt.Errorf("upnp: reading description: %w", err)
	}
	return parseDescription(data, location)
}
