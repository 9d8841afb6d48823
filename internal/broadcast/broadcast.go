// ABOUTME: Single-producer multi-cursor ring buffer for live PCM
// ABOUTME: Publish never blocks; slow cursors are fast-forwarded with ErrLagged
package broadcast

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// ErrLagged is returned by Cursor.Read exactly once per overrun, after the
// cursor has been moved forward to the oldest byte still in the buffer. The
// consumer hears a discontinuity; the producer never waits.
var ErrLagged = errors.New("broadcast: cursor lagged behind live stream")

// Broadcaster owns a fixed-capacity ring of recent audio bytes. One producer
// (the capture engine) publishes; any number of cursors read independently.
type Broadcaster struct {
	mu     sync.Mutex
	buf    []byte
	size   uint64
	head   uint64 // total bytes published since creation
	notify chan struct{}
	closed bool
	cause  error

	log zerolog.Logger
}

// New creates a broadcaster retaining capacity bytes of history.
func New(capacity int, log zerolog.Logger) *Broadcaster {
	if capacity < 1 {
		capacity = 1
	}
	return &Broadcaster{
		buf:    make([]byte, capacity),
		size:   uint64(capacity),
		notify: make(chan struct{}),
		log:    log.With().Str("component", "broadcast").Logger(),
	}
}

// Capacity returns the number of bytes of history the ring retains.
func (b *Broadcaster) Capacity() int {
	return int(b.size)
}

// Publish appends p to the ring, overwriting the oldest bytes once capacity
// is exceeded. It copies p and never blocks on readers. Publishing after
// Close is a no-op.
func (b *Broadcaster) Publish(p []byte) {
	if len(p) == 0 {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	src := p
	if uint64(len(src)) >= b.size {
		// one frame larger than the whole ring: keep only the newest bytes
		src = src[uint64(len(src))-b.size:]
	}
	off := (b.head + uint64(len(p)) - uint64(len(src))) % b.size
	n := copy(b.buf[off:], src)
	copy(b.buf, src[n:])
	b.head += uint64(len(p))

	ch := b.notify
	b.notify = make(chan struct{})
	b.mu.Unlock()

	close(ch)
}

// Close wakes all blocked cursors. Readers drain what is already buffered and
// then receive cause, or io.EOF when cause is nil.
func (b *Broadcaster) Close(cause error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.cause = cause
	ch := b.notify
	b.mu.Unlock()

	close(ch)
}

// Subscribe returns a cursor positioned at the live edge. Each cursor belongs
// to exactly one consumer and must not be shared.
func (b *Broadcaster) Subscribe() *Cursor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &Cursor{b: b, pos: b.head}
}

// Cursor is an independent read position into the broadcaster's ring.
type Cursor struct {
	b   *Broadcaster
	pos uint64
}

// Read copies buffered bytes after the cursor position into p, blocking until
// data arrives, ctx is done, or the broadcaster closes. When the cursor has
// fallen more than the ring capacity behind, it is advanced to the oldest
// retained byte and Read returns 0, ErrLagged; the next Read resumes there.
func (c *Cursor) Read(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	b := c.b

	b.mu.Lock()
	for {
		if b.head-c.pos > b.size {
			lost := b.head - b.size - c.pos
			c.pos = b.head - b.size
			b.mu.Unlock()
			b.log.Debug().Uint64("bytes_lost", lost).Msg("cursor lagged, fast-forwarding")
			return 0, ErrLagged
		}
		if b.head > c.pos {
			n := b.head - c.pos
			if n > uint64(len(p)) {
				n = uint64(len(p))
			}
			off := c.pos % b.size
			k := copy(p[:n], b.buf[off:])
			copy(p[k:n], b.buf)
			c.pos += n
			b.mu.Unlock()
			return int(n), nil
		}
		if b.closed {
			cause := b.cause
			b.mu.Unlock()
			if cause == nil {
				cause = io.EOF
			}
			return 0, cause
		}

		ch := b.notify
		b.mu.Unlock()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ch:
		}
		b.mu.Lock()
	}
}

// Offset returns the total number of bytes the cursor has consumed or
// skipped since the broadcaster was created. Test and diagnostics hook.
func (c *Cursor) Offset() uint64 {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	return c.pos
}
