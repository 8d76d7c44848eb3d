package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// queueDepth bounds frames waiting for the hub loop.
const queueDepth = 256

// Hub owns the viewers of one stream. All viewer bookkeeping happens on the
// Run goroutine; publishers never block.
type Hub struct {
	stream string
	logger *slog.Logger

	frames chan Frame
	join   chan *Client
	leave  chan *Client

	mu      sync.RWMutex
	viewers map[*Client]struct{}
	last    Frame
	hasLast bool

	running   atomic.Bool
	overflows atomic.Uint64
}

// New creates a hub for the named stream.
func New(stream string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		stream:  stream,
		logger:  logger.With("component", "hub", "stream", stream),
		frames:  make(chan Frame, queueDepth),
		join:    make(chan *Client),
		leave:   make(chan *Client),
		viewers: make(map[*Client]struct{}),
	}
}

// Run serves joins, leaves and frames until ctx is cancelled. Every viewer's
// outbox is closed on return, which ends its connection.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer h.running.Store(false)
	defer h.disconnectAll()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.join:
			h.add(c)
		case c := <-h.leave:
			h.remove(c, "left")
		case f := <-h.frames:
			h.fanOut(f)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.viewers[c] = struct{}{}
	n := len(h.viewers)
	last, ok := h.last, h.hasLast
	h.mu.Unlock()

	if ok {
		select {
		case c.outbox <- last:
		default:
		}
	}
	h.logger.Info("viewer joined", "viewer", c.ID, "viewers", n)
}

func (h *Hub) remove(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.viewers[c]
	if ok {
		delete(h.viewers, c)
		close(c.outbox)
	}
	n := len(h.viewers)
	h.mu.Unlock()

	if ok {
		h.logger.Info("viewer gone", "viewer", c.ID, "reason", reason, "viewers", n)
	}
}

// fanOut delivers f to every viewer. A viewer whose outbox is full is cut off
// rather than allowed to stall the stream.
func (h *Hub) fanOut(f Frame) {
	h.mu.Lock()
	h.last, h.hasLast = f, true
	var slow []*Client
	for c := range h.viewers {
		select {
		case c.outbox <- f:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.remove(c, "too slow")
	}
}

func (h *Hub) disconnectAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.viewers {
		close(c.outbox)
		delete(h.viewers, c)
	}
}

// Publish queues f for every viewer. When the queue is full the frame is
// discarded; the next one supersedes it anyway.
func (h *Hub) Publish(f Frame) {
	select {
	case h.frames <- f:
	default:
		if n := h.overflows.Add(1); n == 1 || n%100 == 0 {
			h.logger.Warn("stream queue full, frame discarded", "discarded", n)
		}
	}
}

// PublishJSON encodes v and publishes it as a text frame.
func (h *Hub) PublishJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Publish(Text(data))
	return nil
}

// PublishBinary publishes data as a binary frame.
func (h *Hub) PublishBinary(data []byte) {
	h.Publish(Binary(data))
}

// Viewers returns the number of connected viewers.
func (h *Hub) Viewers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// Running reports whether Run is active.
func (h *Hub) Running() bool {
	return h.running.Load()
}
