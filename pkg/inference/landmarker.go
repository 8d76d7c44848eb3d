package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-avatar/pkg/frame"
)

// Config holds landmarker configuration.
type Config struct {
	// URL is the sidecar websocket endpoint.
	URL string

	// Name identifies the backend in errors and logs.
	Name string

	// Header is sent with the websocket handshake.
	Header http.Header

	HandshakeTimeout time.Duration

	Logger *slog.Logger
}

// Option is a functional option for configuring a landmarker.
type Option func(*Config)

// WithURL sets the sidecar endpoint.
func WithURL(url string) Option {
	return func(c *Config) { c.URL = url }
}

// WithName sets the backend name.
func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// WithHeader sets handshake headers.
func WithHeader(h http.Header) Option {
	return func(c *Config) { c.Header = h }
}

// WithHandshakeTimeout sets the dial timeout.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Config) { c.HandshakeTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns defaults for a sidecar on localhost.
func DefaultConfig() *Config {
	return &Config{
		URL:              "ws://127.0.0.1:8765/landmarks",
		Name:             "landmarker",
		HandshakeTimeout: 5 * time.Second,
		Logger:           slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Landmarker is a Stage backed by a face landmark sidecar.
// Requests are multiplexed over one websocket and matched to responses by ID.
// A broken connection fails outstanding requests and is redialled on the
// next call.
type Landmarker struct {
	cfg    *Config
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan LandmarkResponse
	closed  bool

	writeMu sync.Mutex
}

// NewLandmarker creates a landmarker. The connection is opened lazily.
func NewLandmarker(opts ...Option) (*Landmarker, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.URL == "" {
		return nil, ErrNoURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Landmarker{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "inference.landmarker", "backend", cfg.Name),
		pending: make(map[string]chan LandmarkResponse),
	}, nil
}

// Infer implements Stage.
func (l *Landmarker) Infer(ctx context.Context, f frame.Frame, timestampMs int64) (Result, error) {
	if f.Empty() {
		return Result{}, ErrEmptyFrame
	}

	conn, err := l.connect(ctx)
	if err != nil {
		return Result{}, err
	}

	id := uuid.NewString()
	ch := make(chan LandmarkResponse, 1)
	l.mu.Lock()
	l.pending[id] = ch
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.pending, id)
		l.mu.Unlock()
	}()

	req := NewLandmarkRequest(id, f.Data, f.Width, f.Height, timestampMs)
	l.writeMu.Lock()
	err = conn.WriteJSON(req)
	l.writeMu.Unlock()
	if err != nil {
		l.drop(conn, err)
		return Result{}, WrapError(l.cfg.Name, fmt.Errorf("send request: %w", err))
	}

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return Result{}, &BackendError{Backend: l.cfg.Name, Message: "connection lost"}
		}
		return ParseResult(l.cfg.Name, resp)
	}
}

func (l *Landmarker) connect(ctx context.Context) (*websocket.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	if l.conn != nil {
		return l.conn, nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: l.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, l.cfg.URL, l.cfg.Header)
	if err != nil {
		return nil, WrapError(l.cfg.Name, fmt.Errorf("dial %s: %w", l.cfg.URL, err))
	}
	l.conn = conn
	l.logger.Info("connected", "url", l.cfg.URL)

	go l.readLoop(conn)
	return conn, nil
}

func (l *Landmarker) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			l.drop(conn, err)
			return
		}

		var resp LandmarkResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			l.logger.Warn("invalid response", "error", err)
			continue
		}

		// Deliver under the lock so drop cannot close ch mid-send.
		l.mu.Lock()
		ch, ok := l.pending[resp.ID]
		if ok {
			delete(l.pending, resp.ID)
			ch <- resp
		}
		l.mu.Unlock()
		if !ok {
			l.logger.Debug("late response dropped", "id", resp.ID)
		}
	}
}

// drop tears down conn and fails every request waiting on it.
func (l *Landmarker) drop(conn *websocket.Conn, cause error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != conn {
		return
	}
	l.conn = nil
	conn.Close()

	if !l.closed {
		l.logger.Warn("connection lost", "error", cause)
	}
	for id, ch := range l.pending {
		close(ch)
		delete(l.pending, id)
	}
}

// Close implements Stage.
func (l *Landmarker) Close() error {
	l.mu.Lock()
	l.closed = true
	conn := l.conn
	l.mu.Unlock()

	if conn != nil {
		l.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		l.writeMu.Unlock()
		l.drop(conn, ErrClosed)
	}
	return nil
}

var _ Stage = (*Landmarker)(nil)
