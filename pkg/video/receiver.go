// Package video receives a remote camera over WebRTC and publishes decoded
// pictures as frames.
package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-avatar/pkg/frame"
)

var (
	// ErrNoProducer is returned when the signalling server has no matching stream.
	ErrNoProducer = errors.New("video: producer not found")

	// ErrSessionEnded is returned when the producer ends the session.
	ErrSessionEnded = errors.New("video: session ended")

	// ErrNotH264 is returned for a video track in another codec.
	ErrNotH264 = errors.New("video: track is not H264")
)

// Config holds receiver settings.
type Config struct {
	// SignallingURL is the webrtcsink signalling websocket.
	SignallingURL string

	// Producer selects a stream by its meta name. Empty takes the first.
	Producer string

	// ICEServers are STUN/TURN URLs.
	ICEServers []string

	HandshakeTimeout time.Duration
	Decoder          DecoderConfig
}

// DefaultConfig returns settings for a signalling server on localhost.
func DefaultConfig() Config {
	return Config{
		SignallingURL:    "ws://127.0.0.1:8443",
		HandshakeTimeout: 10 * time.Second,
		Decoder:          DefaultDecoderConfig(),
	}
}

// Stats counts receiver activity.
type Stats struct {
	Packets  uint64 `json:"packets"`
	Units    uint64 `json:"units"`
	Frames   uint64 `json:"frames"`
	Failures uint64 `json:"failures"`
}

// Receiver is a frame.Source fed by a remote WebRTC camera.
type Receiver struct {
	cfg     Config
	store   *frame.Store
	decoder Decoder
	logger  *slog.Logger

	wsMu      sync.Mutex
	ws        *websocket.Conn
	pc        *webrtc.PeerConnection
	sessionMu sync.Mutex
	session   string

	// readers tracks readTrack goroutines; Run waits for them.
	readers sync.WaitGroup

	packets, units, frames, failures atomic.Uint64
}

// NewReceiver creates a receiver. A nil decoder selects ffmpeg.
func NewReceiver(cfg Config, dec Decoder, logger *slog.Logger) (*Receiver, error) {
	if cfg.SignallingURL == "" {
		return nil, errors.New("video: signalling url required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if dec == nil {
		var err error
		if dec, err = NewFFmpegDecoder(cfg.Decoder); err != nil {
			return nil, err
		}
	}
	return &Receiver{
		cfg:     cfg,
		store:   frame.NewStore(),
		decoder: dec,
		logger:  logger.With("component", "video"),
	}, nil
}

// CurrentTimestamp implements frame.Source.
func (r *Receiver) CurrentTimestamp() frame.Timestamp { return r.store.CurrentTimestamp() }

// CurrentFrame implements frame.Source.
func (r *Receiver) CurrentFrame() frame.Frame { return r.store.CurrentFrame() }

// Stats returns a snapshot of the counters.
func (r *Receiver) Stats() Stats {
	return Stats{
		Packets:  r.packets.Load(),
		Units:    r.units.Load(),
		Frames:   r.frames.Load(),
		Failures: r.failures.Load(),
	}
}

// Run negotiates a session and receives until ctx is cancelled or the
// producer goes away. Cancellation is not an error.
func (r *Receiver) Run(ctx context.Context) error {
	err := r.run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (r *Receiver) run(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: r.cfg.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, r.cfg.SignallingURL, nil)
	if err != nil {
		return fmt.Errorf("video: dial signalling: %w", err)
	}
	r.ws = ws
	defer ws.Close()

	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	if _, err := r.expect(msgWelcome); err != nil {
		return err
	}
	if err := r.send(Message{Type: msgList}); err != nil {
		return err
	}
	list, err := r.expect(msgList)
	if err != nil {
		return err
	}
	producer, err := SelectProducer(list.Producers, r.cfg.Producer)
	if err != nil {
		return err
	}
	r.logger.Info("found producer", "id", producer.ID, "name", producer.Meta["name"])

	if err := r.openPeer(ctx); err != nil {
		return err
	}
	// Closing the peer ends ReadRTP; the readers are gone before Run returns.
	defer r.readers.Wait()
	defer r.pc.Close()

	if err := r.send(Message{Type: msgStartSession, PeerID: producer.ID}); err != nil {
		return err
	}

	return r.signalling()
}

func (r *Receiver) openPeer(ctx context.Context) error {
	cfg := webrtc.Configuration{}
	if len(r.cfg.ICEServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: r.cfg.ICEServers}}
	}
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return fmt.Errorf("video: peer connection: %w", err)
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		pc.Close()
		return fmt.Errorf("video: transceiver: %w", err)
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeVideo {
			return
		}
		if !strings.EqualFold(track.Codec().MimeType, webrtc.MimeTypeH264) {
			r.logger.Error("unsupported track", "error", ErrNotH264, "codec", track.Codec().MimeType)
			return
		}
		r.logger.Info("video track", "codec", track.Codec().MimeType)
		r.readers.Add(1)
		go func() {
			defer r.readers.Done()
			r.readTrack(ctx, track)
		}()
	})
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		r.sessionMu.Lock()
		session := r.session
		r.sessionMu.Unlock()
		if session == "" {
			return
		}
		if err := r.send(candidateMessage(session, c.ToJSON())); err != nil {
			r.logger.Warn("send candidate failed", "error", err)
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		r.logger.Info("connection state", "state", s.String())
	})

	r.pc = pc
	return nil
}

// signalling handles server messages until the session ends.
func (r *Receiver) signalling() error {
	for {
		_, data, err := r.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("video: signalling: %w", err)
		}
		msg, err := ParseMessage(data)
		if err != nil {
			r.logger.Warn("bad signalling message", "error", err)
			continue
		}

		switch msg.Type {
		case msgSessionStarted:
			r.sessionMu.Lock()
			r.session = msg.SessionID
			r.sessionMu.Unlock()
		case msgPeer:
			if err := r.handlePeer(msg); err != nil {
				r.logger.Warn("peer message failed", "error", err)
			}
		case msgEndSession:
			return ErrSessionEnded
		case msgError:
			return fmt.Errorf("video: signalling error: %s", msg.Details)
		}
	}
}

func (r *Receiver) handlePeer(msg Message) error {
	if msg.SDP != nil && msg.SDP.Type == "offer" {
		offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP.SDP}
		if err := r.pc.SetRemoteDescription(offer); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}
		answer, err := r.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := r.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local description: %w", err)
		}
		return r.send(answerMessage(msg.SessionID, answer))
	}
	if msg.ICE != nil {
		return r.pc.AddICECandidate(msg.ICE.init())
	}
	return nil
}

func (r *Receiver) readTrack(ctx context.Context, track *webrtc.TrackRemote) {
	var asm Assembler
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		r.packets.Add(1)

		au, ok := asm.Push(pkt)
		if !ok {
			continue
		}
		r.units.Add(1)
		r.decode(ctx, au)
	}
}

func (r *Receiver) decode(ctx context.Context, au AccessUnit) {
	pic, err := r.decoder.Decode(ctx, au)
	if err != nil {
		if n := r.failures.Add(1); n == 1 || n%100 == 0 {
			r.logger.Warn("decode failed", "error", err, "failures", n)
		}
		return
	}
	if pic == nil {
		return
	}
	w, h := size(pic)
	if r.store.PutNow(pic, w, h) {
		r.frames.Add(1)
	}
}

func (r *Receiver) send(m Message) error {
	r.wsMu.Lock()
	defer r.wsMu.Unlock()
	if err := r.ws.WriteJSON(m); err != nil {
		return fmt.Errorf("video: send %s: %w", m.Type, err)
	}
	return nil
}

// expect reads the next message and checks its type.
func (r *Receiver) expect(typ string) (Message, error) {
	if r.cfg.HandshakeTimeout > 0 {
		r.ws.SetReadDeadline(time.Now().Add(r.cfg.HandshakeTimeout))
		defer r.ws.SetReadDeadline(time.Time{})
	}

	_, data, err := r.ws.ReadMessage()
	if err != nil {
		return Message{}, fmt.Errorf("video: waiting for %s: %w", typ, err)
	}
	msg, err := ParseMessage(data)
	if err != nil {
		return Message{}, err
	}
	if msg.Type != typ {
		return Message{}, fmt.Errorf("video: expected %s, got %s", typ, msg.Type)
	}
	return msg, nil
}

// Close releases the decoder. Call it after Run has returned.
func (r *Receiver) Close() error {
	return r.decoder.Close()
}

var _ frame.Source = (*Receiver)(nil)
