package video

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v3"
)

// Signalling message types spoken by the webrtcsink signalling server.
const (
	msgWelcome        = "welcome"
	msgList           = "list"
	msgStartSession   = "startSession"
	msgSessionStarted = "sessionStarted"
	msgPeer           = "peer"
	msgEndSession     = "endSession"
	msgError          = "error"
)

// Producer is a stream advertised by the signalling server.
type Producer struct {
	ID   string            `json:"id"`
	Meta map[string]string `json:"meta"`
}

// SDP is a session description carried in a peer message.
type SDP struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICE is a trickled candidate carried in a peer message.
type ICE struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// Message is the union of every signalling message.
type Message struct {
	Type      string     `json:"type"`
	PeerID    string     `json:"peerId,omitempty"`
	SessionID string     `json:"sessionId,omitempty"`
	Producers []Producer `json:"producers,omitempty"`
	SDP       *SDP       `json:"sdp,omitempty"`
	ICE       *ICE       `json:"ice,omitempty"`
	Details   string     `json:"details,omitempty"`
}

// ParseMessage decodes one signalling frame.
func ParseMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("signalling: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("signalling: message without type")
	}
	return m, nil
}

// SelectProducer picks the producer whose meta name matches name, or the
// first producer when name is empty.
func SelectProducer(producers []Producer, name string) (Producer, error) {
	for _, p := range producers {
		if name == "" || p.Meta["name"] == name {
			return p, nil
		}
	}
	if name == "" {
		return Producer{}, fmt.Errorf("%w: none advertised", ErrNoProducer)
	}
	return Producer{}, fmt.Errorf("%w: %q not in %d producers", ErrNoProducer, name, len(producers))
}

func answerMessage(session string, sd webrtc.SessionDescription) Message {
	return Message{
		Type:      msgPeer,
		SessionID: session,
		SDP:       &SDP{Type: sd.Type.String(), SDP: sd.SDP},
	}
}

func candidateMessage(session string, c webrtc.ICECandidateInit) Message {
	return Message{
		Type:      msgPeer,
		SessionID: session,
		ICE: &ICE{
			Candidate:     c.Candidate,
			SDPMid:        c.SDPMid,
			SDPMLineIndex: c.SDPMLineIndex,
		},
	}
}

func (i *ICE) init() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     i.Candidate,
		SDPMid:        i.SDPMid,
		SDPMLineIndex: i.SDPMLineIndex,
	}
}
