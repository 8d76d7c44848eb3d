// Package media tracks the lifecycle of the local audio, camera and rendered
// avatar tracks of a call.
package media

import (
	"fmt"
	"sync"
)

// Kind identifies a local track.
type Kind int

const (
	Audio Kind = iota
	Video
	// Canvas is the rendered avatar output published in place of Video.
	Canvas
)

// Kinds returns every track kind.
func Kinds() []Kind {
	return []Kind{Audio, Video, Canvas}
}

func (k Kind) String() string {
	switch k {
	case Audio:
		return "audio"
	case Video:
		return "video"
	case Canvas:
		return "canvas"
	default:
		return "unknown"
	}
}

// ParseKind converts a name to a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// State is a track lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateMuted
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateMuted:
		return "muted"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Hook is notified after a track changes state.
type Hook func(k Kind, from, to State)

// Local holds the state of every local track.
type Local struct {
	mu     sync.Mutex
	states [3]State
	hooks  []Hook
}

// NewLocal returns tracks in the uninitialized state.
func NewLocal() *Local {
	return &Local{}
}

// OnChange registers a hook. Hooks run without the lock held.
func (l *Local) OnChange(h Hook) {
	l.mu.Lock()
	l.hooks = append(l.hooks, h)
	l.mu.Unlock()
}

// State returns the state of k.
func (l *Local) State(k Kind) State {
	if k < Audio || k > Canvas {
		return StateUninitialized
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.states[k]
}

// States returns a copy of every track state keyed by kind name.
func (l *Local) States() map[string]State {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]State, len(l.states))
	for _, k := range Kinds() {
		out[k.String()] = l.states[k]
	}
	return out
}

func validTransition(from, to State) bool {
	switch from {
	case StateUninitialized:
		return to == StateActive || to == StateReleased
	case StateActive:
		return to == StateMuted || to == StateReleased
	case StateMuted:
		return to == StateActive || to == StateReleased
	default:
		return false
	}
}

func (l *Local) transition(k Kind, to State) error {
	if k < Audio || k > Canvas {
		return fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}

	l.mu.Lock()
	from := l.states[k]
	if !validTransition(from, to) {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, k, from, to)
	}
	l.states[k] = to
	hooks := append([]Hook(nil), l.hooks...)
	l.mu.Unlock()

	for _, h := range hooks {
		h(k, from, to)
	}
	return nil
}

// Activate starts a track.
func (l *Local) Activate(k Kind) error {
	return l.transition(k, StateActive)
}

// Mute mutes an active track.
func (l *Local) Mute(k Kind) error {
	return l.transition(k, StateMuted)
}

// Unmute resumes a muted track.
func (l *Local) Unmute(k Kind) error {
	return l.transition(k, StateActive)
}

// Toggle flips a track between active and muted and returns the new state.
func (l *Local) Toggle(k Kind) (State, error) {
	switch l.State(k) {
	case StateActive:
		return StateMuted, l.Mute(k)
	case StateMuted:
		return StateActive, l.Unmute(k)
	default:
		cur := l.State(k)
		return cur, fmt.Errorf("%w: cannot toggle %s track in state %s", ErrInvalidTransition, k, cur)
	}
}

// ToggleMic toggles the microphone.
func (l *Local) ToggleMic() (State, error) {
	return l.Toggle(Audio)
}

// ToggleVideo toggles the published video, which is the rendered avatar.
func (l *Local) ToggleVideo() (State, error) {
	return l.Toggle(Canvas)
}

// ReleaseAll releases every track that is not already released.
// Used when leaving a channel.
func (l *Local) ReleaseAll() {
	for _, k := range Kinds() {
		if l.State(k) != StateReleased {
			_ = l.transition(k, StateReleased)
		}
	}
}
