// Package frame provides the latest camera image and its playback position.
package frame

import (
	"errors"
	"math"
	"sync"
	"time"
)

// Timestamp is the playback position of a frame in seconds.
type Timestamp float64

// Unseen sorts below every real timestamp. Trackers start from it so the
// first real frame always counts as new.
var Unseen = Timestamp(math.Inf(-1))

// ErrNoFrame is returned when no frame has been captured yet.
var ErrNoFrame = errors.New("frame: no frame available")

// Frame is one encoded camera image.
type Frame struct {
	// Data is JPEG encoded.
	Data      []byte
	Width     int
	Height    int
	Timestamp Timestamp
}

// Empty reports whether f carries no image.
func (f Frame) Empty() bool {
	return len(f.Data) == 0
}

// Source is anything that exposes a current frame.
type Source interface {
	// CurrentTimestamp returns the timestamp of the latest frame, or Unseen.
	CurrentTimestamp() Timestamp

	// CurrentFrame returns the latest frame. It may be empty.
	CurrentFrame() Frame
}

// Store holds the latest frame from a producer goroutine.
// Older frames are overwritten; readers get a copy.
type Store struct {
	mu     sync.RWMutex
	cur    Frame
	frames uint64
	start  time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{cur: Frame{Timestamp: Unseen}, start: time.Now()}
}

// Put records a frame. Frames older than the current one are rejected so
// timestamps never go backwards.
func (s *Store) Put(f Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.Timestamp < s.cur.Timestamp {
		return false
	}
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	f.Data = data

	s.cur = f
	s.frames++
	return true
}

// PutNow records data stamped with the time elapsed since the store was
// created. Used by sources without their own clock.
func (s *Store) PutNow(data []byte, width, height int) bool {
	return s.Put(Frame{
		Data:      data,
		Width:     width,
		Height:    height,
		Timestamp: Timestamp(time.Since(s.start).Seconds()),
	})
}

// CurrentTimestamp implements Source.
func (s *Store) CurrentTimestamp() Timestamp {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.Timestamp
}

// CurrentFrame implements Source.
func (s *Store) CurrentFrame() Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Latest returns the current frame or ErrNoFrame.
func (s *Store) Latest() (Frame, error) {
	f := s.CurrentFrame()
	if f.Empty() {
		return Frame{}, ErrNoFrame
	}
	return f, nil
}

// Count returns the number of frames accepted.
func (s *Store) Count() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames
}

var _ Source = (*Store)(nil)
