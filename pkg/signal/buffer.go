// Package signal holds the most recent face-tracking result so the render
// loop can read it without waiting on inference.
package signal

import (
	"sync/atomic"

	"github.com/teslashibe/go-avatar/pkg/expression"
	"github.com/teslashibe/go-avatar/pkg/pose"
)

// Snapshot is one complete tracking result.
// Pose and Expressions always come from the same inference call.
type Snapshot struct {
	Pose        pose.Euler         `json:"pose"`
	Expressions expression.Weights `json:"expressions"`

	// TimestampMs is the frame time the result was computed for.
	TimestampMs int64 `json:"timestamp_ms"`

	// Seq increases by one per stored snapshot, starting at 1.
	Seq uint64 `json:"seq"`
}

// Buffer is a single-slot, overwrite-on-write store.
// Writers never block readers and readers always see a whole snapshot.
type Buffer struct {
	cur     atomic.Pointer[Snapshot]
	seq     atomic.Uint64
	retired atomic.Bool
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Store replaces the current snapshot. The expressions slice is owned by the
// buffer after the call. Store on a retired buffer is a no-op and returns false.
func (b *Buffer) Store(p pose.Euler, w expression.Weights, timestampMs int64) bool {
	if b.retired.Load() {
		return false
	}
	s := &Snapshot{
		Pose:        p,
		Expressions: w,
		TimestampMs: timestampMs,
		Seq:         b.seq.Add(1),
	}
	b.cur.Store(s)
	return true
}

// Load returns the latest snapshot. ok is false until the first Store.
func (b *Buffer) Load() (Snapshot, bool) {
	s := b.cur.Load()
	if s == nil {
		return Snapshot{}, false
	}
	return *s, true
}

// Seq returns the sequence number of the latest snapshot, or 0.
func (b *Buffer) Seq() uint64 {
	if s := b.cur.Load(); s != nil {
		return s.Seq
	}
	return 0
}

// Retire stops the buffer accepting writes. In-flight inference that
// completes after shutdown is dropped. The last snapshot stays readable.
func (b *Buffer) Retire() {
	b.retired.Store(true)
}

// Retired reports whether Retire has been called.
func (b *Buffer) Retired() bool {
	return b.retired.Load()
}
