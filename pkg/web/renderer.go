package web

import (
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-avatar/pkg/scene"
)

// DefaultStreamFPS caps pose frames sent to viewers.
const DefaultStreamFPS = 30

// Publisher sends encoded frames to viewers.
type Publisher interface {
	PublishJSON(v any) error
}

// PoseFrame is one streamed frame of avatar state.
type PoseFrame struct {
	Seq uint64 `json:"seq"`
	At  int64  `json:"at_ms"`
	scene.State
}

// PoseRenderer is a render.Renderer that publishes scene state to remote
// viewers instead of rasterising it. Frames beyond the rate cap are skipped.
type PoseRenderer struct {
	pub      Publisher
	interval time.Duration
	now      func() time.Time

	last   time.Time
	seq    uint64
	paused atomic.Bool
}

// NewPoseRenderer creates a renderer publishing at most fps frames a second.
func NewPoseRenderer(pub Publisher, fps float64) *PoseRenderer {
	if fps <= 0 {
		fps = DefaultStreamFPS
	}
	return &PoseRenderer{
		pub:      pub,
		interval: time.Duration(float64(time.Second) / fps),
		now:      time.Now,
	}
}

// SetPaused stops or resumes publishing, e.g. when the video track is muted.
func (r *PoseRenderer) SetPaused(p bool) {
	r.paused.Store(p)
}

// Paused reports whether publishing is paused.
func (r *PoseRenderer) Paused() bool {
	return r.paused.Load()
}

// Draw captures s and publishes it. It must be called from the render loop.
func (r *PoseRenderer) Draw(s *scene.Scene) error {
	if r.paused.Load() {
		return nil
	}
	now := r.now()
	if !r.last.IsZero() && now.Sub(r.last) < r.interval {
		return nil
	}
	r.last = now
	r.seq++

	return r.pub.PublishJSON(PoseFrame{
		Seq:   r.seq,
		At:    now.UnixMilli(),
		State: scene.Capture(s),
	})
}
