// Package render drives per-refresh animation updates and draws.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-avatar/pkg/scene"
	"github.com/teslashibe/go-avatar/pkg/vsync"
)

// Renderer draws a scene.
type Renderer interface {
	Draw(s *scene.Scene) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(s *scene.Scene) error

// Draw calls f.
func (f RendererFunc) Draw(s *scene.Scene) error { return f(s) }

// UpdateFunc advances animation state before a draw.
type UpdateFunc func(timeMs float64)

// Stats counts driver activity.
type Stats struct {
	Frames       uint64 `json:"frames"`
	UpdatePanics uint64 `json:"update_panics"`
	DrawErrors   uint64 `json:"draw_errors"`
}

// Driver calls update then draw once per display refresh. Scene mutation and
// drawing happen only on the goroutine running Run.
type Driver struct {
	scene    *scene.Scene
	renderer Renderer
	update   UpdateFunc
	logger   *slog.Logger

	frames, panics, drawErrs atomic.Uint64

	stopOnce sync.Once
	stop     chan struct{}
}

// NewDriver creates a driver. update may be nil.
func NewDriver(s *scene.Scene, r Renderer, update UpdateFunc, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		scene:    s,
		renderer: r,
		update:   update,
		logger:   logger.With("component", "render"),
		stop:     make(chan struct{}),
	}
}

// Frame runs one update and one draw.
func (d *Driver) Frame(timeMs float64) {
	if err := d.runUpdate(timeMs); err != nil {
		if n := d.panics.Add(1); n == 1 || n%100 == 0 {
			d.logger.Error("animation update panicked", "error", err, "count", n)
		}
	}
	if err := d.renderer.Draw(d.scene); err != nil {
		if n := d.drawErrs.Add(1); n == 1 || n%100 == 0 {
			d.logger.Warn("draw failed", "error", err, "count", n)
		}
	}
	d.frames.Add(1)
}

func (d *Driver) runUpdate(timeMs float64) (err error) {
	if d.update == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("update panic: %v", r)
		}
	}()
	d.update(timeMs)
	return nil
}

// Run renders one frame per tick until ctx is cancelled, Stop is called or
// ticks is closed.
func (d *Driver) Run(ctx context.Context, ticks <-chan vsync.Tick) error {
	d.logger.Info("render loop started")
	defer d.logger.Info("render loop stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.stop:
			return nil
		case t, ok := <-ticks:
			if !ok {
				return nil
			}
			d.Frame(t.TimeMs)
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
}

// Stats returns a snapshot of the counters.
func (d *Driver) Stats() Stats {
	return Stats{
		Frames:       d.frames.Load(),
		UpdatePanics: d.panics.Load(),
		DrawErrors:   d.drawErrs.Load(),
	}
}
