package avatar

import (
	"time"

	"github.com/teslashibe/go-avatar/pkg/animation"
	"github.com/teslashibe/go-avatar/pkg/media"
	"github.com/teslashibe/go-avatar/pkg/render"
	"github.com/teslashibe/go-avatar/pkg/signal"
	"github.com/teslashibe/go-avatar/pkg/tracking"
	"github.com/teslashibe/go-avatar/pkg/web"
)

// Status implements web.Backend.
func (a *App) Status() web.Status {
	st := web.Status{
		Session: a.session,
		Channel: a.channel,
		Media:   a.tracks.States(),
		Binding: a.report,
	}
	if !a.started.IsZero() {
		st.Uptime = time.Since(a.started).Round(time.Second).String()
	}
	if a.scheduler != nil {
		st.Tracking = a.scheduler.Stats()
	}
	if a.driver != nil {
		st.Render = a.driver.Stats()
	}
	_, st.HasSignal = a.buf.Load()
	return st
}

// Signal implements web.Backend.
func (a *App) Signal() (signal.Snapshot, bool) {
	return a.buf.Load()
}

// ToggleMedia implements web.Backend.
func (a *App) ToggleMedia(k media.Kind) (media.State, error) {
	st, err := a.tracks.Toggle(k)
	if err == nil {
		a.logger.Info("track toggled", "track", k.String(), "state", st.String())
	}
	return st, err
}

// LastApply returns the outcome of the most recent animation update.
func (a *App) LastApply() (animation.Result, bool) {
	r := a.lastApply.Load()
	if r == nil {
		return animation.Result{}, false
	}
	return *r, true
}

// TrackingStats returns scheduler counters.
func (a *App) TrackingStats() tracking.Stats {
	if a.scheduler == nil {
		return tracking.Stats{}
	}
	return a.scheduler.Stats()
}

// RenderStats returns render loop counters.
func (a *App) RenderStats() render.Stats {
	if a.driver == nil {
		return render.Stats{}
	}
	return a.driver.Stats()
}

var _ web.Backend = (*App)(nil)
