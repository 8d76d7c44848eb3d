package avatar

import (
	"time"

	"github.com/teslashibe/go-avatar/internal/config"
	"github.com/teslashibe/go-avatar/pkg/detection"
	"github.com/teslashibe/go-avatar/pkg/frame"
	"github.com/teslashibe/go-avatar/pkg/inference"
	"github.com/teslashibe/go-avatar/pkg/media"
	"github.com/teslashibe/go-avatar/pkg/render"
	"github.com/teslashibe/go-avatar/pkg/scene"
	"github.com/teslashibe/go-avatar/pkg/video"
	"github.com/teslashibe/go-avatar/pkg/web"
)

func (a *App) initSource() error {
	if a.source != nil {
		return nil
	}

	switch a.cfg.Camera.Source {
	case config.SourceWebRTC:
		w := a.cfg.WebRTC
		dec := video.DefaultDecoderConfig()
		if w.FFmpeg != "" {
			dec.Path = w.FFmpeg
		}
		if w.DecodeIntervalMs > 0 {
			dec.Interval = time.Duration(w.DecodeIntervalMs) * time.Millisecond
		}
		cfg := video.DefaultConfig()
		cfg.SignallingURL = w.SignallingURL
		cfg.Producer = w.Producer
		cfg.ICEServers = w.ICEServers
		cfg.Decoder = dec

		r, err := video.NewReceiver(cfg, nil, a.logger)
		if err != nil {
			return err
		}
		a.receiver, a.source = r, r

	default:
		c := a.cfg.Camera
		cam, err := frame.OpenCamera(frame.CameraConfig{
			Device:  c.Device,
			Width:   c.Width,
			Height:  c.Height,
			FPS:     float64(c.FPS),
			Quality: c.Quality,
		}, a.logger)
		if err != nil {
			return err
		}
		a.camera, a.source = cam, cam
	}
	return nil
}

// initStage builds the landmarker chain, optionally behind a local face gate.
func (a *App) initStage() error {
	if a.stage != nil {
		return nil
	}

	lm := a.cfg.Landmarker
	urls := append([]string{lm.URL}, lm.FallbackURLs...)
	stages := make([]inference.Stage, 0, len(urls))
	for i, url := range urls {
		name := "landmarker"
		if i > 0 {
			name = "landmarker-fallback"
		}
		l, err := inference.NewLandmarker(
			inference.WithURL(url),
			inference.WithName(name),
			inference.WithHandshakeTimeout(time.Duration(lm.HandshakeTimeoutMs)*time.Millisecond),
			inference.WithLogger(a.logger),
		)
		if err != nil {
			return err
		}
		stages = append(stages, l)
	}

	var stage inference.Stage = stages[0]
	if len(stages) > 1 {
		chain, err := inference.NewChainWithLogger(a.logger, stages...)
		if err != nil {
			return err
		}
		stage = chain
	}

	if d := a.cfg.Detection; d.Enabled {
		dcfg := detection.DefaultConfig()
		dcfg.ModelPath = d.ModelPath
		if d.Confidence > 0 {
			dcfg.ScoreThreshold = d.Confidence
		}
		det, err := detection.NewYuNet(dcfg)
		if err != nil {
			// Without the pre-check every frame goes to the landmarker.
			a.logger.Warn("face detector unavailable, gate disabled", "error", err)
		} else {
			stage = inference.NewGate(det, stage, d.MinArea, a.logger)
		}
	}

	a.stage = stage
	return nil
}

// initOutput sets up the web server and, unless a renderer was supplied, the
// pose stream that stands in for the canvas track.
func (a *App) initOutput() {
	if a.cfg.Web.Enabled {
		a.web = web.NewServer(web.Config{
			Addr:      a.cfg.Web.Addr,
			StaticDir: a.cfg.Web.StaticDir,
		}, a, a.logger)
	}

	if a.renderer != nil {
		return
	}
	if a.web == nil {
		a.renderer = render.RendererFunc(func(*scene.Scene) error { return nil })
		return
	}

	a.stream = web.NewPoseRenderer(a.web.PoseHub(), a.cfg.Web.StreamFPS)
	a.renderer = a.stream
	a.tracks.OnChange(func(k media.Kind, _, to media.State) {
		if k == media.Canvas {
			a.stream.SetPaused(to != media.StateActive)
		}
	})
}
