// Package avatar assembles the face tracking pipeline: a frame source feeds
// an inference stage on display refresh, results land in a signal buffer, and
// the render loop maps the latest signal onto a rigged avatar each frame.
package avatar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-avatar/internal/config"
	"github.com/teslashibe/go-avatar/pkg/animation"
	"github.com/teslashibe/go-avatar/pkg/frame"
	"github.com/teslashibe/go-avatar/pkg/inference"
	"github.com/teslashibe/go-avatar/pkg/media"
	"github.com/teslashibe/go-avatar/pkg/render"
	"github.com/teslashibe/go-avatar/pkg/rig"
	"github.com/teslashibe/go-avatar/pkg/scene"
	"github.com/teslashibe/go-avatar/pkg/signal"
	"github.com/teslashibe/go-avatar/pkg/tracking"
	"github.com/teslashibe/go-avatar/pkg/video"
	"github.com/teslashibe/go-avatar/pkg/vsync"
	"github.com/teslashibe/go-avatar/pkg/web"
)

// Option overrides a pipeline component, mostly for tests and embedding.
type Option func(*App)

// WithSource uses src instead of the configured camera.
func WithSource(src frame.Source) Option {
	return func(a *App) { a.source = src }
}

// WithStage uses stage instead of the configured landmarker.
func WithStage(stage inference.Stage) Option {
	return func(a *App) { a.stage = stage }
}

// WithModel uses an already loaded avatar instead of reading the model file.
func WithModel(root *scene.Node) Option {
	return func(a *App) { a.model = root }
}

// WithRenderer draws with r instead of streaming pose to web viewers.
func WithRenderer(r render.Renderer) Option {
	return func(a *App) { a.renderer = r }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// App is one avatar session.
type App struct {
	cfg     config.Config
	logger  *slog.Logger
	session string
	channel string
	started time.Time

	model    *scene.Node
	scene    *scene.Scene
	binding  *rig.Binding
	report   rig.Report
	buf      *signal.Buffer
	mapper   *animation.Mapper
	tracks   *media.Local
	display  *vsync.Display
	source   frame.Source
	stage    inference.Stage
	renderer render.Renderer

	scheduler *tracking.Scheduler
	driver    *render.Driver
	web       *web.Server
	stream    *web.PoseRenderer

	camera   *frame.Camera
	receiver *video.Receiver

	lastApply atomic.Pointer[animation.Result]
	panics    atomic.Uint64

	// runMu guards cancelRun and closed; loops counts Run's goroutines.
	runMu     sync.Mutex
	cancelRun context.CancelFunc
	closed    bool
	loops     sync.WaitGroup

	shutdownOnce sync.Once
}

// New validates cfg and creates an app. Call Init before Run.
func New(cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		logger:  slog.Default(),
		session: uuid.NewString(),
		channel: cfg.Session.Channel,
		buf:     signal.NewBuffer(),
		tracks:  media.NewLocal(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.channel == "" {
		a.channel = GenerateChannelName()
	}
	a.logger = a.logger.With("session", a.session)
	return a, nil
}

// Session returns the session ID.
func (a *App) Session() string { return a.session }

// Channel returns the call channel name.
func (a *App) Channel() string { return a.channel }

// Init loads the avatar, binds the rig and builds the pipeline.
func (a *App) Init() error {
	if err := a.initScene(); err != nil {
		return fmt.Errorf("scene: %w", err)
	}

	cats, err := a.cfg.MouthCategories()
	if err != nil {
		return err
	}
	a.mapper = animation.New(animation.Policy{
		Factor: a.cfg.Mapper.Factor,
		Lower:  a.cfg.Mapper.Lower,
		Upper:  a.cfg.Mapper.Upper,
		Mouth:  animation.MouthSet(cats),
	})

	if err := a.initSource(); err != nil {
		return fmt.Errorf("frame source: %w", err)
	}
	if err := a.initStage(); err != nil {
		return fmt.Errorf("inference: %w", err)
	}

	a.initOutput()
	for _, k := range media.Kinds() {
		if err := a.tracks.Activate(k); err != nil {
			return err
		}
	}

	a.display = vsync.New(a.cfg.Display.Rate)
	a.scheduler = tracking.New(a.source, a.stage, a.buf,
		tracking.WithLogger(a.logger),
		tracking.WithConfig(tracking.Config{
			LostFaceAfter:   a.cfg.Display.LostFaceAfter,
			FailureLogEvery: tracking.DefaultConfig().FailureLogEvery,
		}),
	)
	a.driver = render.NewDriver(a.scene, a.renderer, a.UpdateAnimation, a.logger)

	a.logger.Info("avatar initialised",
		"channel", a.channel,
		"bound_morphs", a.report.Bound,
		"complete_rig", a.report.Complete(),
	)
	return nil
}

func (a *App) initScene() error {
	if a.model == nil {
		root, err := scene.LoadGLB(a.cfg.Model.Path)
		if err != nil {
			return err
		}
		a.model = root
	}

	a.scene = scene.New(a.cfg.Display.Width, a.cfg.Display.Height)
	a.scene.SetAvatar(a.model)

	a.binding, a.report = rig.Bind(a.scene.Graph(), a.rigOptions())
	for _, b := range rig.Bones() {
		a.scene.Track(a.binding.Bone(b))
	}
	if len(a.report.MissingBones) > 0 || a.report.MissingMesh != "" {
		a.logger.Warn("avatar rig incomplete",
			"missing_bones", a.report.MissingBones,
			"missing_mesh", a.report.MissingMesh,
		)
	}
	return nil
}

func (a *App) rigOptions() rig.Options {
	opts := rig.DefaultOptions()
	opts.BoneNames = make(map[rig.Bone]string)
	m := a.cfg.Model
	if m.Head != "" {
		opts.BoneNames[rig.Head] = m.Head
	}
	if m.Neck != "" {
		opts.BoneNames[rig.Neck] = m.Neck
	}
	if m.Spine != "" {
		opts.BoneNames[rig.Spine1] = m.Spine
	}
	if m.FaceMesh != "" {
		opts.FaceMesh = m.FaceMesh
	}
	return opts
}

// UpdateAnimation applies the latest signal to the avatar. It is the render
// loop's per-frame callback and never panics.
func (a *App) UpdateAnimation(timeMs float64) {
	defer func() {
		if r := recover(); r != nil {
			if n := a.panics.Add(1); n == 1 || n%100 == 0 {
				a.logger.Error("animation update panicked", "panic", r, "count", n)
			}
		}
	}()

	snap, ok := a.buf.Load()
	res := a.mapper.Apply(a.binding, snap, ok)
	a.lastApply.Store(&res)
}

// Run drives the pipeline until ctx is cancelled or a fatal component (the
// web server) fails, then shuts the session down. Frame source failures leave
// the avatar frozen in its last pose rather than ending the session.
func (a *App) Run(ctx context.Context) error {
	if a.driver == nil {
		return errors.New("avatar: Run before Init")
	}

	a.runMu.Lock()
	if a.closed {
		a.runMu.Unlock()
		return errors.New("avatar: Run after Shutdown")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.cancelRun = cancel
	a.started = time.Now()

	trackingTicks := a.display.Subscribe("tracking")
	renderTicks := a.display.Subscribe("render")

	errCh := make(chan error, 1)
	goRun := func(name string, fatal bool, fn func(context.Context) error) {
		a.loops.Add(1)
		go func() {
			defer a.loops.Done()
			if err := fn(ctx); err != nil {
				a.logger.Error("component stopped", "component", name, "error", err)
				if fatal {
					select {
					case errCh <- fmt.Errorf("%s: %w", name, err):
					default:
					}
				}
			}
		}()
	}

	goRun("display", false, a.display.Run)
	goRun("tracking", false, func(ctx context.Context) error { return a.scheduler.Run(ctx, trackingTicks.C) })
	goRun("render", false, func(ctx context.Context) error { return a.driver.Run(ctx, renderTicks.C) })
	if a.camera != nil {
		goRun("camera", false, a.camera.Run)
	}
	if a.receiver != nil {
		goRun("video", false, a.receiver.Run)
	}
	if a.web != nil {
		goRun("web", true, a.web.Run)
		if a.cfg.Web.Preview {
			goRun("preview", false, a.streamPreview)
		}
	}
	a.runMu.Unlock()

	a.logger.Info("avatar running", "channel", a.channel, "refresh_hz", a.cfg.Display.Rate)

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	a.Shutdown()
	return err
}

// streamPreview forwards new camera frames to preview viewers at up to 10 FPS.
func (a *App) streamPreview(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	last := frame.Unseen
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if ts := a.source.CurrentTimestamp(); ts != last {
				last = ts
				if f := a.source.CurrentFrame(); !f.Empty() {
					a.web.SendPreviewFrame(f.Data)
				}
			}
		}
	}
}

// Shutdown leaves the session. Late inference results are discarded first,
// then every loop started by Run is stopped and waited for, and only then are
// tracks released and the stage and frame source closed. Safe to call more
// than once and from any goroutine.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		a.buf.Retire()

		a.runMu.Lock()
		a.closed = true
		cancel := a.cancelRun
		a.runMu.Unlock()
		if cancel != nil {
			cancel()
		}
		if a.scheduler != nil {
			a.scheduler.Stop()
		}
		if a.driver != nil {
			a.driver.Stop()
		}
		a.loops.Wait()

		a.tracks.ReleaseAll()
		if a.stage != nil {
			if err := a.stage.Close(); err != nil {
				a.logger.Warn("close inference", "error", err)
			}
		}
		if a.camera != nil {
			a.camera.Close()
		}
		if a.receiver != nil {
			a.receiver.Close()
		}
		a.logger.Info("avatar left channel", "channel", a.channel)
	})
}
