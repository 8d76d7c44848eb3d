// Package tracking runs face inference on new camera frames and publishes the
// results to a signal buffer.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-avatar/pkg/frame"
	"github.com/teslashibe/go-avatar/pkg/inference"
	"github.com/teslashibe/go-avatar/pkg/signal"
	"github.com/teslashibe/go-avatar/pkg/vsync"
)

// Outcome is the result of one scheduling tick.
type Outcome int

const (
	// OutcomeDuplicate means the frame was already analysed.
	OutcomeDuplicate Outcome = iota
	// OutcomeUpdated means a new signal was stored.
	OutcomeUpdated
	// OutcomeNoFace means inference found no face, or only part of a result.
	OutcomeNoFace
	// OutcomeFailed means the stage returned an error or panicked.
	OutcomeFailed
	// OutcomeDiscarded means a result arrived after the buffer was retired.
	OutcomeDiscarded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeUpdated:
		return "updated"
	case OutcomeNoFace:
		return "no_face"
	case OutcomeFailed:
		return "failed"
	case OutcomeDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// Stats counts scheduler activity.
type Stats struct {
	Ticks             uint64 `json:"ticks"`
	Duplicates        uint64 `json:"duplicates"`
	Inferences        uint64 `json:"inferences"`
	Updates           uint64 `json:"updates"`
	Misses            uint64 `json:"misses"`
	Failures          uint64 `json:"failures"`
	ConsecutiveMisses uint64 `json:"consecutive_misses"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithConfig sets the scheduler config.
func WithConfig(cfg Config) Option {
	return func(s *Scheduler) { s.cfg = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithClock overrides the wall clock used for inference timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler runs at most one inference per new frame.
//
// Tick is not safe for concurrent use; Run calls it from a single goroutine.
type Scheduler struct {
	source frame.Source
	stage  inference.Stage
	buf    *signal.Buffer
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	lastSeen frame.Timestamp
	lastMs   int64

	ticks, duplicates, inferences atomic.Uint64
	updates, misses, failures     atomic.Uint64
	consecutive                   atomic.Uint64
	consecutiveFail               uint64

	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a scheduler reading from source and writing to buf.
func New(source frame.Source, stage inference.Stage, buf *signal.Buffer, opts ...Option) *Scheduler {
	s := &Scheduler{
		source:   source,
		stage:    stage,
		buf:      buf,
		cfg:      DefaultConfig(),
		logger:   slog.Default(),
		now:      time.Now,
		lastSeen: frame.Unseen,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "tracking")
	return s
}

// Tick runs one scheduling step. It never panics and never returns an
// error: failures leave the buffer holding the previous signal.
func (s *Scheduler) Tick(ctx context.Context) Outcome {
	s.ticks.Add(1)

	ts := s.source.CurrentTimestamp()
	if ts == s.lastSeen {
		s.duplicates.Add(1)
		return OutcomeDuplicate
	}
	s.lastSeen = ts

	f := s.source.CurrentFrame()
	s.inferences.Add(1)
	ms := s.timestampMs()
	res, err := s.infer(ctx, f, ms)

	switch {
	case err == nil && res.Complete():
		if !s.buf.Store(*res.Pose, res.Expressions, ms) {
			return OutcomeDiscarded
		}
		s.updates.Add(1)
		s.recovered()
		return OutcomeUpdated

	case err == nil || errors.Is(err, inference.ErrNoFace):
		s.missed()
		return OutcomeNoFace

	default:
		s.failed(ctx, err)
		return OutcomeFailed
	}
}

// infer calls the stage, converting a panic into an error.
func (s *Scheduler) infer(ctx context.Context, f frame.Frame, ms int64) (res inference.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", inference.ErrStagePanic, r)
		}
	}()
	return s.stage.Infer(ctx, f, ms)
}

// timestampMs returns a strictly increasing wall-clock millisecond value.
func (s *Scheduler) timestampMs() int64 {
	ms := s.now().UnixMilli()
	if ms <= s.lastMs {
		ms = s.lastMs + 1
	}
	s.lastMs = ms
	return ms
}

func (s *Scheduler) missed() {
	s.misses.Add(1)
	s.consecutiveFail = 0
	n := s.consecutive.Add(1)
	if s.cfg.LostFaceAfter > 0 && n == uint64(s.cfg.LostFaceAfter) {
		s.logger.Info("lost face", "consecutive_misses", n)
	}
}

func (s *Scheduler) failed(ctx context.Context, err error) {
	s.failures.Add(1)
	s.consecutive.Add(1)
	s.consecutiveFail++
	if ctx.Err() != nil {
		return
	}
	every := uint64(s.cfg.FailureLogEvery)
	if s.consecutiveFail == 1 || (every > 0 && s.consecutiveFail%every == 0) {
		s.logger.Warn("inference failed", "error", err, "consecutive", s.consecutiveFail)
	}
}

func (s *Scheduler) recovered() {
	if n := s.consecutive.Swap(0); s.cfg.LostFaceAfter > 0 && n >= uint64(s.cfg.LostFaceAfter) {
		s.logger.Info("face reacquired", "after_misses", n)
	}
	s.consecutiveFail = 0
}

// Run ticks once per display refresh until ctx is cancelled, Stop is called
// or ticks is closed. Refreshes arriving while an inference is in flight are
// dropped by the display, not queued.
func (s *Scheduler) Run(ctx context.Context, ticks <-chan vsync.Tick) error {
	s.logger.Info("scheduler started")
	defer s.logger.Info("scheduler stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case _, ok := <-ticks:
			if !ok {
				return nil
			}
			s.Tick(ctx)
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Ticks:             s.ticks.Load(),
		Duplicates:        s.duplicates.Load(),
		Inferences:        s.inferences.Load(),
		Updates:           s.updates.Load(),
		Misses:            s.misses.Load(),
		Failures:          s.failures.Load(),
		ConsecutiveMisses: s.consecutive.Load(),
	}
}
