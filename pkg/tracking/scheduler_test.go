package tracking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-avatar/pkg/expression"
	"github.com/teslashibe/go-avatar/pkg/frame"
	"github.com/teslashibe/go-avatar/pkg/inference"
	"github.com/teslashibe/go-avatar/pkg/pose"
	"github.com/teslashibe/go-avatar/pkg/signal"
	"github.com/teslashibe/go-avatar/pkg/vsync"
)

// scriptedSource returns timestamps from a fixed script, repeating the last.
type scriptedSource struct {
	mu     sync.Mutex
	script []frame.Timestamp
	i      int
}

func (s *scriptedSource) CurrentTimestamp() frame.Timestamp {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.script[s.i]
	if s.i < len(s.script)-1 {
		s.i++
	}
	return ts
}

func (s *scriptedSource) CurrentFrame() frame.Frame {
	return frame.Frame{Data: []byte{1}}
}

func face(x, jaw float64) inference.Result {
	p := pose.Euler{X: x}
	return inference.Result{
		Pose:        &p,
		Expressions: expression.New([]expression.RawEntry{{Name: "jawOpen", Score: jaw}}),
	}
}

func TestTick_DuplicateSuppression(t *testing.T) {
	src := &scriptedSource{script: []frame.Timestamp{10, 10, 10, 20}}
	stage := inference.NewMock(face(0.1, 0.2))
	s := New(src, stage, signal.NewBuffer())

	want := []Outcome{OutcomeUpdated, OutcomeDuplicate, OutcomeDuplicate, OutcomeUpdated}
	for i, w := range want {
		if got := s.Tick(context.Background()); got != w {
			t.Errorf("tick %d: got %v, want %v", i, got, w)
		}
	}
	if n := stage.CallCount("Infer"); n != 2 {
		t.Errorf("expected 2 inferences, got %d", n)
	}

	st := s.Stats()
	if st.Ticks != 4 || st.Duplicates != 2 || st.Updates != 2 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestTick_NoFrameYet(t *testing.T) {
	src := &scriptedSource{script: []frame.Timestamp{frame.Unseen}}
	stage := inference.NewMock(face(0, 0))
	s := New(src, stage, signal.NewBuffer())

	if got := s.Tick(context.Background()); got != OutcomeDuplicate {
		t.Errorf("got %v, want duplicate before the first frame", got)
	}
	if stage.CallCount("Infer") != 0 {
		t.Error("no inference should run before the first frame")
	}
}

func TestTick_FailuresKeepStaleSignal(t *testing.T) {
	tests := []struct {
		name string
		fn   func() (inference.Result, error)
		want Outcome
	}{
		{"no face", func() (inference.Result, error) { return inference.Result{}, inference.ErrNoFace }, OutcomeNoFace},
		{"backend error", func() (inference.Result, error) {
			return inference.Result{}, &inference.BackendError{Backend: "lm", Message: "boom"}
		}, OutcomeFailed},
		{"pose only", func() (inference.Result, error) {
			p := pose.Euler{X: 0.9}
			return inference.Result{Pose: &p}, nil
		}, OutcomeNoFace},
		{"expressions only", func() (inference.Result, error) {
			return inference.Result{Expressions: face(0, 0.9).Expressions}, nil
		}, OutcomeNoFace},
		{"panic", func() (inference.Result, error) { panic("model crashed") }, OutcomeFailed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := &scriptedSource{script: []frame.Timestamp{1, 2}}
			calls := 0
			stage := &inference.Mock{
				InferFunc: func(ctx context.Context, f frame.Frame, ms int64) (inference.Result, error) {
					calls++
					if calls == 1 {
						return face(0.3, 0.4), nil
					}
					return tc.fn()
				},
			}
			buf := signal.NewBuffer()
			s := New(src, stage, buf)

			s.Tick(context.Background())
			if got := s.Tick(context.Background()); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}

			snap, ok := buf.Load()
			if !ok || snap.Pose.X != 0.3 || snap.Seq != 1 {
				t.Errorf("buffer should hold the first signal, got %+v", snap)
			}
			if v, _ := snap.Expressions.Score(expression.JawOpen); v != 0.4 {
				t.Errorf("expressions changed: %v", v)
			}
		})
	}
}

func TestTick_MonotonicTimestamps(t *testing.T) {
	fixed := time.UnixMilli(5000)
	src := &scriptedSource{script: []frame.Timestamp{1, 2, 3}}
	stage := inference.NewMock(face(0, 0))
	s := New(src, stage, signal.NewBuffer(), WithClock(func() time.Time { return fixed }))

	for i := 0; i < 3; i++ {
		s.Tick(context.Background())
	}

	calls := stage.Calls()
	for i := 1; i < len(calls); i++ {
		if calls[i].TimestampMs <= calls[i-1].TimestampMs {
			t.Errorf("timestamps not increasing: %d then %d", calls[i-1].TimestampMs, calls[i].TimestampMs)
		}
	}
	if calls[0].TimestampMs != 5000 {
		t.Errorf("first timestamp = %d, want 5000", calls[0].TimestampMs)
	}
}

func TestTick_RetiredBufferDropsLateResults(t *testing.T) {
	src := &scriptedSource{script: []frame.Timestamp{1}}
	buf := signal.NewBuffer()
	buf.Retire()

	s := New(src, inference.NewMock(face(0.5, 0.5)), buf)
	if got := s.Tick(context.Background()); got != OutcomeDiscarded {
		t.Errorf("got %v, want discarded", got)
	}

	if _, ok := buf.Load(); ok {
		t.Error("retired buffer should not accept results")
	}
	if s.Stats().Updates != 0 {
		t.Error("dropped result should not count as an update")
	}
}

func TestTick_ConsecutiveMisses(t *testing.T) {
	src := &scriptedSource{script: []frame.Timestamp{1, 2, 3, 4}}
	n := 0
	stage := &inference.Mock{
		InferFunc: func(ctx context.Context, f frame.Frame, ms int64) (inference.Result, error) {
			n++
			if n == 4 {
				return face(0, 0), nil
			}
			return inference.Result{}, inference.ErrNoFace
		},
	}
	s := New(src, stage, signal.NewBuffer(), WithConfig(Config{LostFaceAfter: 2}))

	for i := 0; i < 3; i++ {
		s.Tick(context.Background())
	}
	if s.Stats().ConsecutiveMisses != 3 {
		t.Errorf("consecutive misses = %d, want 3", s.Stats().ConsecutiveMisses)
	}
	s.Tick(context.Background())
	if s.Stats().ConsecutiveMisses != 0 {
		t.Error("an update should reset consecutive misses")
	}
}

func TestRun_StopsOnCancelAndStop(t *testing.T) {
	src := &scriptedSource{script: []frame.Timestamp{1, 2, 3}}
	stage := inference.NewMock(face(0, 0))

	d := vsync.New(60)
	sub := d.Subscribe("tracking")
	s := New(src, stage, signal.NewBuffer())

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), sub.C) }()

	d.Emit(vsync.Tick{Seq: 1})
	deadline := time.After(time.Second)
	for stage.CallCount("Infer") == 0 {
		select {
		case <-deadline:
			t.Fatal("tick was not processed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	s.Stop()
	s.Stop()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New(src, stage, signal.NewBuffer()).Run(ctx, sub.C); err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func TestRun_InFlightTicksAreDropped(t *testing.T) {
	src := &scriptedSource{script: []frame.Timestamp{1, 2, 3, 4, 5}}
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	stage := &inference.Mock{
		InferFunc: func(ctx context.Context, f frame.Frame, ms int64) (inference.Result, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
			return face(0, 0), nil
		},
	}

	d := vsync.New(60)
	sub := d.Subscribe("tracking")
	s := New(src, stage, signal.NewBuffer())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, sub.C) }()

	d.Emit(vsync.Tick{Seq: 1})
	<-started

	// One tick fits in the slot; the rest are dropped while inference runs.
	for i := 2; i <= 10; i++ {
		d.Emit(vsync.Tick{Seq: uint64(i)})
	}
	if sub.Dropped() != 8 {
		t.Errorf("dropped = %d, want 8", sub.Dropped())
	}

	close(release)
	cancel()
	<-done

	if n := stage.CallCount("Infer"); n > 2 {
		t.Errorf("ticks were queued: %d inferences", n)
	}
}

func TestOutcome_String(t *testing.T) {
	if OutcomeNoFace.String() != "no_face" || OutcomeDiscarded.String() != "discarded" || Outcome(42).String() != "unknown" {
		t.Error("unexpected outcome names")
	}
}
