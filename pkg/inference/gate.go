package inference

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/teslashibe/go-avatar/pkg/detection"
	"github.com/teslashibe/go-avatar/pkg/frame"
)

// Gate runs a cheap local face detector before the wrapped stage and skips
// the landmarker round trip when no usable face is present.
type Gate struct {
	detector detection.Detector
	next     Stage
	minArea  float64
	logger   *slog.Logger

	skipped atomic.Uint64
}

// NewGate wraps next. Faces whose box covers less than minArea of the frame
// are ignored.
func NewGate(d detection.Detector, next Stage, minArea float64, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		detector: d,
		next:     next,
		minArea:  minArea,
		logger:   logger.With("component", "inference.gate"),
	}
}

// Infer implements Stage. A detector failure is not fatal: the frame is
// passed through to the wrapped stage.
func (g *Gate) Infer(ctx context.Context, f frame.Frame, timestampMs int64) (Result, error) {
	if f.Empty() {
		return Result{}, ErrEmptyFrame
	}

	faces, err := g.detector.Detect(f.Data)
	if err != nil {
		g.logger.Debug("detector failed, passing frame through", "error", err)
		return g.next.Infer(ctx, f, timestampMs)
	}

	best, ok := detection.Prominent(faces)
	if !ok || best.Area() < g.minArea {
		g.skipped.Add(1)
		return Result{}, ErrNoFace
	}
	return g.next.Infer(ctx, f, timestampMs)
}

// Skipped returns the number of frames rejected locally.
func (g *Gate) Skipped() uint64 {
	return g.skipped.Load()
}

// Close closes the detector and the wrapped stage.
func (g *Gate) Close() error {
	derr := g.detector.Close()
	if err := g.next.Close(); err != nil {
		return err
	}
	return derr
}

var _ Stage = (*Gate)(nil)
