// Package inference turns camera frames into head pose and blend shape scores.
//
// A Stage wraps a face landmark model. The production stage is Landmarker,
// which talks to a landmark sidecar over a websocket. Stages can be wrapped
// in a Gate (local face pre-check) or composed into a Chain (fallback
// backends).
//
// Example usage:
//
//	lm, _ := inference.NewLandmarker(
//	    inference.WithURL("ws://localhost:8765/landmarks"),
//	)
//	defer lm.Close()
//
//	res, err := lm.Infer(ctx, frame, time.Now().UnixMilli())
//	if errors.Is(err, inference.ErrNoFace) {
//	    // keep the previous signal
//	}
package inference

import (
	"context"

	"github.com/teslashibe/go-avatar/pkg/expression"
	"github.com/teslashibe/go-avatar/pkg/frame"
	"github.com/teslashibe/go-avatar/pkg/pose"
)

// Stage runs face landmark inference on one frame.
type Stage interface {
	// Infer analyses f. timestampMs is a wall-clock millisecond timestamp the
	// model uses for temporal smoothing; it must increase between calls.
	// A frame without a face returns ErrNoFace.
	Infer(ctx context.Context, f frame.Frame, timestampMs int64) (Result, error)

	// Close releases any resources held by the stage.
	Close() error
}

// Result is the output for the first detected face.
// Either field may be absent.
type Result struct {
	Pose        *pose.Euler        `json:"pose,omitempty"`
	Expressions expression.Weights `json:"expressions,omitempty"`
}

// Complete reports whether both pose and expressions are present.
func (r Result) Complete() bool {
	return r.Pose != nil && len(r.Expressions) > 0
}

// Empty reports whether neither field is present.
func (r Result) Empty() bool {
	return r.Pose == nil && len(r.Expressions) == 0
}
