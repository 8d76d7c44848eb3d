package inference

import (
	"context"
	"errors"
	"log/slog"

	"github.com/teslashibe/go-avatar/pkg/frame"
)

// Chain tries multiple stages in order until one gives an answer.
// ErrNoFace is an answer: it is returned without trying later stages.
type Chain struct {
	stages []Stage
	logger *slog.Logger
}

// NewChain creates a stage chain.
// At least one stage is required.
func NewChain(stages ...Stage) (*Chain, error) {
	if len(stages) == 0 {
		return nil, ErrNoStages
	}
	return &Chain{
		stages: stages,
		logger: slog.Default().With("component", "inference.chain"),
	}, nil
}

// NewChainWithLogger creates a stage chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, stages ...Stage) (*Chain, error) {
	chain, err := NewChain(stages...)
	if err != nil {
		return nil, err
	}
	chain.logger = logger.With("component", "inference.chain")
	return chain, nil
}

// Infer implements Stage.
func (c *Chain) Infer(ctx context.Context, f frame.Frame, timestampMs int64) (Result, error) {
	var errs []error

	for i, s := range c.stages {
		res, err := s.Infer(ctx, f, timestampMs)
		if err == nil || errors.Is(err, ErrNoFace) {
			if i > 0 {
				c.logger.Debug("fallback stage answered", "stage_index", i)
			}
			return res, err
		}

		errs = append(errs, err)
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		c.logger.Debug("stage failed, trying next", "stage_index", i, "error", err)
	}
	return Result{}, &ChainError{Errors: errs}
}

// Close closes every stage and returns the first error.
func (c *Chain) Close() error {
	var first error
	for _, s := range c.stages {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var _ Stage = (*Chain)(nil)
