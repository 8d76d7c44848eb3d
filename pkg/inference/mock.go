package inference

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-avatar/pkg/frame"
)

// Mock implements Stage for testing.
type Mock struct {
	// InferFunc is called when Infer is invoked.
	InferFunc func(ctx context.Context, f frame.Frame, timestampMs int64) (Result, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method      string
	Time        time.Time
	Frame       frame.Frame
	TimestampMs int64
}

// NewMock creates a mock that returns res for every frame.
func NewMock(res Result) *Mock {
	return &Mock{
		InferFunc: func(ctx context.Context, f frame.Frame, timestampMs int64) (Result, error) {
			return res, nil
		},
	}
}

// Infer calls InferFunc and records the call.
func (m *Mock) Infer(ctx context.Context, f frame.Frame, timestampMs int64) (Result, error) {
	m.record(MockCall{Method: "Infer", Frame: f, TimestampMs: timestampMs})
	if m.InferFunc != nil {
		return m.InferFunc(ctx, f, timestampMs)
	}
	return Result{}, ErrNoFace
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.record(MockCall{Method: "Close"})
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *Mock) record(c MockCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Time = time.Now()
	m.calls = append(m.calls, c)
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// LastCall returns the most recent call, or nil if none.
func (m *Mock) LastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// WithError returns a mock that always returns the given error.
func WithError(err error) *Mock {
	return &Mock{
		InferFunc: func(ctx context.Context, f frame.Frame, timestampMs int64) (Result, error) {
			return Result{}, err
		},
	}
}

// Verify Mock implements Stage at compile time.
var _ Stage = (*Mock)(nil)
