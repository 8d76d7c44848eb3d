package frame

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gocv.io/x/gocv"
)

// CameraConfig configures a local capture device.
type CameraConfig struct {
	Device  int
	Width   int
	Height  int
	FPS     float64
	Quality int
}

// DefaultCameraConfig returns a 640x480 webcam at 30 FPS.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{
		Device:  0,
		Width:   640,
		Height:  480,
		FPS:     30,
		Quality: 80,
	}
}

// Camera captures frames from a local device into a Store.
type Camera struct {
	cfg    CameraConfig
	cap    *gocv.VideoCapture
	store  *Store
	logger *slog.Logger
}

// OpenCamera opens a capture device.
func OpenCamera(cfg CameraConfig, logger *slog.Logger) (*Camera, error) {
	vc, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open camera %d: device not available", cfg.Device)
	}

	if cfg.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.FPS > 0 {
		vc.Set(gocv.VideoCaptureFPS, cfg.FPS)
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = DefaultCameraConfig().Quality
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Camera{
		cfg:    cfg,
		cap:    vc,
		store:  NewStore(),
		logger: logger.With("component", "frame.camera"),
	}, nil
}

// CurrentTimestamp implements Source.
func (c *Camera) CurrentTimestamp() Timestamp { return c.store.CurrentTimestamp() }

// CurrentFrame implements Source.
func (c *Camera) CurrentFrame() Frame { return c.store.CurrentFrame() }

// Run reads frames until ctx is cancelled.
func (c *Camera) Run(ctx context.Context) error {
	mat := gocv.NewMat()
	defer mat.Close()

	interval := time.Second / 30
	if c.cfg.FPS > 0 {
		interval = time.Duration(float64(time.Second) / c.cfg.FPS)
	}

	var failures int
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if ok := c.cap.Read(&mat); !ok || mat.Empty() {
			failures++
			if failures%30 == 1 {
				c.logger.Warn("camera read failed", "consecutive", failures)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(interval):
			}
			continue
		}
		failures = 0

		if err := c.publish(mat); err != nil {
			c.logger.Debug("frame encode failed", "error", err)
		}
	}
}

func (c *Camera) publish(mat gocv.Mat) error {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{int(gocv.IMWriteJpegQuality), c.cfg.Quality})
	if err != nil {
		return err
	}
	defer buf.Close()

	ts := c.cap.Get(gocv.VideoCapturePosMsec) / 1000
	if ts > 0 {
		c.store.Put(Frame{
			Data:      buf.GetBytes(),
			Width:     mat.Cols(),
			Height:    mat.Rows(),
			Timestamp: Timestamp(ts),
		})
		return nil
	}
	// Live devices usually report no position.
	c.store.PutNow(buf.GetBytes(), mat.Cols(), mat.Rows())
	return nil
}

// Close releases the device.
func (c *Camera) Close() error {
	return c.cap.Close()
}

var _ Source = (*Camera)(nil)
