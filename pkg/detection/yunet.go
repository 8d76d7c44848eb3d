package detection

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// ErrEmptyImage is returned when a JPEG decodes to nothing.
var ErrEmptyImage = errors.New("detection: empty image")

// YuNet wraps OpenCV's FaceDetectorYN. Detect calls are serialised because
// the network input size is resized per image.
type YuNet struct {
	mu  sync.Mutex
	net gocv.FaceDetectorYN
}

// NewYuNet loads the ONNX model at cfg.ModelPath.
func NewYuNet(cfg Config) (*YuNet, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("detection: load model: %w", err)
	}
	if cfg.InputSize.X <= 0 || cfg.InputSize.Y <= 0 {
		cfg.InputSize = DefaultConfig().InputSize
	}

	net := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath, "",
		cfg.InputSize,
		float32(cfg.ScoreThreshold),
		float32(cfg.NMSThreshold),
		cfg.TopK,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)
	return &YuNet{net: net}, nil
}

// Detect implements Detector.
func (y *YuNet) Detect(jpeg []byte) ([]Face, error) {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("detection: decode: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, ErrEmptyImage
	}

	out := gocv.NewMat()
	defer out.Close()

	y.mu.Lock()
	y.net.SetInputSize(image.Pt(img.Cols(), img.Rows()))
	y.net.Detect(img, &out)
	y.mu.Unlock()

	w, h := float64(img.Cols()), float64(img.Rows())
	faces := make([]Face, 0, out.Rows())
	for r := 0; r < out.Rows(); r++ {
		faces = append(faces, faceAt(out, r, w, h))
	}
	return faces, nil
}

// faceAt reads one result row: box (0-3), five landmark pairs (4-13), score (14).
func faceAt(m gocv.Mat, r int, w, h float64) Face {
	at := func(c int) float64 { return float64(m.GetFloatAt(r, c)) }
	return Face{
		X:     at(0) / w,
		Y:     at(1) / h,
		W:     at(2) / w,
		H:     at(3) / h,
		Score: at(14),
	}
}

// Close releases the network.
func (y *YuNet) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	y.net.Close()
	return nil
}

var _ Detector = (*YuNet)(nil)
