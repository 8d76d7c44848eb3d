// Package detection answers one question cheaply: is there a usable face in
// this frame? It runs locally so frames without a face never reach the
// landmark model.
package detection

import "image"

// Face is a detected face box in normalised image coordinates.
type Face struct {
	X, Y, W, H float64
	Score      float64
}

// Center returns the box centre.
func (f Face) Center() (x, y float64) {
	return f.X + f.W/2, f.Y + f.H/2
}

// Area returns the fraction of the image the box covers.
func (f Face) Area() float64 {
	return f.W * f.H
}

// Detector finds faces in a JPEG image.
type Detector interface {
	Detect(jpeg []byte) ([]Face, error)
	Close() error
}

// Config configures a YuNet detector.
type Config struct {
	ModelPath string

	// ScoreThreshold drops candidates below this score.
	ScoreThreshold float64
	NMSThreshold   float64
	TopK           int

	// InputSize is the initial network input; it follows each image.
	InputSize image.Point
}

// DefaultConfig returns settings for the stock 320x320 YuNet model.
func DefaultConfig() Config {
	return Config{
		ModelPath:      "models/face_detection_yunet.onnx",
		ScoreThreshold: 0.5,
		NMSThreshold:   0.3,
		TopK:           5000,
		InputSize:      image.Pt(320, 320),
	}
}

// Prominent returns the face the landmark model will most likely track,
// weighing score against size relative to the largest face.
func Prominent(faces []Face) (Face, bool) {
	switch len(faces) {
	case 0:
		return Face{}, false
	case 1:
		return faces[0], true
	}

	largest := 0.0
	for _, f := range faces {
		largest = max(largest, f.Area())
	}

	best, bestRank := 0, -1.0
	for i, f := range faces {
		rel := 0.0
		if largest > 0 {
			rel = f.Area() / largest
		}
		if rank := 0.7*f.Score + 0.3*rel; rank > bestRank {
			best, bestRank = i, rank
		}
	}
	return faces[best], true
}
