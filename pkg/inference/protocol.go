package inference

import (
	"encoding/base64"
	"fmt"

	"github.com/teslashibe/go-avatar/pkg/expression"
	"github.com/teslashibe/go-avatar/pkg/pose"
)

// LandmarkRequest is sent to the landmark sidecar for each frame.
type LandmarkRequest struct {
	ID          string `json:"id"`
	TimestampMs int64  `json:"timestamp_ms"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`

	// Image is the base64 encoded JPEG frame.
	Image string `json:"image"`
}

// NewLandmarkRequest encodes a JPEG frame into a request.
func NewLandmarkRequest(id string, jpeg []byte, width, height int, timestampMs int64) LandmarkRequest {
	return LandmarkRequest{
		ID:          id,
		TimestampMs: timestampMs,
		Width:       width,
		Height:      height,
		Image:       base64.StdEncoding.EncodeToString(jpeg),
	}
}

// Matrix is a 4x4 transform in column-major order.
type Matrix struct {
	Rows    int       `json:"rows"`
	Columns int       `json:"columns"`
	Data    []float64 `json:"data"`
}

// BlendshapeCategory is one scored blend shape.
type BlendshapeCategory struct {
	Index        int     `json:"index"`
	Score        float64 `json:"score"`
	CategoryName string  `json:"category_name"`
	DisplayName  string  `json:"display_name,omitempty"`
}

// Classifications holds the blend shapes of one face.
type Classifications struct {
	Categories []BlendshapeCategory `json:"categories"`
}

// ErrorBody is a backend-reported failure.
type ErrorBody struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// LandmarkResponse mirrors the face landmarker result shape, one entry per
// detected face.
type LandmarkResponse struct {
	ID          string `json:"id"`
	TimestampMs int64  `json:"timestamp_ms"`

	FacialTransformationMatrixes []Matrix          `json:"facial_transformation_matrixes"`
	FaceBlendshapes              []Classifications `json:"face_blendshapes"`

	Error *ErrorBody `json:"error,omitempty"`
}

// ParseResult converts the first face of resp into a Result.
// A response with no faces returns ErrNoFace.
func ParseResult(backend string, resp LandmarkResponse) (Result, error) {
	if resp.Error != nil {
		return Result{}, &BackendError{
			Backend: backend,
			Code:    resp.Error.Code,
			Message: resp.Error.Message,
		}
	}
	if len(resp.FacialTransformationMatrixes) == 0 && len(resp.FaceBlendshapes) == 0 {
		return Result{}, ErrNoFace
	}

	var res Result
	if len(resp.FacialTransformationMatrixes) > 0 {
		m := resp.FacialTransformationMatrixes[0]
		if (m.Rows != 0 && m.Rows != 4) || (m.Columns != 0 && m.Columns != 4) {
			return Result{}, &BackendError{
				Backend: backend,
				Code:    "bad_matrix",
				Message: fmt.Sprintf("expected 4x4 transform, got %dx%d", m.Rows, m.Columns),
			}
		}
		mat, err := pose.FromArray(m.Data)
		if err != nil {
			return Result{}, &BackendError{Backend: backend, Code: "bad_matrix", Err: err}
		}
		p := pose.EulerFromMatrix(mat)
		res.Pose = &p
	}

	if len(resp.FaceBlendshapes) > 0 {
		cats := resp.FaceBlendshapes[0].Categories
		raw := make([]expression.RawEntry, 0, len(cats))
		for _, c := range cats {
			raw = append(raw, expression.RawEntry{Name: c.CategoryName, Score: c.Score})
		}
		res.Expressions = expression.New(raw)
	}
	return res, nil
}
