package detection

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestFace_Geometry(t *testing.T) {
	f := Face{X: 0.2, Y: 0.4, W: 0.2, H: 0.4}

	x, y := f.Center()
	if math.Abs(x-0.3) > 1e-9 || math.Abs(y-0.6) > 1e-9 {
		t.Errorf("Center = (%v, %v), want (0.3, 0.6)", x, y)
	}
	if math.Abs(f.Area()-0.08) > 1e-9 {
		t.Errorf("Area = %v, want 0.08", f.Area())
	}
}

func TestProminent(t *testing.T) {
	tests := []struct {
		name  string
		faces []Face
		want  int // -1 for none
	}{
		{"empty", nil, -1},
		{"single", []Face{{W: 0.2, H: 0.2, Score: 0.9}}, 0},
		{
			// 0.95*0.7 + 0.25*0.3 beats 0.5*0.7 + 1.0*0.3
			"score beats size",
			[]Face{
				{W: 0.4, H: 0.4, Score: 0.5},
				{X: 0.3, W: 0.2, H: 0.2, Score: 0.95},
			},
			1,
		},
		{
			"equal score picks larger",
			[]Face{
				{W: 0.5, H: 0.5, Score: 0.8},
				{X: 0.3, W: 0.1, H: 0.1, Score: 0.8},
			},
			0,
		},
		{
			"degenerate boxes",
			[]Face{
				{Score: 0.4},
				{X: 0.5, Score: 0.6},
			},
			1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Prominent(tc.faces)
			if tc.want < 0 {
				if ok {
					t.Errorf("expected no face, got %+v", got)
				}
				return
			}
			if !ok || got != tc.faces[tc.want] {
				t.Errorf("got %+v, want index %d", got, tc.want)
			}
		})
	}
}

func TestYuNet_MissingModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = "/nonexistent/face_detection_yunet.onnx"

	if _, err := NewYuNet(cfg); err == nil {
		t.Error("expected error for missing model")
	}
}

func TestYuNet_SolidImage(t *testing.T) {
	modelPath := findModelPath()
	if modelPath == "" {
		t.Skip("YuNet model not found, skipping test")
	}

	cfg := DefaultConfig()
	cfg.ModelPath = modelPath
	d, err := NewYuNet(cfg)
	if err != nil {
		t.Fatalf("NewYuNet failed: %v", err)
	}
	defer d.Close()

	if _, err := d.Detect([]byte("not a jpeg")); err == nil {
		t.Error("expected error for invalid JPEG")
	}

	faces, err := d.Detect(solidJPEG(320, 240, color.RGBA{0, 0, 255, 255}))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(faces) > 0 {
		t.Errorf("expected no faces in solid image, got %d", len(faces))
	}
}

func findModelPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for dir := cwd; dir != "/"; dir = filepath.Dir(dir) {
		p := filepath.Join(dir, "models", "face_detection_yunet.onnx")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func solidJPEG(width, height int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}
