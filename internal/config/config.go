// Package config loads go-avatar settings from defaults, a TOML file, the
// environment and command-line overrides, in that order.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/teslashibe/go-avatar/pkg/expression"
)

//go:embed sample_config.toml
var sampleConfig string

// Frame sources.
const (
	SourceCamera = "camera"
	SourceWebRTC = "webrtc"
)

// Camera configures local capture.
type Camera struct {
	Source  string `toml:"source"`
	Device  int    `toml:"device"`
	Width   int    `toml:"width"`
	Height  int    `toml:"height"`
	FPS     int    `toml:"fps"`
	Quality int    `toml:"quality"`
}

// WebRTC configures the remote camera receiver.
type WebRTC struct {
	SignallingURL    string   `toml:"signalling_url"`
	Producer         string   `toml:"producer"`
	ICEServers       []string `toml:"ice_servers"`
	FFmpeg           string   `toml:"ffmpeg"`
	DecodeIntervalMs int      `toml:"decode_interval_ms"`
}

// Landmarker configures the face landmark sidecar.
type Landmarker struct {
	URL                string   `toml:"url"`
	FallbackURLs       []string `toml:"fallback_urls"`
	HandshakeTimeoutMs int      `toml:"handshake_timeout_ms"`
}

// Detection configures the local face pre-check.
type Detection struct {
	Enabled    bool    `toml:"enabled"`
	ModelPath  string  `toml:"model_path"`
	Confidence float64 `toml:"confidence"`
	MinArea    float64 `toml:"min_area"`
}

// Model configures the avatar and its rig names.
type Model struct {
	Path     string `toml:"path"`
	Head     string `toml:"head"`
	Neck     string `toml:"neck"`
	Spine    string `toml:"spine"`
	FaceMesh string `toml:"face_mesh"`
}

// Mapper configures expression exaggeration.
type Mapper struct {
	Factor float64  `toml:"factor"`
	Lower  float64  `toml:"lower"`
	Upper  float64  `toml:"upper"`
	Mouth  []string `toml:"mouth"`
}

// Display configures the refresh signal.
type Display struct {
	Rate          float64 `toml:"rate"`
	Width         int     `toml:"width"`
	Height        int     `toml:"height"`
	LostFaceAfter int     `toml:"lost_face_after"`
}

// Web configures the status and stream server.
type Web struct {
	Enabled   bool    `toml:"enabled"`
	Addr      string  `toml:"addr"`
	StaticDir string  `toml:"static_dir"`
	StreamFPS float64 `toml:"stream_fps"`
	Preview   bool    `toml:"preview"`
}

// Session identifies the call the avatar joins.
type Session struct {
	Channel string `toml:"channel"`
}

// Log configures logging.
type Log struct {
	Level string `toml:"level"`
}

// Config is the full go-avatar configuration.
type Config struct {
	Camera     Camera     `toml:"camera"`
	WebRTC     WebRTC     `toml:"webrtc"`
	Landmarker Landmarker `toml:"landmarker"`
	Detection  Detection  `toml:"detection"`
	Model      Model      `toml:"model"`
	Mapper     Mapper     `toml:"mapper"`
	Display    Display    `toml:"display"`
	Web        Web        `toml:"web"`
	Session    Session    `toml:"session"`
	Log        Log        `toml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Camera: Camera{
			Source:  SourceCamera,
			Width:   640,
			Height:  480,
			FPS:     30,
			Quality: 80,
		},
		WebRTC: WebRTC{
			SignallingURL:    "ws://127.0.0.1:8443",
			FFmpeg:           "ffmpeg",
			DecodeIntervalMs: 50,
		},
		Landmarker: Landmarker{
			URL:                "ws://127.0.0.1:8765/landmarks",
			HandshakeTimeoutMs: 5000,
		},
		Detection: Detection{
			ModelPath:  "models/face_detection_yunet.onnx",
			Confidence: 0.5,
			MinArea:    0.01,
		},
		Model: Model{
			Path:     "models/avatar.glb",
			Head:     "Head",
			Neck:     "Neck",
			Spine:    "Spine1",
			FaceMesh: "Wolf3D_Avatar",
		},
		Mapper: Mapper{
			Factor: 1.5,
			Lower:  0.25,
			Upper:  0.6,
			Mouth:  categoryNames(expression.MouthCategories()),
		},
		Display: Display{
			Rate:          60,
			Width:         640,
			Height:        480,
			LostFaceAfter: 5,
		},
		Web: Web{
			Enabled:   true,
			Addr:      ":8181",
			StreamFPS: 30,
		},
		Log: Log{Level: "info"},
	}
}

func categoryNames(cats []expression.Category) []string {
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.String()
	}
	return names
}

// Sample returns an annotated example configuration file.
func Sample() string {
	return sampleConfig
}

// Load builds the configuration from path (or avatar.toml in the working
// directory when path is empty), then .env and AVATAR_* variables.
// It returns the resolved file path and whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolved, exists, err := resolvePath(path)
	if err != nil {
		return nil, "", false, err
	}
	if exists {
		if err := cfg.decodeFile(resolved); err != nil {
			return nil, "", false, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", false, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolved, exists, nil
}

func (c *Config) decodeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("parse config: %s", strict.String())
		}
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func resolvePath(path string) (string, bool, error) {
	if path == "" {
		path = "avatar.toml"
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false, fmt.Errorf("resolve config path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return abs, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", abs)
	}
	return abs, true, nil
}

// Encode renders c as TOML.
func (c *Config) Encode() (string, error) {
	var b strings.Builder
	enc := toml.NewEncoder(&b)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return b.String(), nil
}

// Validate checks that the configuration can start a pipeline.
func (c *Config) Validate() error {
	switch c.Camera.Source {
	case SourceCamera:
		if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
			return &ConfigError{Field: "camera.width", Message: "camera size must be positive"}
		}
	case SourceWebRTC:
		if c.WebRTC.SignallingURL == "" {
			return &ConfigError{Field: "webrtc.signalling_url", Message: "signalling url is required for the webrtc source"}
		}
	default:
		return &ConfigError{Field: "camera.source", Message: fmt.Sprintf("unknown source %q (want camera or webrtc)", c.Camera.Source)}
	}

	if c.Landmarker.URL == "" {
		return &ConfigError{Field: "landmarker.url", Message: "landmarker url is required"}
	}
	if c.Detection.Enabled && c.Detection.ModelPath == "" {
		return &ConfigError{Field: "detection.model_path", Message: "detection model path is required when detection is enabled"}
	}
	if c.Model.Path == "" {
		return &ConfigError{Field: "model.path", Message: "avatar model path is required"}
	}

	if c.Mapper.Factor <= 0 {
		return &ConfigError{Field: "mapper.factor", Message: "factor must be positive"}
	}
	if c.Mapper.Lower < 0 || c.Mapper.Upper > 1 || c.Mapper.Lower >= c.Mapper.Upper {
		return &ConfigError{Field: "mapper.lower", Message: fmt.Sprintf("band (%g, %g) must satisfy 0 <= lower < upper <= 1", c.Mapper.Lower, c.Mapper.Upper)}
	}
	if _, err := c.MouthCategories(); err != nil {
		return &ConfigError{Field: "mapper.mouth", Message: err.Error()}
	}

	if c.Display.Rate <= 0 {
		return &ConfigError{Field: "display.rate", Message: "refresh rate must be positive"}
	}
	if c.Web.Enabled && c.Web.Addr == "" {
		return &ConfigError{Field: "web.addr", Message: "listen address is required when web is enabled"}
	}
	return nil
}

// MouthCategories parses the configured exaggeration set.
func (c *Config) MouthCategories() ([]expression.Category, error) {
	cats := make([]expression.Category, 0, len(c.Mapper.Mouth))
	for _, name := range c.Mapper.Mouth {
		cat, ok := expression.ParseCategory(name)
		if !ok {
			return nil, fmt.Errorf("unknown blend shape %q", name)
		}
		cats = append(cats, cat)
	}
	return cats, nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
