package config

import (
	"fmt"
	"strconv"
	"strings"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AVATAR_"

// LookupFunc reads an environment variable.
type LookupFunc func(key string) (string, bool)

type envVar struct {
	key string
	set func(c *Config, v string) error
}

func str(dst func(c *Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func num(dst func(c *Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func float(dst func(c *Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst(c) = f
		return nil
	}
}

func boolean(dst func(c *Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

func list(dst func(c *Config) *[]string) func(*Config, string) error {
	return func(c *Config, v string) error {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*dst(c) = out
		return nil
	}
}

var envVars = []envVar{
	{"CAMERA_SOURCE", str(func(c *Config) *string { return &c.Camera.Source })},
	{"CAMERA_DEVICE", num(func(c *Config) *int { return &c.Camera.Device })},
	{"SIGNALLING_URL", str(func(c *Config) *string { return &c.WebRTC.SignallingURL })},
	{"PRODUCER", str(func(c *Config) *string { return &c.WebRTC.Producer })},
	{"ICE_SERVERS", list(func(c *Config) *[]string { return &c.WebRTC.ICEServers })},
	{"LANDMARKER_URL", str(func(c *Config) *string { return &c.Landmarker.URL })},
	{"LANDMARKER_FALLBACK_URLS", list(func(c *Config) *[]string { return &c.Landmarker.FallbackURLs })},
	{"DETECTION", boolean(func(c *Config) *bool { return &c.Detection.Enabled })},
	{"DETECTION_MODEL", str(func(c *Config) *string { return &c.Detection.ModelPath })},
	{"MODEL_PATH", str(func(c *Config) *string { return &c.Model.Path })},
	{"MAPPER_FACTOR", float(func(c *Config) *float64 { return &c.Mapper.Factor })},
	{"DISPLAY_RATE", float(func(c *Config) *float64 { return &c.Display.Rate })},
	{"WEB_ADDR", str(func(c *Config) *string { return &c.Web.Addr })},
	{"WEB_ENABLED", boolean(func(c *Config) *bool { return &c.Web.Enabled })},
	{"CHANNEL", str(func(c *Config) *string { return &c.Session.Channel })},
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.Log.Level })},
}

// EnvKeys lists the recognised environment variables.
func EnvKeys() []string {
	keys := make([]string, len(envVars))
	for i, e := range envVars {
		keys[i] = EnvPrefix + e.key
	}
	return keys
}

// ApplyEnv overlays AVATAR_* variables found by lookup. Empty values are
// ignored.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	for _, e := range envVars {
		key := EnvPrefix + e.key
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := e.set(c, strings.TrimSpace(v)); err != nil {
			return &ConfigError{Field: key, Message: fmt.Sprintf("invalid value %q: %v", v, err)}
		}
	}
	return nil
}
