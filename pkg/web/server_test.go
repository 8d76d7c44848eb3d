package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/teslashibe/go-avatar/pkg/expression"
	"github.com/teslashibe/go-avatar/pkg/media"
	"github.com/teslashibe/go-avatar/pkg/pose"
	"github.com/teslashibe/go-avatar/pkg/signal"
	"github.com/teslashibe/go-avatar/pkg/tracking"
)

type fakeBackend struct {
	tracks *media.Local
	buf    *signal.Buffer
}

func newFakeBackend() *fakeBackend {
	b := &fakeBackend{tracks: media.NewLocal(), buf: signal.NewBuffer()}
	for _, k := range media.Kinds() {
		b.tracks.Activate(k)
	}
	return b
}

func (b *fakeBackend) Status() Status {
	_, ok := b.buf.Load()
	return Status{
		Session:   "test",
		Channel:   "abc-def-ghi",
		Tracking:  tracking.Stats{Ticks: 3},
		Media:     b.tracks.States(),
		HasSignal: ok,
	}
}

func (b *fakeBackend) Signal() (signal.Snapshot, bool) {
	return b.buf.Load()
}

func (b *fakeBackend) ToggleMedia(k media.Kind) (media.State, error) {
	return b.tracks.Toggle(k)
}

func TestStatusEndpoint(t *testing.T) {
	s := NewServer(Config{}, newFakeBackend(), nil)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var st struct {
		Channel  string            `json:"channel"`
		Media    map[string]string `json:"media"`
		Tracking tracking.Stats    `json:"tracking"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Channel != "abc-def-ghi" || st.Tracking.Ticks != 3 {
		t.Errorf("unexpected status %+v", st)
	}
	if st.Media["audio"] != "active" {
		t.Errorf("audio state = %q", st.Media["audio"])
	}
}

func TestPoseEndpoint(t *testing.T) {
	b := newFakeBackend()
	s := NewServer(Config{}, b, nil)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/pose", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("empty buffer: status = %d, want 204", resp.StatusCode)
	}

	b.buf.Store(pose.Euler{X: 0.5}, expression.New(nil), 1000)
	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/api/pose", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var snap signal.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Pose.X != 0.5 || snap.TimestampMs != 1000 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestToggleMediaEndpoint(t *testing.T) {
	b := newFakeBackend()
	s := NewServer(Config{}, b, nil)

	tests := []struct {
		path   string
		status int
		state  string
	}{
		{"/api/media/mic/toggle", http.StatusOK, "muted"},
		{"/api/media/audio/toggle", http.StatusOK, "active"},
		{"/api/media/video/toggle", http.StatusOK, "muted"},
		{"/api/media/screen/toggle", http.StatusNotFound, ""},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := s.App().Test(httptest.NewRequest(http.MethodPost, tc.path, nil))
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.status)
			}
			if tc.state == "" {
				return
			}
			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body["state"] != tc.state {
				t.Errorf("state = %q, want %q", body["state"], tc.state)
			}
		})
	}

	if b.tracks.State(media.Canvas) != media.StateMuted {
		t.Error("video toggle should mute the canvas track")
	}
}

func TestToggleMediaAfterRelease(t *testing.T) {
	b := newFakeBackend()
	b.tracks.ReleaseAll()
	s := NewServer(Config{}, b, nil)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodPost, "/api/media/mic/toggle", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	s := NewServer(Config{}, newFakeBackend(), nil)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/ws/pose", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}
