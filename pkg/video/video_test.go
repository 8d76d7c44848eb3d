package video

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"welcome", `{"type":"welcome","peerId":"p1"}`, msgWelcome, false},
		{"list", `{"type":"list","producers":[{"id":"a","meta":{"name":"cam"}}]}`, msgList, false},
		{"no type", `{"peerId":"p1"}`, "", true},
		{"garbage", `not json`, "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, err := ParseMessage([]byte(tc.in))
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if m.Type != tc.want {
				t.Errorf("type = %q, want %q", m.Type, tc.want)
			}
		})
	}
}

func TestSelectProducer(t *testing.T) {
	producers := []Producer{
		{ID: "a", Meta: map[string]string{"name": "desk"}},
		{ID: "b", Meta: map[string]string{"name": "webcam"}},
	}

	if p, err := SelectProducer(producers, "webcam"); err != nil || p.ID != "b" {
		t.Errorf("by name: got %+v, %v", p, err)
	}
	if p, err := SelectProducer(producers, ""); err != nil || p.ID != "a" {
		t.Errorf("first: got %+v, %v", p, err)
	}
	if _, err := SelectProducer(producers, "phone"); !errors.Is(err, ErrNoProducer) {
		t.Errorf("missing: got %v", err)
	}
	if _, err := SelectProducer(nil, ""); !errors.Is(err, ErrNoProducer) {
		t.Errorf("empty: got %v", err)
	}
}

func single(ts uint32, marker bool, nal ...byte) *rtp.Packet {
	return &rtp.Packet{
		Header:  rtp.Header{Timestamp: ts, Marker: marker},
		Payload: nal,
	}
}

func TestAssembler_WaitsForKeyframe(t *testing.T) {
	var a Assembler

	// Non-IDR slice before any keyframe is dropped.
	if _, ok := a.Push(single(100, true, 0x41, 0x01, 0x02)); ok {
		t.Fatal("unit before keyframe should be dropped")
	}

	a.Push(single(200, false, 0x67, 0x42)) // SPS
	a.Push(single(200, false, 0x68, 0xce)) // PPS
	au, ok := a.Push(single(200, true, 0x65, 0x88))
	if !ok || !au.Keyframe || au.Timestamp != 200 {
		t.Fatalf("expected keyframe unit, got %+v %v", au, ok)
	}
	want := []byte{0, 0, 0, 1, 0x67, 0x42, 0, 0, 0, 1, 0x68, 0xce, 0, 0, 0, 1, 0x65, 0x88}
	if !bytes.Equal(au.Data, want) {
		t.Errorf("data = %x, want %x", au.Data, want)
	}

	au, ok = a.Push(single(300, true, 0x41, 0x9a))
	if !ok || au.Keyframe {
		t.Errorf("expected delta unit, got %+v %v", au, ok)
	}
}

func TestAssembler_TimestampChangeFlushes(t *testing.T) {
	var a Assembler
	a.Push(single(10, false, 0x65, 0x01))

	au, ok := a.Push(single(20, false, 0x41, 0x02))
	if !ok || au.Timestamp != 10 || !au.Keyframe {
		t.Fatalf("expected flushed unit at ts 10, got %+v %v", au, ok)
	}
}

func TestAssembler_TimestampChangeWithMarker(t *testing.T) {
	var a Assembler
	a.Push(single(10, false, 0x65, 0x01))

	// Completes the unit at ts 10 and, by its marker, its own unit at ts 20.
	au, ok := a.Push(single(20, true, 0x41, 0x02))
	if !ok || au.Timestamp != 10 || !au.Keyframe {
		t.Fatalf("expected unit at ts 10, got %+v %v", au, ok)
	}
	if want := []byte{0, 0, 0, 1, 0x65, 0x01}; !bytes.Equal(au.Data, want) {
		t.Errorf("data = %x, want %x", au.Data, want)
	}

	au, ok = a.Push(single(30, true, 0x41, 0x03))
	if !ok || au.Timestamp != 20 {
		t.Fatalf("expected buffered unit at ts 20, got %+v %v", au, ok)
	}
	if want := []byte{0, 0, 0, 1, 0x41, 0x02}; !bytes.Equal(au.Data, want) {
		t.Errorf("data = %x, want %x", au.Data, want)
	}
}

func TestAssembler_FragmentedNAL(t *testing.T) {
	var a Assembler
	fu := func(header byte, marker bool, data ...byte) *rtp.Packet {
		return single(50, marker, append([]byte{0x7c, header}, data...)...)
	}

	if _, ok := a.Push(fu(0x85, false, 0xaa)); ok {
		t.Fatal("start fragment should not complete")
	}
	if _, ok := a.Push(fu(0x05, false, 0xbb)); ok {
		t.Fatal("middle fragment should not complete")
	}
	au, ok := a.Push(fu(0x45, true, 0xcc))
	if !ok || !au.Keyframe {
		t.Fatalf("expected keyframe, got %+v %v", au, ok)
	}
	want := []byte{0, 0, 0, 1, 0x65, 0xaa, 0xbb, 0xcc}
	if !bytes.Equal(au.Data, want) {
		t.Errorf("data = %x, want %x", au.Data, want)
	}
}

func TestHasKeyframe(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want bool
	}{
		{"idr 4-byte", []byte{0, 0, 0, 1, 0x65}, true},
		{"sps 3-byte", []byte{0, 0, 1, 0x67, 0x42}, true},
		{"slice", []byte{0, 0, 0, 1, 0x41, 0x9a}, false},
		{"empty", nil, false},
	}
	for _, tc := range tests {
		if got := hasKeyframe(tc.in); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func encode(t *testing.T, fill func(x, y int) color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, fill(x, y))
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func picture(t *testing.T) []byte {
	return encode(t, func(x, y int) color.Color {
		return color.RGBA{R: uint8(x * 4), G: uint8(255 - y*4), B: 50, A: 255}
	})
}

func TestBlank(t *testing.T) {
	black := encode(t, func(x, y int) color.Color { return color.Black })
	gray := encode(t, func(x, y int) color.Color { return color.Gray{Y: 128} })

	if !blank(black) {
		t.Error("black frame should be blank")
	}
	if !blank(gray) {
		t.Error("mid-gray frame should be blank")
	}
	if blank(picture(t)) {
		t.Error("picture should not be blank")
	}
	if !blank([]byte("nope")) {
		t.Error("undecodable data should be blank")
	}
}

func TestLastJPEG(t *testing.T) {
	a, b := picture(t), encode(t, func(x, y int) color.Color { return color.White })
	stream := append(append([]byte(nil), a...), b...)

	if got := lastJPEG(stream); !bytes.Equal(got, b) {
		t.Error("expected the second picture")
	}
	if lastJPEG(stream[:len(stream)-1]) != nil {
		t.Error("truncated picture should be rejected")
	}
	if w, h := size(a); w != 64 || h != 48 {
		t.Errorf("size = %dx%d", w, h)
	}
}

func TestFFmpegDecoder_RateLimitAndGOP(t *testing.T) {
	pic := picture(t)
	var inputs [][]byte
	now := time.UnixMilli(0)

	d := &FFmpegDecoder{
		cfg: DecoderConfig{Interval: 50 * time.Millisecond, MaxGOP: 64},
		now: func() time.Time { return now },
		run: func(ctx context.Context, in []byte) ([]byte, error) {
			inputs = append(inputs, in)
			return pic, nil
		},
	}
	ctx := context.Background()

	out, err := d.Decode(ctx, AccessUnit{Data: []byte{1}, Keyframe: true})
	if err != nil || !bytes.Equal(out, pic) {
		t.Fatalf("first decode: %v", err)
	}

	now = now.Add(10 * time.Millisecond)
	if out, _ := d.Decode(ctx, AccessUnit{Data: []byte{2}}); out != nil {
		t.Error("decode inside interval should be skipped")
	}

	now = now.Add(50 * time.Millisecond)
	d.Decode(ctx, AccessUnit{Data: []byte{3}})
	if got := inputs[len(inputs)-1]; !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("gop = %v, want [1 2 3]", got)
	}

	now = now.Add(50 * time.Millisecond)
	d.Decode(ctx, AccessUnit{Data: []byte{9}, Keyframe: true})
	if got := inputs[len(inputs)-1]; !bytes.Equal(got, []byte{9}) {
		t.Errorf("keyframe should restart gop, got %v", got)
	}

	if out, _ := d.Decode(ctx, AccessUnit{Data: make([]byte, 100)}); out != nil {
		t.Error("oversized gop should be discarded")
	}
}

func TestFFmpegDecoder_Error(t *testing.T) {
	d := &FFmpegDecoder{
		cfg: DecoderConfig{},
		now: time.Now,
		run: func(ctx context.Context, in []byte) ([]byte, error) {
			return nil, errors.New("exit status 1")
		},
	}
	if _, err := d.Decode(context.Background(), AccessUnit{Data: []byte{1}, Keyframe: true}); err == nil {
		t.Error("expected error")
	}
}

type nopDecoder struct{}

func (nopDecoder) Decode(context.Context, AccessUnit) ([]byte, error) { return nil, nil }
func (nopDecoder) Close() error                                       { return nil }

// signallingServer scripts replies keyed by the incoming message type.
func signallingServer(t *testing.T, replies map[string][]string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"welcome","peerId":"me"}`))
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			m, err := ParseMessage(data)
			if err != nil {
				continue
			}
			for _, reply := range replies[m.Type] {
				conn.WriteMessage(websocket.TextMessage, []byte(reply))
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestReceiver_NoProducer(t *testing.T) {
	srv := signallingServer(t, map[string][]string{
		msgList: {`{"type":"list","producers":[{"id":"x","meta":{"name":"other"}}]}`},
	})

	cfg := DefaultConfig()
	cfg.SignallingURL = wsURL(srv)
	cfg.Producer = "webcam"
	r, err := NewReceiver(cfg, nopDecoder{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := r.Run(context.Background()); !errors.Is(err, ErrNoProducer) {
		t.Errorf("got %v, want ErrNoProducer", err)
	}
}

func TestReceiver_SessionEnded(t *testing.T) {
	srv := signallingServer(t, map[string][]string{
		msgList:         {`{"type":"list","producers":[{"id":"x","meta":{"name":"webcam"}}]}`},
		msgStartSession: {`{"type":"sessionStarted","sessionId":"s1"}`, `{"type":"endSession","sessionId":"s1"}`},
	})

	cfg := DefaultConfig()
	cfg.SignallingURL = wsURL(srv)
	r, err := NewReceiver(cfg, nopDecoder{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := r.Run(context.Background()); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("got %v, want ErrSessionEnded", err)
	}
}

func TestReceiver_CancelStops(t *testing.T) {
	srv := signallingServer(t, map[string][]string{
		msgList: {`{"type":"list","producers":[{"id":"x"}]}`},
	})

	cfg := DefaultConfig()
	cfg.SignallingURL = wsURL(srv)
	r, err := NewReceiver(cfg, nopDecoder{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestNewReceiver_RequiresURL(t *testing.T) {
	if _, err := NewReceiver(Config{}, nopDecoder{}, nil); err == nil {
		t.Error("expected error for empty url")
	}
}
