package video

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"os/exec"
	"sync"
	"time"
)

// Decoder turns H264 access units into JPEG pictures.
type Decoder interface {
	// Decode consumes au and returns the newest decoded picture, or nil when
	// no picture is ready yet.
	Decode(ctx context.Context, au AccessUnit) ([]byte, error)
	Close() error
}

// DecoderConfig controls the ffmpeg decoder.
type DecoderConfig struct {
	// Path is the ffmpeg binary.
	Path string

	// Interval is the minimum time between decodes.
	Interval time.Duration

	// Timeout bounds a single ffmpeg run.
	Timeout time.Duration

	// Quality is the mjpeg qscale, 1 (best) to 31.
	Quality int

	// MaxGOP caps buffered bytes since the last keyframe.
	MaxGOP int
}

// DefaultDecoderConfig returns settings for roughly 20 decodes a second.
func DefaultDecoderConfig() DecoderConfig {
	return DecoderConfig{
		Path:     "ffmpeg",
		Interval: 50 * time.Millisecond,
		Timeout:  250 * time.Millisecond,
		Quality:  3,
		MaxGOP:   4 << 20,
	}
}

// FFmpegDecoder pipes the current group of pictures through ffmpeg and keeps
// the last picture it produces. Units arriving inside Interval are buffered
// but not decoded.
type FFmpegDecoder struct {
	cfg DecoderConfig
	run func(ctx context.Context, in []byte) ([]byte, error)

	mu         sync.Mutex
	gop        []byte
	lastDecode time.Time
	now        func() time.Time
}

// NewFFmpegDecoder checks that ffmpeg exists and returns a decoder.
func NewFFmpegDecoder(cfg DecoderConfig) (*FFmpegDecoder, error) {
	path, err := exec.LookPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("video: ffmpeg not found: %w", err)
	}
	cfg.Path = path
	d := &FFmpegDecoder{cfg: cfg, now: time.Now}
	d.run = d.ffmpeg
	return d, nil
}

// Decode implements Decoder.
func (d *FFmpegDecoder) Decode(ctx context.Context, au AccessUnit) ([]byte, error) {
	d.mu.Lock()
	if au.Keyframe {
		d.gop = d.gop[:0]
	}
	if d.cfg.MaxGOP > 0 && len(d.gop)+len(au.Data) > d.cfg.MaxGOP {
		// Without a fresh keyframe the tail cannot be decoded anyway.
		d.gop = d.gop[:0]
		d.mu.Unlock()
		return nil, nil
	}
	d.gop = append(d.gop, au.Data...)

	now := d.now()
	if !d.lastDecode.IsZero() && now.Sub(d.lastDecode) < d.cfg.Interval {
		d.mu.Unlock()
		return nil, nil
	}
	d.lastDecode = now
	in := append([]byte(nil), d.gop...)
	d.mu.Unlock()

	out, err := d.run(ctx, in)
	if err != nil {
		return nil, err
	}
	pic := lastJPEG(out)
	if pic == nil || blank(pic) {
		return nil, nil
	}
	return pic, nil
}

func (d *FFmpegDecoder) ffmpeg(ctx context.Context, in []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.cfg.Path,
		"-loglevel", "error",
		"-f", "h264",
		"-i", "pipe:0",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", fmt.Sprint(d.cfg.Quality),
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(in)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// A partial GOP often decodes some pictures before ffmpeg complains.
		if stdout.Len() > 0 {
			return stdout.Bytes(), nil
		}
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("video: ffmpeg: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}

// Close implements Decoder.
func (d *FFmpegDecoder) Close() error {
	d.mu.Lock()
	d.gop = nil
	d.mu.Unlock()
	return nil
}

var jpegSOI = []byte{0xff, 0xd8, 0xff}

// lastJPEG returns the last complete picture in an mjpeg stream.
func lastJPEG(stream []byte) []byte {
	i := bytes.LastIndex(stream, jpegSOI)
	if i < 0 {
		return nil
	}
	pic := stream[i:]
	if len(pic) < 4 || pic[len(pic)-2] != 0xff || pic[len(pic)-1] != 0xd9 {
		return nil
	}
	return pic
}

// blank reports whether pic looks like a decoder placeholder: tiny, nearly
// black, or flat mid-gray.
func blank(pic []byte) bool {
	img, err := jpeg.Decode(bytes.NewReader(pic))
	if err != nil {
		return true
	}
	b := img.Bounds()
	if b.Dx() < 16 || b.Dy() < 16 {
		return true
	}

	var r, g, bl, n int
	stepX, stepY := max(b.Dx()/10, 1), max(b.Dy()/10, 1)
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			r += int(cr >> 8)
			g += int(cg >> 8)
			bl += int(cb >> 8)
			n++
		}
	}
	r, g, bl = r/n, g/n, bl/n

	if r < 30 && g < 30 && bl < 30 {
		return true
	}
	diff := abs(r-g) + abs(g-bl) + abs(r-bl)
	return diff < 15 && r > 100 && r < 150
}

// size returns the dimensions of a JPEG without decoding it.
func size(pic []byte) (int, int) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(pic))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

