package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"strconv"
	"time"

	_ "golang.org/x/image/webp"

	"media-share/internal/logging"
	"media-share/internal/metrics"
	"media-share/internal/mediatypes"
)

// DefaultProbeTimeout bounds a single ffprobe run.
const DefaultProbeTimeout = 30 * time.Second

// Info is what probing a blob yields. Duration is nil for images.
type Info struct {
	Category mediatypes.Category
	Width    *int64
	Height   *int64
	Duration *float64
}

// Prober extracts intrinsic metadata from uploaded files. Images are
// decoded in-process; video goes through ffprobe.
type Prober struct {
	FFprobePath string
	Timeout     time.Duration
}

// NewProber returns a prober with the default binary name and timeout.
func NewProber() *Prober {
	return &Prober{FFprobePath: "ffprobe", Timeout: DefaultProbeTimeout}
}

// Probe inspects the file at path, dispatching on the declared MIME
// type. Unsupported types return an error before any I/O.
func (p *Prober) Probe(ctx context.Context, path, mimeType string) (*Info, error) {
	category := mediatypes.CategoryOf(mimeType)
	start := time.Now()

	var (
		info *Info
		err  error
	)
	switch category {
	case mediatypes.CategoryImage:
		info, err = p.probeImage(path)
	case mediatypes.CategoryVideo:
		info, err = p.probeVideo(ctx, path)
	default:
		return nil, fmt.Errorf("unsupported media type %q", mimeType)
	}
	if err != nil {
		return nil, err
	}

	metrics.ProbeDuration.WithLabelValues(string(category)).Observe(time.Since(start).Seconds())
	return info, nil
}

func (p *Prober) probeImage(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image header: %w", err)
	}
	logging.Debug("Probed %s image %s: %dx%d", format, path, cfg.Width, cfg.Height)

	w, h := int64(cfg.Width), int64(cfg.Height)
	return &Info{Category: mediatypes.CategoryImage, Width: &w, Height: &h}, nil
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	Width     int64  `json:"width"`
	Height    int64  `json:"height"`
}

func (p *Prober) probeVideo(ctx context.Context, path string) (*Info, error) {
	out, err := p.runFFprobe(ctx, path)
	if err != nil {
		return nil, err
	}

	info := &Info{Category: mediatypes.CategoryVideo}
	// Multi-resolution and rotated containers carry several video
	// streams; report the largest width and height seen.
	var width, height int64
	found := false
	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		found = true
		if s.Width > width {
			width = s.Width
		}
		if s.Height > height {
			height = s.Height
		}
	}
	if found {
		info.Width = &width
		info.Height = &height
	}
	if out.Format.Duration != "" {
		d, err := strconv.ParseFloat(out.Format.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing duration %q: %w", out.Format.Duration, err)
		}
		info.Duration = &d
	}
	return info, nil
}

// runFFprobe shells out with a hard deadline; a wedged ffprobe must not
// pin an upload request forever.
func (p *Prober) runFFprobe(ctx context.Context, path string) (*ffprobeOutput, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.FFprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("ffprobe timed out after %s on %s", timeout, path)
		}
		return nil, fmt.Errorf("ffprobe failed on %s: %w (%s)", path, err, bytes.TrimSpace(stderr.Bytes()))
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}
	return &out, nil
}

// CountSubtitleStreams returns how many subtitle streams the container
// at path carries.
func (p *Prober) CountSubtitleStreams(ctx context.Context, path string) (int, error) {
	out, err := p.runFFprobe(ctx, path)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range out.Streams {
		if s.CodecType == "subtitle" {
			n++
		}
	}
	return n, nil
}
