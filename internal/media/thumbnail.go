package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"time"

	"github.com/disintegration/imaging"

	"media-share/internal/logging"
	"media-share/internal/mediatypes"
)

// ThumbnailSize is the bounding box for derived thumbnails; the source
// aspect ratio is preserved within it.
const ThumbnailSize = 192

// Thumbnailer derives <hash>.thumbnail.png files. For video it grabs
// the frame at the midpoint of the stream via ffmpeg.
type Thumbnailer struct {
	FFmpegPath string
	Timeout    time.Duration
}

func NewThumbnailer() *Thumbnailer {
	return &Thumbnailer{FFmpegPath: "ffmpeg", Timeout: DefaultProbeTimeout}
}

// Generate writes the thumbnail for the blob at blobPath to thumbPath.
// duration is only consulted for video, to pick the midpoint frame.
func (t *Thumbnailer) Generate(ctx context.Context, blobPath, thumbPath string, category mediatypes.Category, duration *float64) error {
	switch category {
	case mediatypes.CategoryImage:
		return t.fromImage(blobPath, thumbPath)
	case mediatypes.CategoryVideo:
		return t.fromVideo(ctx, blobPath, thumbPath, duration)
	}
	return fmt.Errorf("no thumbnail strategy for category %q", category)
}

func (t *Thumbnailer) fromImage(blobPath, thumbPath string) error {
	if vipsReady() {
		if err := vipsThumbnail(blobPath, thumbPath, ThumbnailSize); err == nil {
			return nil
		} else {
			logging.Debug("vips thumbnail failed for %s, falling back: %v", blobPath, err)
		}
	}

	src, err := imaging.Open(blobPath)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", blobPath, err)
	}
	return saveThumbnail(src, thumbPath)
}

func (t *Thumbnailer) fromVideo(ctx context.Context, blobPath, thumbPath string, duration *float64) error {
	var seek float64
	if duration != nil && *duration > 0 {
		seek = *duration / 2
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.FFmpegPath,
		"-ss", fmt.Sprintf("%.3f", seek),
		"-i", blobPath,
		"-frames:v", "1",
		"-f", "image2",
		"-vcodec", "png",
		"pipe:1")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("extracting frame from %s: %w (%s)", blobPath, err, bytes.TrimSpace(stderr.Bytes()))
	}

	frame, err := imaging.Decode(bytes.NewReader(stdout.Bytes()))
	if err != nil {
		return fmt.Errorf("decoding extracted frame: %w", err)
	}
	return saveThumbnail(frame, thumbPath)
}

// saveThumbnail fits the image into the thumbnail box and writes it as
// PNG, going through a temp file so readers never see a partial write.
func saveThumbnail(src image.Image, thumbPath string) error {
	thumb := imaging.Fit(src, ThumbnailSize, ThumbnailSize, imaging.Lanczos)

	tmp := thumbPath + ".tmp"
	if err := imaging.Save(thumb, tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing thumbnail: %w", err)
	}
	if err := os.Rename(tmp, thumbPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publishing thumbnail: %w", err)
	}
	return nil
}
