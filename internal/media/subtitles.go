package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"media-share/internal/logging"
)

// SubtitleExtractor pulls embedded subtitle streams out of video
// containers as WebVTT files, one per stream index.
type SubtitleExtractor struct {
	FFmpegPath  string
	FFprobePath string
	Timeout     time.Duration
}

func NewSubtitleExtractor() *SubtitleExtractor {
	return &SubtitleExtractor{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe", Timeout: DefaultProbeTimeout}
}

// Extract writes every subtitle stream of the blob to
// <root>/<hash>_subtitles/<n>.vtt, numbering tracks from 1, and
// returns how many were written. Streams ffmpeg cannot convert (bitmap
// subtitles, mostly) are skipped with a log line rather than failing
// the whole job.
func (e *SubtitleExtractor) Extract(ctx context.Context, root, hash string) (int, error) {
	blobPath := BlobPath(root, hash)

	prober := &Prober{FFprobePath: e.FFprobePath, Timeout: e.Timeout}
	count, err := prober.CountSubtitleStreams(ctx, blobPath)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	dir := SubtitleDir(root, hash)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating subtitle dir: %w", err)
	}

	written := 0
	for i := 0; i < count; i++ {
		// ffmpeg maps streams 0-based; tracks on disk are 1-based.
		if err := e.extractOne(ctx, blobPath, SubtitlePath(root, hash, i+1, "vtt"), i); err != nil {
			logging.Warn("Skipping subtitle stream %d of %s: %v", i, hash, err)
			continue
		}
		written++
	}
	return written, nil
}

func (e *SubtitleExtractor) extractOne(ctx context.Context, blobPath, outPath string, index int) error {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.FFmpegPath,
		"-y",
		"-i", blobPath,
		"-map", fmt.Sprintf("0:s:%d", index),
		outPath)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(outPath)
		return fmt.Errorf("ffmpeg subtitle extraction: %w (%s)", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

// ListSubtitles returns the stream indexes with an extracted track on
// disk, sorted ascending. A missing directory means no subtitles.
func ListSubtitles(root, hash string) ([]int, error) {
	entries, err := os.ReadDir(SubtitleDir(root, hash))
	if os.IsNotExist(err) {
		return []int{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading subtitle dir: %w", err)
	}

	indexes := []int{}
	for _, entry := range entries {
		name := entry.Name()
		base, _, found := strings.Cut(name, ".")
		if !found {
			continue
		}
		idx, err := strconv.Atoi(base)
		if err != nil {
			continue
		}
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	return indexes, nil
}

// FindSubtitle locates the on-disk file for a stream index, preferring
// .srt over .vtt when both exist. Returns os.ErrNotExist when neither
// does.
func FindSubtitle(root, hash string, index int) (string, error) {
	for _, ext := range []string{"srt", "vtt"} {
		path := SubtitlePath(root, hash, index, ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", os.ErrNotExist
}
