package media

import (
	"fmt"
	"path/filepath"
)

// BlobPath is the canonical location of a stored blob.
func BlobPath(root, hash string) string {
	return filepath.Join(root, hash)
}

// ThumbnailPath is where the derived thumbnail for a blob lives.
func ThumbnailPath(root, hash string) string {
	return filepath.Join(root, hash+".thumbnail.png")
}

// SubtitleDir holds a blob's extracted subtitle tracks.
func SubtitleDir(root, hash string) string {
	return filepath.Join(root, hash+"_subtitles")
}

// SubtitlePath names one extracted track by stream index.
func SubtitlePath(root, hash string, index int, ext string) string {
	return filepath.Join(SubtitleDir(root, hash), fmt.Sprintf("%d.%s", index, ext))
}
