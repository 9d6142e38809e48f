package media

import (
	"errors"
	"fmt"
	"io"
	"os"

	"media-share/internal/logging"
	"media-share/internal/metrics"
)

// Place moves an intake file to its content-addressed location under
// root. If a blob with that hash already exists the intake file is
// discarded and existed is true; the caller still records a fresh media
// row so two uploads of identical bytes share one blob on disk.
func Place(intakePath, root, hash string) (existed bool, err error) {
	dest := BlobPath(root, hash)

	if _, err := os.Stat(dest); err == nil {
		if err := os.Remove(intakePath); err != nil {
			return true, fmt.Errorf("discarding duplicate intake file: %w", err)
		}
		metrics.UploadDuplicatesTotal.Inc()
		logging.Debug("Blob %s already stored, intake discarded", hash)
		return true, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("probing blob %s: %w", hash, err)
	}

	if err := os.Rename(intakePath, dest); err == nil {
		return false, nil
	}

	// Rename can fail when intake and storage sit on different
	// filesystems; fall back to copy and delete.
	if err := copyFile(intakePath, dest); err != nil {
		os.Remove(dest)
		return false, fmt.Errorf("storing blob %s: %w", hash, err)
	}
	if err := os.Remove(intakePath); err != nil {
		return false, fmt.Errorf("removing intake file: %w", err)
	}
	return false, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Discard removes an intake file, used on upload failure so rejected
// bytes never linger in the intake directory.
func Discard(intakePath string) {
	if err := os.Remove(intakePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn("Failed to remove intake file %s: %v", intakePath, err)
	}
}
