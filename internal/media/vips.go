package media

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/davidbyttow/govips/v2/vips"

	"media-share/internal/logging"
)

var vipsEnabled atomic.Bool

// InitVips starts the libvips pipeline. Call once from main; thumbnail
// generation silently falls back to pure-Go decoding when this was
// never called or vips is unavailable.
func InitVips() {
	vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
		if level <= vips.LogLevelWarning {
			logging.Debug("vips %s: %s", domain, msg)
		}
	}, vips.LogLevelWarning)
	vips.Startup(nil)
	vipsEnabled.Store(true)
	logging.Info("libvips initialized")
}

// ShutdownVips tears the pipeline down. Safe to defer from main even
// when InitVips was never called.
func ShutdownVips() {
	if vipsEnabled.Swap(false) {
		vips.Shutdown()
	}
}

func vipsReady() bool {
	return vipsEnabled.Load()
}

// vipsThumbnail is the fast path for image thumbnails: libvips does a
// shrink-on-load decode instead of decoding the full bitmap.
func vipsThumbnail(srcPath, dstPath string, size int) error {
	img, err := vips.NewThumbnailFromFile(srcPath, size, size, vips.InterestingNone)
	if err != nil {
		return fmt.Errorf("vips thumbnail: %w", err)
	}
	defer img.Close()

	buf, _, err := img.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return fmt.Errorf("vips png export: %w", err)
	}

	tmp := dstPath + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing thumbnail: %w", err)
	}
	if err := os.Rename(tmp, dstPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publishing thumbnail: %w", err)
	}
	return nil
}
