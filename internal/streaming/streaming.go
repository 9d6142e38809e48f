// Package streaming serves video blobs. Requests without a Range
// header get the whole file; ranged requests get a 206 window capped
// at MaxChunkSize so a single request can never pin a whole file in
// flight.
package streaming

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"media-share/internal/logging"
)

const (
	// MaxChunkSize caps the bytes served per range request.
	MaxChunkSize = 1 << 20
	// FallbackWindow is served when a Range header is present but
	// unparseable.
	FallbackWindow = 65536
)

// ByteRange is a resolved inclusive byte window within a file.
type ByteRange struct {
	Start int64
	End   int64
}

// Length is the number of bytes the range covers.
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ResolveRange turns a Range header into a concrete window for a file
// of the given size. Malformed headers fall back to a small window
// from the start instead of failing the request; requested windows
// larger than MaxChunkSize are clamped.
func ResolveRange(header string, size int64) ByteRange {
	start, end, ok := parseRange(header, size)
	if !ok {
		start = 0
		end = FallbackWindow - 1
	}
	if end >= size {
		end = size - 1
	}
	if end-start+1 > MaxChunkSize {
		end = start + MaxChunkSize - 1
	}
	return ByteRange{Start: start, End: end}
}

func parseRange(header string, size int64) (start, end int64, ok bool) {
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return 0, 0, false
	}
	// Only the first range of a multi-range request is honored.
	spec, _, _ = strings.Cut(spec, ",")

	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, false
	}

	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, false
	}

	endStr = strings.TrimSpace(endStr)
	if endStr == "" {
		return start, size - 1, true
	}
	end, err = strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < start {
		return 0, 0, false
	}
	return start, end, true
}

// ServeRange serves the file. Without a Range header the whole file
// goes out as a plain 200; with one, a single capped chunk goes out
// as a 206.
func ServeRange(w http.ResponseWriter, r *http.Request, path, contentType string) {
	f, err := os.Open(path)
	if err != nil {
		logging.Error("Opening %s for streaming: %v", path, err)
		http.Error(w, "media not available", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		logging.Error("Statting %s: %v", path, err)
		http.Error(w, "media not available", http.StatusInternalServerError)
		return
	}
	size := fi.Size()
	if size == 0 {
		http.Error(w, "empty media", http.StatusInternalServerError)
		return
	}

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		serveWhole(w, r, f, path, size, contentType)
		return
	}

	br := ResolveRange(rangeHeader, size)
	if _, err := f.Seek(br.Start, io.SeekStart); err != nil {
		logging.Error("Seeking %s to %d: %v", path, br.Start, err)
		http.Error(w, "media not available", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.FormatInt(br.Length(), 10))
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", br.Start, br.End, size))
	w.WriteHeader(http.StatusPartialContent)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.CopyN(w, f, br.Length()); err != nil {
		// Players abandon connections constantly; not worth more
		// than a debug line.
		logging.Debug("Streaming %s interrupted: %v", path, err)
	}
}

func serveWhole(w http.ResponseWriter, r *http.Request, f *os.File, path string, size int64, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, f); err != nil {
		logging.Debug("Streaming %s interrupted: %v", path, err)
	}
}
