package streaming

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveRange(t *testing.T) {
	t.Parallel()

	const size = 5_000_000

	tests := []struct {
		name      string
		header    string
		wantStart int64
		wantEnd   int64
	}{
		{"open-ended from zero is capped", "bytes=0-", 0, MaxChunkSize - 1},
		{"open-ended near tail", "bytes=4999000-", 4999000, size - 1},
		{"small explicit window", "bytes=100-199", 100, 199},
		{"oversized explicit window is capped", "bytes=0-4999999", 0, MaxChunkSize - 1},
		{"end clamped to file size", "bytes=4999990-9999999", 4999990, size - 1},
		{"garbage falls back", "bytes=abc-def", 0, FallbackWindow - 1},
		{"missing bytes prefix falls back", "0-99", 0, FallbackWindow - 1},
		{"start past end of file falls back", "bytes=9999999-", 0, FallbackWindow - 1},
		{"inverted range falls back", "bytes=200-100", 0, FallbackWindow - 1},
		{"multi-range uses first part", "bytes=0-99,200-299", 0, 99},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ResolveRange(tt.header, size)
			if got.Start != tt.wantStart || got.End != tt.wantEnd {
				t.Fatalf("got %d-%d, want %d-%d", got.Start, got.End, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestResolveRangeSmallFile(t *testing.T) {
	t.Parallel()

	got := ResolveRange("bytes=junk", 100)
	if got.Start != 0 || got.End != 99 {
		t.Fatalf("got %d-%d, want 0-99", got.Start, got.End)
	}
	if got.Length() != 100 {
		t.Fatalf("length = %d, want 100", got.Length())
	}
}

func writeBlob(t *testing.T, size int) string {
	t.Helper()
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), "blob")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("writing blob: %v", err)
	}
	return path
}

func TestServeRangeCapsChunk(t *testing.T) {
	t.Parallel()

	path := writeBlob(t, 5_000_000)

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set("Range", "bytes=0-")
	rec := httptest.NewRecorder()

	ServeRange(rec, req, path, "video/mp4")

	resp := rec.Result()
	if resp.StatusCode != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Range"); got != "bytes 0-1048575/5000000" {
		t.Fatalf("Content-Range = %q", got)
	}
	if got := rec.Body.Len(); got != MaxChunkSize {
		t.Fatalf("body = %d bytes, want %d", got, MaxChunkSize)
	}
}

func TestServeRangeMiddleWindow(t *testing.T) {
	t.Parallel()

	path := writeBlob(t, 10_000)

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set("Range", "bytes=1000-1999")
	rec := httptest.NewRecorder()

	ServeRange(rec, req, path, "video/mp4")

	resp := rec.Result()
	if resp.StatusCode != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", resp.StatusCode)
	}
	body := rec.Body.Bytes()
	if len(body) != 1000 {
		t.Fatalf("body = %d bytes, want 1000", len(body))
	}
	if body[0] != byte(1000%251) || body[999] != byte(1999%251) {
		t.Fatal("served bytes do not match the requested window")
	}
}

func TestServeRangeNoHeaderServesWholeFile(t *testing.T) {
	t.Parallel()

	path := writeBlob(t, 200_000)

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	rec := httptest.NewRecorder()

	ServeRange(rec, req, path, "video/webm")

	resp := rec.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Range"); got != "" {
		t.Fatalf("Content-Range = %q, want none", got)
	}
	if rec.Body.Len() != 200_000 {
		t.Fatalf("body = %d bytes, want 200000", rec.Body.Len())
	}
}

func TestServeRangeMalformedHeaderFallsBack(t *testing.T) {
	t.Parallel()

	path := writeBlob(t, 1_000_000)

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set("Range", "bytes=abc-def")
	rec := httptest.NewRecorder()

	ServeRange(rec, req, path, "video/webm")

	resp := rec.Result()
	if resp.StatusCode != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", resp.StatusCode)
	}
	if rec.Body.Len() != FallbackWindow {
		t.Fatalf("body = %d bytes, want %d", rec.Body.Len(), FallbackWindow)
	}
	if got := resp.Header.Get("Content-Range"); got != "bytes 0-65535/1000000" {
		t.Fatalf("Content-Range = %q", got)
	}
}

func TestServeRangeHeadSkipsBody(t *testing.T) {
	t.Parallel()

	path := writeBlob(t, 10_000)

	req := httptest.NewRequest(http.MethodHead, "/stream", nil)
	req.Header.Set("Range", "bytes=0-99")
	rec := httptest.NewRecorder()

	ServeRange(rec, req, path, "video/mp4")

	if rec.Body.Len() != 0 {
		t.Fatalf("HEAD body = %d bytes, want 0", rec.Body.Len())
	}
	if got := rec.Result().Header.Get("Content-Length"); got != "100" {
		t.Fatalf("Content-Length = %q, want 100", got)
	}
}
