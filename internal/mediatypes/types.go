package mediatypes

import (
	"regexp"
	"strings"
)

// Category classifies an upload by its declared MIME type.
type Category string

const (
	// CategoryImage covers image/* MIME types.
	CategoryImage Category = "image"
	// CategoryVideo covers video/* MIME types.
	CategoryVideo Category = "video"
	// CategoryOther covers everything the service does not accept.
	CategoryOther Category = "other"
)

// CategoryOf returns the category for a declared MIME type.
func CategoryOf(mimeType string) Category {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return CategoryImage
	case strings.HasPrefix(mimeType, "video/"):
		return CategoryVideo
	default:
		return CategoryOther
	}
}

// IsSupported reports whether the MIME type names an image or a video.
func IsSupported(mimeType string) bool {
	return CategoryOf(mimeType) != CategoryOther
}

// Content hashes are lowercase hex SHA-1 digests of the stored bytes.
// Download references accept 5-40 hex characters; lookups remain exact,
// so anything shorter than a full digest simply finds nothing.
var hashRefPattern = regexp.MustCompile(`^[0-9a-fA-F]{5,40}$`)

// HashLength is the length of a full hex SHA-1 digest.
const HashLength = 40

// IsValidHashRef reports whether s is acceptable as a content-hash reference
// in a request path.
func IsValidHashRef(s string) bool {
	return hashRefPattern.MatchString(s)
}
