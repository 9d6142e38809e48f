// Package media implements the content pipeline around stored blobs:
// SHA-1 content addressing, metadata probing (in-process for images,
// ffprobe for video), moving intake files into the content-addressed
// store, and derived artifacts (thumbnails, extracted subtitle tracks).
//
// Blobs live flat under the storage root, named by their lowercase hex
// hash. Derived files sit beside them: <hash>.thumbnail.png and
// <hash>_subtitles/<n>.vtt.
package media
