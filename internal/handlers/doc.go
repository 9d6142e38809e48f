// Package handlers implements the HTTP API: account registration and
// session login, the upload pipeline, media listing and download,
// subtitle access, and tag management. Request validation happens at
// the edge here; everything past a handler works with checked values.
package handlers
