// Package mediatypes classifies uploads by MIME type and validates
// content-hash references used in download paths.
package mediatypes
