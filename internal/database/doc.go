// Package database manages all relational state for the media-share
// service: users and their default collections, server-side sessions,
// media rows with their collection links, tags, and the durable
// derivation job queue.
//
// All write paths that must be atomic (user registration, the upload
// record) run inside a single transaction. Uniqueness for usernames and
// (namespace, tag name) pairs is enforced by the schema rather than by
// check-then-insert, so concurrent requests cannot create duplicates.
package database
