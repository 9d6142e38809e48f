// Package metrics defines the Prometheus collectors for the service:
// HTTP traffic, database queries, the upload pipeline, background
// derivation jobs, and authentication.
//
// Collectors are registered at import time via promauto and served from
// a dedicated metrics port configured in startup.
package metrics
