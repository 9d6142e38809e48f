// Package middleware provides the HTTP middleware chain: W3C Extended
// Log Format request logging, Prometheus request metrics, and session
// authentication for the protected API surface.
package middleware
