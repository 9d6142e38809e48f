// Package startup owns process initialization: environment-driven
// configuration, directory validation, external tool checks, and the
// structured startup/shutdown log sections that bracket the server's
// lifetime.
package startup
