// Package logging provides leveled logging on top of the standard library
// logger. The level is read once from the DEBUG and LOG_LEVEL environment
// variables and applies process-wide.
package logging
