package handlers

import (
	"errors"
	"regexp"
)

// Validation bounds for client-supplied fields. These are enforced here
// at the edge so the storage layer never sees out-of-range values.
const (
	maxUsernameLen  = 64
	maxPasswordLen  = 50
	maxNamespaceLen = 32
	maxTagNameLen   = 256
)

// Passwords are limited to printable ASCII.
var passwordPattern = regexp.MustCompile(`^[\x20-\x7e]+$`)

var (
	errBadUsername  = errors.New("username must be 1-64 characters")
	errBadPassword  = errors.New("password must be 1-50 printable characters")
	errBadNamespace = errors.New("namespace must be at most 32 characters")
	errBadTagName   = errors.New("tag name must be 1-256 characters")
)

func validateUsername(username string) error {
	if len(username) == 0 || len(username) > maxUsernameLen {
		return errBadUsername
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) == 0 || len(password) > maxPasswordLen {
		return errBadPassword
	}
	if !passwordPattern.MatchString(password) {
		return errBadPassword
	}
	return nil
}

func validateNamespace(namespace string) error {
	if len(namespace) > maxNamespaceLen {
		return errBadNamespace
	}
	return nil
}

func validateTagName(name string) error {
	if len(name) == 0 || len(name) > maxTagNameLen {
		return errBadTagName
	}
	return nil
}
