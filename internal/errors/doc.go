// Package errors defines error types for daemonkit.
//
// This package provides structured error types for the failures that occur
// while supervising the daemon process and talking to it over its socket.
// All error types support error unwrapping and can be checked using
// errors.Is, errors.As, and errors.AsType.
package errors
