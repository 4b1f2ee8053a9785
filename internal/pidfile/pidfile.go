// Package pidfile implements the -P persisted-state collaborator: a
// file holding the decimal process id followed by a newline, written at
// start and removed on any exit path, signal exit included.
package pidfile

import (
	"fmt"
	"os"
)

// Error wraps a message over an underlying error, matching the error.go
// shape used throughout this module.
type Error struct {
	msg string
	err error
}

func (e Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}
func (e Error) Unwrap() error { return e.err }

// Write creates path containing os.Getpid() and a trailing newline.
func Write(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return Error{msg: "create pidfile", err: err}
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return Error{msg: "write pidfile", err: err}
	}
	return nil
}

// Remove deletes path, ignoring a not-exist error so teardown remains
// idempotent across multiple exit paths (normal return and a deferred
// signal-exit cleanup can both call it).
func Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return Error{msg: "remove pidfile", err: err}
	}
	return nil
}
