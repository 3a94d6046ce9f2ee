package main

import (
	"errors"
	"fmt"
)

const (
	exitOK          = 0
	exitRunFailure  = 1
	exitConfig      = 2
	exitDatabase    = 3
	exitInterrupted = 130
)

// exitError carries the process exit code up through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, format string, args ...interface{}) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitRunFailure
}
