// Package retry runs one unit of network work with bounded retries. Failures are sorted
// into transient, rate-limited and permanent, and the outcome comes back as a tagged
// result instead of falling out of a loop.
package retry

import (
	"context"
	"errors"
	"fmt"
)

type Class int

const (
	ClassTransient Class = iota
	ClassRateLimited
	ClassPermanent
	ClassCancelled
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassRateLimited:
		return "rate_limited"
	case ClassPermanent:
		return "permanent"
	case ClassCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Error tags an error with its retry class.
type Error struct {
	Class Class
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Transient(err error) error   { return &Error{Class: ClassTransient, Err: err} }
func RateLimited(err error) error { return &Error{Class: ClassRateLimited, Err: err} }
func Permanent(err error) error   { return &Error{Class: ClassPermanent, Err: err} }

// Classify returns the class carried by err. An untagged context.Canceled is cancellation;
// anything else untagged counts as transient, like a dropped connection.
func Classify(err error) Class {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Class
	}
	if errors.Is(err, context.Canceled) {
		return ClassCancelled
	}
	return ClassTransient
}
