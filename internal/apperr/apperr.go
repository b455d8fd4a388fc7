// Package apperr classifies server errors into the handful of kinds the
// rest of the runtime branches on, instead of matching error strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the six error classes the runtime's policy table reacts to.
type Kind int

const (
	Unknown Kind = iota
	Transport
	Protocol
	Overload
	Resource
	Persistence
	Logic
)

func (k Kind) String() string {
	switch k {
	case Transport:
		return "transport"
	case Protocol:
		return "protocol"
	case Overload:
		return "overload"
	case Resource:
		return "resource"
	case Persistence:
		return "persistence"
	case Logic:
		return "logic"
	default:
		return "unknown"
	}
}

type appError struct {
	kind Kind
	msg  string
	err  error
}

func (e *appError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *appError) Unwrap() error { return e.err }

// New creates a bare error tagged with a kind.
func New(kind Kind, msg string) error {
	return &appError{kind: kind, msg: msg}
}

// Wrap tags an existing error with a kind, preserving it for errors.Is/As.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &appError{kind: kind, msg: msg, err: err}
}

// KindOf extracts the Kind from an error produced by New or Wrap, walking
// the Unwrap chain. Returns Unknown if no *appError is found.
func KindOf(err error) Kind {
	var ae *appError
	if errors.As(err, &ae) {
		return ae.kind
	}
	return Unknown
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
