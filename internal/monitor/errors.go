package monitor

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when a trigger carries the wrong secret.
var ErrUnauthorized = errors.New("unauthorized")

// FetchError wraps a failure to retrieve the page.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError wraps a failure to normalize or fingerprint the page.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse page: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// PersistError wraps a failure to read or write the stored state.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%s state: %v", e.Op, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
