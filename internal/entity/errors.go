package entity

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrActiveRunExists      = errors.New("brand already has an open catalog run")
	ErrInvalidTransition    = errors.New("run status does not allow this transition")
	ErrBrandFinished        = errors.New("catalog extraction is finished for this brand")
	ErrNoProductsDiscovered = errors.New("no candidate product urls discovered")
	ErrItemNotEligible      = errors.New("item is not eligible for processing")
	// ErrFatal marks collaborator failures that must block the run at once.
	ErrFatal = errors.New("fatal")
)

// ErrorKind classifies item failures for retry and circuit-breaker decisions.
type ErrorKind string

const (
	KindSoft      ErrorKind = "soft"
	KindTransient ErrorKind = "transient"
	KindSystemic  ErrorKind = "systemic"
	KindFatal     ErrorKind = "fatal"
)

// FetchError is returned by fetch collaborators that know what went wrong.
type FetchError struct {
	URL        string
	StatusCode int
	Kind       ErrorKind
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: http %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindForStatus maps an HTTP status code to the error kind of a failed fetch.
func KindForStatus(code int) ErrorKind {
	switch {
	case code == 404 || code == 410:
		return KindSoft
	case code == 408 || code == 429 || code >= 500:
		return KindTransient
	default:
		return KindSystemic
	}
}
