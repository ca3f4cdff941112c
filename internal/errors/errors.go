// Package errors provides the error kinds used across the engine.
//
// It re-exports github.com/cockroachdb/errors and adds the four sentinel kinds
// the HTTP layer maps to status codes. Wrap a sentinel with one of the helpers
// to attach a message while keeping errors.Is working:
//
//	return errors.NotFoundf("zone %s", id)
//	if errors.Is(err, errors.ErrNotFound) { ... }
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New   = crdb.New
	Newf  = crdb.Newf
	Wrap  = crdb.Wrap
	Wrapf = crdb.Wrapf
	Mark  = crdb.Mark
)

// Error inspection
var (
	Is    = crdb.Is
	IsAny = crdb.IsAny
	As    = crdb.As
)

var (
	// ErrNotFound indicates the entity, zone or alert is absent or not visible to the caller
	ErrNotFound = New("not found")

	// ErrForbidden indicates an ownership mismatch
	ErrForbidden = New("forbidden")

	// ErrInvalidInput indicates a malformed request (short ring, empty label, bad coordinates)
	ErrInvalidInput = New("invalid input")

	// ErrUpstreamUnavailable indicates the judgment service or push sender failed
	ErrUpstreamUnavailable = New("upstream unavailable")
)

// NotFoundf returns an error marked as ErrNotFound.
func NotFoundf(format string, args ...interface{}) error {
	return crdb.Mark(crdb.Newf(format, args...), ErrNotFound)
}

// Forbiddenf returns an error marked as ErrForbidden.
func Forbiddenf(format string, args ...interface{}) error {
	return crdb.Mark(crdb.Newf(format, args...), ErrForbidden)
}

// InvalidInputf returns an error marked as ErrInvalidInput.
func InvalidInputf(format string, args ...interface{}) error {
	return crdb.Mark(crdb.Newf(format, args...), ErrInvalidInput)
}

// Upstream wraps err and marks it as ErrUpstreamUnavailable.
func Upstream(err error, msg string) error {
	return crdb.Mark(crdb.Wrap(err, msg), ErrUpstreamUnavailable)
}
