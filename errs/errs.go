// errs/errs.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package errs defines the error taxonomy shared by every ingest and
// serving component: NotYetPublished, Transient, Permanent, and Fatal.
// Component-level errors wrap one of these sentinels with fmt.Errorf's
// %w verb so callers can dispatch on errors.Is rather than type-switching.
package errs

import "errors"

var (
	// ErrNotYetPublished means the requested object does not exist yet
	// upstream. The scheduler retries with backoff; never surfaced to
	// HTTP clients.
	ErrNotYetPublished = errors.New("object not yet published")

	// ErrTransient means a retryable failure occurred (network error,
	// 5xx response, timeout).
	ErrTransient = errors.New("transient failure")

	// ErrPermanent means the input could not be processed and retrying
	// will not help (malformed key, GRIB2 decode failure). The affected
	// scan is marked failed; other scans continue.
	ErrPermanent = errors.New("permanent failure")

	// ErrFatal means the process cannot continue operating (disk full,
	// unrecoverable storage directory I/O).
	ErrFatal = errors.New("fatal failure")
)

// NotFound reports whether err represents an absent object, distinct
// from a transient fetch failure.
func NotFound(err error) bool { return errors.Is(err, ErrNotYetPublished) }

// Transient reports whether err should be retried.
func Transient(err error) bool { return errors.Is(err, ErrTransient) }

// Permanent reports whether err is a non-retryable processing failure.
func Permanent(err error) bool { return errors.Is(err, ErrPermanent) }

// Fatal reports whether err should terminate the process.
func Fatal(err error) bool { return errors.Is(err, ErrFatal) }
