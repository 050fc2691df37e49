// Package common defines shared constants, sentinel errors and small helpers
// used across the import/export pipeline. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Storage-level errors.
	ErrorNotFound = errors.New("not found")

	// Input errors, rejected before any network or storage I/O.
	ErrNoURLs        = errors.New("no urls")
	ErrNoCredentials = errors.New("no credentials")
	ErrInvalidURL    = errors.New("invalid url")

	// Resolution errors, per-URL.
	ErrNoHandler      = errors.New("no protocol handler")
	ErrDuplicate      = errors.New("already imported")
	ErrMimeNotAllowed = errors.New("mime type not allowed")
	ErrNoFilesFound   = errors.New("no files found")

	// Transport errors.
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrTimeout          = errors.New("timeout")

	// Crypto errors.
	ErrDecrypt = errors.New("decrypt failed")

	// Back-end and export errors.
	ErrTargetExists     = errors.New("target already exists")
	ErrSourceMissing    = errors.New("source file missing")
	ErrURLRequired      = errors.New("target url required")
	ErrUnknownService   = errors.New("unknown service")
	ErrExportNotFound   = errors.New("export not found")
	ErrDeleteIncomplete = errors.New("target still present after delete")

	// Scheduling.
	ErrAlreadyRunning = errors.New("already running")
	ErrUnknownJob     = errors.New("unknown job")
	ErrBadInterval    = errors.New("invalid interval")
)
