package common

import (
	"context"
	"errors"
	"net"
)

// reasons maps sentinel errors to the text shown in per-URL results.
var reasons = []struct {
	err    error
	reason string
}{
	{ErrNoURLs, "No URLs were given"},
	{ErrNoCredentials, "Credentials are required"},
	{ErrInvalidURL, "The URL is not valid"},
	{ErrNoHandler, "No protocol handler for this URL"},
	{ErrDuplicate, "The URL was already imported"},
	{ErrMimeNotAllowed, "The file type is not allowed"},
	{ErrNoFilesFound, "No files found at this URL"},
	{ErrUnexpectedStatus, "The server returned an error status"},
	{ErrTimeout, "The request timed out"},
	{ErrDecrypt, "Stored credentials are unusable"},
	{ErrTargetExists, "The target already exists"},
	{ErrSourceMissing, "The local file is missing"},
	{ErrURLRequired, "A target URL is required"},
	{ErrUnknownService, "Unknown service"},
	{ErrorNotFound, "Not found"},
}

// Reason returns a human-readable reason for err.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	if IsTimeout(err) {
		return "The request timed out"
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return err.Error()
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
