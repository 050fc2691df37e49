// Package models defines the domain types shared by the import, export,
// queue and synchronization components.
package models

import "time"

// File is one externally sourced or exported media entry.
type File struct {
	// ID is assigned on creation and never changes.
	ID string
	// URL is the source URL; unique across all files.
	URL      string
	Title    string
	MimeType string
	Size     int64

	// Available is the last known reachability, re-derived against the
	// allowed mime types on every check.
	Available bool
	// SavedLocally is true when the content is cached in blob storage at LocalPath.
	SavedLocally bool
	LocalPath    string

	// TermID is the directory term that produced the file, if any.
	TermID string

	CheckedAt time.Time
	CreatedAt time.Time
}

// FileInfo is what a protocol handler resolves a URL into.
type FileInfo struct {
	Title      string
	URL        string
	MimeType   string
	Size       int64
	ModifiedAt time.Time

	// Staged is true when the handler already copied the bytes into blob
	// storage at TempPath.
	Staged   bool
	TempPath string
}
