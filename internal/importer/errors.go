package importer

import "errors"

var (
	// ErrSourceMissing indicates the download path no longer exists.
	ErrSourceMissing = errors.New("source path missing")

	// ErrNoAudioFile indicates no audio file was found in the download.
	ErrNoAudioFile = errors.New("no audio file found in download")

	// ErrInsufficientSpace indicates the library volume lacks headroom
	// for the file.
	ErrInsufficientSpace = errors.New("insufficient free space in library")

	// ErrDestinationExists indicates the library already has this file.
	ErrDestinationExists = errors.New("destination file already exists")

	// ErrChecksumMismatch indicates the copied file does not match the
	// source.
	ErrChecksumMismatch = errors.New("checksum mismatch after copy")

	// ErrCopyFailed indicates the file move failed.
	ErrCopyFailed = errors.New("failed to move file")

	// ErrPathTraversal indicates a destination outside the library root.
	ErrPathTraversal = errors.New("path traversal detected")
)
