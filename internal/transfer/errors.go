package transfer

import (
	"errors"
	"fmt"
)

// ErrLoginRequired is returned by Gate for a file above the large-file
// threshold when the user has no credential.
var ErrLoginRequired = errors.New("transfer: login required for large files")

// ErrEmptyContent means the source returned no bytes for an item whose
// declared size is non-zero.
var ErrEmptyContent = errors.New("transfer: source returned no content")

// IOError is a local filesystem failure while staging a file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("transfer: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// RemoteError is a failure talking to the source: network, timeout, or a
// provider error. Err keeps the provider's classification reachable via
// errors.Is.
type RemoteError struct {
	ItemID string
	Err    error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("transfer: downloading %s: %v", e.ItemID, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// TooLargeError means the file exceeds the destination's upload limit.
// Nothing was sent.
type TooLargeError struct {
	Size  int64
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("transfer: file size %s exceeds upload limit %s", FormatSize(e.Size), FormatSize(e.Limit))
}

// RejectedError means the destination refused or failed the upload.
type RejectedError struct {
	FileName string
	Err      error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("transfer: uploading %s: %v", e.FileName, e.Err)
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}
