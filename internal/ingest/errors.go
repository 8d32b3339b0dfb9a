package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// ErrInvalidURLFormat is returned for pasted input that is neither a data
// URI nor an absolute http(s) URL.
var ErrInvalidURLFormat = errors.New("invalid URL format: paste an http(s) link or a data: URI")

// ValidationKind classifies why a file was rejected before upload.
type ValidationKind int

const (
	InvalidFileType ValidationKind = iota
	FileTooLarge
)

func (k ValidationKind) String() string {
	switch k {
	case InvalidFileType:
		return "invalid file type"
	case FileTooLarge:
		return "file too large"
	}
	return "invalid file"
}

// ValidationError is terminal for the current attempt and meant to be shown
// to the user as-is.
type ValidationError struct {
	Kind  ValidationKind
	MIME  string
	Size  int64
	Limit int64
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case InvalidFileType:
		if e.MIME == "" {
			return "Invalid file type: please select an image file"
		}
		return fmt.Sprintf("Invalid file type %s: please select an image file", e.MIME)
	case FileTooLarge:
		return fmt.Sprintf("File too large: %s exceeds the %s limit, please select a smaller image",
			humanize.IBytes(uint64(e.Size)), humanize.IBytes(uint64(e.Limit)))
	}
	return "Invalid file"
}

// UploadKind classifies upload failures.
type UploadKind int

const (
	// NetworkFailure means the request did not complete.
	NetworkFailure UploadKind = iota
	// TranscodeFailure means the backend could not process the image.
	TranscodeFailure
	// Rejected means the backend refused the request (auth, limits, input).
	Rejected
)

func (k UploadKind) String() string {
	switch k {
	case NetworkFailure:
		return "network failure"
	case TranscodeFailure:
		return "transcode failure"
	case Rejected:
		return "rejected"
	}
	return "upload failure"
}

// UploadError wraps a failed backend call. The record being edited keeps
// its previous URL.
type UploadError struct {
	Kind    UploadKind
	Backend string
	Err     error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s upload failed (%s): %v", e.Backend, e.Kind, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Suggestion is a corrective hint for the user.
func (e *UploadError) Suggestion() string {
	switch e.Kind {
	case NetworkFailure:
		return "Check your connection and try again."
	case TranscodeFailure:
		return "The image could not be processed. Try re-saving it as JPEG or PNG and upload again."
	case Rejected:
		msg := strings.ToLower(e.Error())
		if strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "authentication") {
			return "Check the admin token."
		}
		return "Check the file and backend settings, then try again."
	}
	return "Try again."
}
