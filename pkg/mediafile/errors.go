package mediafile

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies a file processing failure.
type ErrorKind string

const (
	// ErrorKindUnsupported means the file is not a format any processor
	// handles, or its contents don't match its extension.
	ErrorKindUnsupported ErrorKind = "unsupported"
	// ErrorKindEmpty means the container opened fine but holds no pages.
	ErrorKindEmpty ErrorKind = "empty"
	// ErrorKindCorrupt means the container could not be parsed.
	ErrorKindCorrupt ErrorKind = "corrupt"
	// ErrorKindIO means the underlying read failed.
	ErrorKindIO ErrorKind = "io"
	// ErrorKindPageOutOfRange means a page index outside [1, pages] was
	// requested.
	ErrorKindPageOutOfRange ErrorKind = "page_out_of_range"
	// ErrorKindMetadataParse means embedded metadata exists but could not be
	// decoded.
	ErrorKindMetadataParse ErrorKind = "metadata_parse"
)

// FileError is a classified failure for a single media file. The kind drives
// how callers react: Unsupported files are skipped during scans, everything
// else marks the row ERROR with the message as the status reason.
type FileError struct {
	Kind ErrorKind
	Path string

	msg string
	err error
}

func (e *FileError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *FileError) Unwrap() error {
	return e.err
}

// NewFileError builds a FileError with a custom message.
func NewFileError(kind ErrorKind, path, msg string, err error) *FileError {
	return &FileError{Kind: kind, Path: path, msg: msg, err: err}
}

// Unsupported marks a file no processor can handle.
func Unsupported(path string) *FileError {
	return &FileError{Kind: ErrorKindUnsupported, Path: path, msg: "unsupported file type"}
}

// Empty marks a container with no pages.
func Empty(path string) *FileError {
	return &FileError{Kind: ErrorKindEmpty, Path: path, msg: "no pages found"}
}

// Corrupt marks a container that could not be parsed.
func Corrupt(path string, err error) *FileError {
	return &FileError{Kind: ErrorKindCorrupt, Path: path, msg: "corrupt file", err: err}
}

// IOError marks a failed read.
func IOError(path string, err error) *FileError {
	return &FileError{Kind: ErrorKindIO, Path: path, msg: "io error", err: err}
}

// PageOutOfRange marks a request for a page outside [1, total].
func PageOutOfRange(path string, page, total int) *FileError {
	return &FileError{
		Kind: ErrorKindPageOutOfRange,
		Path: path,
		msg:  fmt.Sprintf("page %d out of range [1, %d]", page, total),
	}
}

// MetadataParse marks embedded metadata that could not be decoded.
func MetadataParse(path string, err error) *FileError {
	return &FileError{Kind: ErrorKindMetadataParse, Path: path, msg: "metadata parse error", err: err}
}

// AsFileError returns the FileError in err's chain, if any.
func AsFileError(err error) (*FileError, bool) {
	var fe *FileError
	ok := errors.As(err, &fe)
	return fe, ok
}

// IsKind reports whether err has a FileError of the given kind in its chain.
func IsKind(err error, kind ErrorKind) bool {
	fe, ok := AsFileError(err)
	return ok && fe.Kind == kind
}
