package validation

import "errors"

var (
	ErrUnsupportedType   = errors.New("unsupported type")
	ErrFileTooLarge      = errors.New("file size exceeds limit")
	ErrEmptyFile         = errors.New("file is empty")
	ErrExtensionMismatch = errors.New("file extension does not match media type")
)
