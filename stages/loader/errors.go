package loader

import "errors"

var (
	// ErrUnsupportedType is returned for files the extractor cannot read.
	ErrUnsupportedType = errors.New("unsupported document type")

	// ErrNoContent is returned when a file yields no text.
	ErrNoContent = errors.New("no extractable content")

	// ErrMalformed is returned when a file cannot be parsed as its type.
	ErrMalformed = errors.New("malformed document")
)
