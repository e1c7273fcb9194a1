package upload

import (
	"errors"
	"fmt"

	"audience/internal/parser"
)

// Sentinels matched by the typed errors below via errors.Is.
var (
	ErrParse     = errors.New("upload: parse failed")
	ErrEmptyFile = errors.New("upload: empty file")
	ErrRowLimit  = errors.New("upload: row limit exceeded")
	ErrRead      = errors.New("upload: read failed")
)

// ParseError reports a payload that could not be decoded as a table.
type ParseError struct {
	Format parser.Format // empty when the format itself was not recognised
	Err    error
}

func (e *ParseError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("upload: parse: %v", e.Err)
	}
	return fmt.Sprintf("upload: parse %s: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error        { return e.Err }
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// EmptyFileError reports a payload without data rows.
type EmptyFileError struct {
	// HeadersOnly is set when a header row was found but nothing below it.
	HeadersOnly bool
}

func (e *EmptyFileError) Error() string {
	if e.HeadersOnly {
		return "upload: file has headers but no data rows"
	}
	return "upload: file is empty"
}

func (e *EmptyFileError) Is(target error) bool { return target == ErrEmptyFile }

// RowLimitExceededError reports more data rows than allowed.
type RowLimitExceededError struct {
	Observed int
	Limit    int
}

func (e *RowLimitExceededError) Error() string {
	return fmt.Sprintf("upload: %d rows exceeds limit of %d", e.Observed, e.Limit)
}

func (e *RowLimitExceededError) Is(target error) bool { return target == ErrRowLimit }

// ReadError reports a failure to obtain the payload bytes.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string        { return fmt.Sprintf("upload: read: %v", e.Err) }
func (e *ReadError) Unwrap() error        { return e.Err }
func (e *ReadError) Is(target error) bool { return target == ErrRead }

// UserMessage returns the message shown to the person who uploaded the file.
// It returns "" for a nil error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		empty *EmptyFileError
		limit *RowLimitExceededError
	)
	switch {
	case errors.As(err, &limit):
		return fmt.Sprintf("The CSV file contains %d rows, but the maximum allowed is %d.", limit.Observed, limit.Limit)
	case errors.As(err, &empty):
		if empty.HeadersOnly {
			return "The CSV file has headers but no data rows."
		}
		return "The CSV file is empty. Please upload a file with data."
	case errors.Is(err, ErrParse):
		return "Failed to parse the file. Please ensure it is a valid CSV or Excel file."
	case errors.Is(err, ErrRead):
		return "Failed to read the file. Please try again."
	default:
		return "An unexpected error occurred. Please try again."
	}
}
