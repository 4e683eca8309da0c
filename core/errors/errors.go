// Package errors provides the error taxonomy shared by the mirror pipeline,
// the extractors and the archive assembler.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrFetch indicates a network, transport or non-2xx failure
	ErrFetch = errors.New("fetch failed")
	// ErrPathGuard indicates a URL outside the book root
	ErrPathGuard = errors.New("outside book root")
	// ErrFatalManifest indicates the package manifest could not be fetched
	ErrFatalManifest = errors.New("package manifest unavailable")
	// ErrArchive indicates the EPUB archive could not be written
	ErrArchive = errors.New("archive failed")
)

// FetchError represents a failed fetch of a single asset.
type FetchError struct {
	URL        string // Asset URL
	StatusCode int    // HTTP status, 0 for transport failures
	Err        error  // Underlying error, if any
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s failed", e.URL)
}

func (e *FetchError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrFetch, e.Err}
	}
	return []error{ErrFetch}
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation (may be redacted)
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "write", "open")
	Path      string // File/resource path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ParseError represents a document that could not be mined for references.
// The pipeline degrades to "extract nothing" on a ParseError.
type ParseError struct {
	Format  string // Format being parsed (e.g., "opf", "css", "xhtml")
	Path    string // Asset URL or file path, if applicable
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to parse %s at %s: %s", e.Format, e.Path, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// PathGuardError reports a URL that would land outside the book directory.
type PathGuardError struct {
	URL    string
	Reason string
}

func (e *PathGuardError) Error() string {
	return fmt.Sprintf("skipping %s: %s", e.URL, e.Reason)
}

func (e *PathGuardError) Unwrap() error {
	return ErrPathGuard
}

// ManifestError aborts a book's run: without package.opf nothing else can be
// discovered.
type ManifestError struct {
	URL string
	Err error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("package manifest %s: %v", e.URL, e.Err)
}

func (e *ManifestError) Unwrap() []error {
	return []error{ErrFatalManifest, e.Err}
}

// ArchiveError represents a failure while writing the EPUB archive.
type ArchiveError struct {
	Op   string // "remove", "create", "add", "close"
	Path string
	Err  error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ArchiveError) Unwrap() []error {
	return []error{ErrArchive, e.Err}
}

// Helper functions for creating common errors

// NewFetch creates a FetchError
func NewFetch(url string, status int, err error) *FetchError {
	return &FetchError{
		URL:        url,
		StatusCode: status,
		Err:        err,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// NewParse creates a ParseError
func NewParse(format, path, message string, err error) *ParseError {
	return &ParseError{
		Format:  format,
		Path:    path,
		Message: message,
		Err:     err,
	}
}

// NewPathGuard creates a PathGuardError
func NewPathGuard(url, reason string) *PathGuardError {
	return &PathGuardError{URL: url, Reason: reason}
}

// NewArchive creates an ArchiveError
func NewArchive(op, path string, err error) *ArchiveError {
	return &ArchiveError{Op: op, Path: path, Err: err}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
