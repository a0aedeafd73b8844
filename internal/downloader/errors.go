package downloader

import "fmt"

// InvalidRequestError represents missing or malformed download input.
type InvalidRequestError struct {
	Field  string // Name of the offending field
	Reason string // Human-readable explanation
	Err    error  // Underlying error, if any
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

func (e *InvalidRequestError) Unwrap() error {
	return e.Err
}

// DependencyMissingError is returned when a request needs an external tool
// that was not found at startup.
type DependencyMissingError struct {
	Dependency string // The missing tool, e.g. "ffmpeg"
	Purpose    string // What the tool was needed for
	Err        error  // Underlying error, if any
}

func (e *DependencyMissingError) Error() string {
	return fmt.Sprintf("%s is required for %s but is not available", e.Dependency, e.Purpose)
}

func (e *DependencyMissingError) Unwrap() error {
	return e.Err
}
