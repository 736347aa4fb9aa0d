package archive

import (
	"errors"
	"fmt"
)

// ErrNoValidImages marks a chapter whose download stage produced nothing
// assemblable. Chapter-terminal.
var ErrNoValidImages = errors.New("no valid images for chapter")

// ErrEncodingFailed marks a failed document encode. Chapter-terminal.
var ErrEncodingFailed = errors.New("document encoding failed")

// StatusError reports a non-2xx response. Terminal for the specific resource;
// never retried.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

// InvalidImageError reports a payload that is not a usable image: wrong
// content type, undecodable bytes, or dimensions below the floor. Terminal.
type InvalidImageError struct {
	URL    string
	Reason string
}

func (e *InvalidImageError) Error() string {
	return fmt.Sprintf("invalid image %s: %s", e.URL, e.Reason)
}

// terminalFetchError reports whether err should not be retried.
func terminalFetchError(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return true
	}
	var invalidErr *InvalidImageError
	return errors.As(err, &invalidErr)
}
