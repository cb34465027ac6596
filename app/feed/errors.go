package feed

import (
	"errors"
	"fmt"
	"syscall"
)

type FetchErrorKind string

const (
	FetchNetwork  FetchErrorKind = "network"
	FetchTimeout  FetchErrorKind = "timeout"
	FetchStatus   FetchErrorKind = "status"
	FetchTooLarge FetchErrorKind = "too_large"
)

var ErrDocumentTooLarge = errors.New("document exceeds size limit")

// FetchError is returned by Fetcher for transport failures, timeouts and any
// status other than 200 or 304.
type FetchError struct {
	URL        string
	Kind       FetchErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchStatus {
		return fmt.Sprintf("failed to fetch %s: HTTP status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("failed to fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Silent reports whether the failure is likely transient: server errors,
// timeouts and dropped connections.
func (e *FetchError) Silent() bool {
	switch e.Kind {
	case FetchTimeout:
		return true
	case FetchStatus:
		return e.StatusCode >= 500
	default:
		return errors.Is(e.Err, syscall.ECONNRESET) || errors.Is(e.Err, syscall.ECONNABORTED)
	}
}

type ParseErrorKind string

const (
	ParseMalformed   ParseErrorKind = "malformed"
	ParseEncoding    ParseErrorKind = "encoding"
	ParseEOF         ParseErrorKind = "eof"
	ParseAttribute   ParseErrorKind = "attribute"
	ParseDate        ParseErrorKind = "date"
	ParseUnsupported ParseErrorKind = "unsupported"
)

type Dialect string

const (
	DialectRSS  Dialect = "rss"
	DialectAtom Dialect = "atom"
)

type ParseError struct {
	Kind    ParseErrorKind
	Dialect Dialect
	Err     error
}

func (e *ParseError) Error() string {
	if e.Dialect == "" {
		return fmt.Sprintf("failed to parse feed: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("failed to parse %s feed: %s: %v", e.Dialect, e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsSilent reports whether err is a fetch failure that should not be
// surfaced as an error.
func IsSilent(err error) bool {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Silent()
	}
	return false
}
