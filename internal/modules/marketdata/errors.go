package marketdata

import "fmt"

// SourceUnavailableError reports that a price source could not be fetched.
type SourceUnavailableError struct {
	Locator string
	Err     error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("price source %q unavailable: %v", e.Locator, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

// MalformedSourceError reports unparsable price source content.
// Line is 1-based; zero when the problem is not tied to a line.
type MalformedSourceError struct {
	Locator string
	Line    int
	Reason  string
	Err     error
}

func (e *MalformedSourceError) Error() string {
	msg := fmt.Sprintf("malformed price source %q", e.Locator)
	if e.Line > 0 {
		msg += fmt.Sprintf(" at line %d", e.Line)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedSourceError) Unwrap() error {
	return e.Err
}
