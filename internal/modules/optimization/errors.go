package optimization

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoSymbols is returned when an operation receives an empty symbol set.
var ErrNoSymbols = errors.New("no symbols provided")

// UnknownInstrumentError reports symbols that are not columns of the price panel.
type UnknownInstrumentError struct {
	Symbols []string
}

func (e *UnknownInstrumentError) Error() string {
	return fmt.Sprintf("symbol(s) not in data source: %s", strings.Join(e.Symbols, ", "))
}

// IncompatibleWindowError reports a date window that cannot be applied to the panel index.
type IncompatibleWindowError struct {
	Start string
	End   string
	Err   error
}

func (e *IncompatibleWindowError) Error() string {
	return fmt.Sprintf("dates not compatible with data source: %q | %q: %v", e.Start, e.End, e.Err)
}

func (e *IncompatibleWindowError) Unwrap() error {
	return e.Err
}

// InsufficientDataError reports too few return observations for a statistic.
type InsufficientDataError struct {
	Rows     int
	Required int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: need at least %d return observations, got %d", e.Required, e.Rows)
}

// WeightMismatchError reports a weight map whose keys differ from the portfolio symbols.
type WeightMismatchError struct {
	Missing    []string
	Unexpected []string
}

func (e *WeightMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing weights for "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "weights for unknown symbols "+strings.Join(e.Unexpected, ", "))
	}
	return "weight mismatch: " + strings.Join(parts, "; ")
}
