package model

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrMalformedTrace        = errors.New("malformed trace")
	ErrInvalidTimeWindow     = errors.New("invalid time window")
	ErrDegenerateSpan        = errors.New("degenerate span")
	ErrUnknownAllocationKind = errors.New("unknown allocation kind")
)

// MalformedTraceError reports a missing or undecodable section of a trace
// document. Index is the offending record within the section, or -1 when the
// section as a whole is at fault.
type MalformedTraceError struct {
	Section string
	Index   int
	Reason  string
}

func (e *MalformedTraceError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("malformed trace: section %q: %s", e.Section, e.Reason)
	}
	return fmt.Sprintf("malformed trace: section %q: record %d: %s", e.Section, e.Index, e.Reason)
}

func (e *MalformedTraceError) Is(target error) bool { return target == ErrMalformedTrace }

// InvalidTimeWindowError is returned for windows whose end precedes their
// start, and for time filter arguments that cannot be parsed.
type InvalidTimeWindowError struct {
	Start int64
	End   int64
	Input string
	Err   error
}

func (e *InvalidTimeWindowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid time window %q: %v", e.Input, e.Err)
	}
	return fmt.Sprintf("invalid time window: end %d is before start %d", e.End, e.Start)
}

func (e *InvalidTimeWindowError) Is(target error) bool { return target == ErrInvalidTimeWindow }
func (e *InvalidTimeWindowError) Unwrap() error { return e.Err }

// DegenerateSpanError marks a zero-duration span for which no self-time
// percentage exists. It is reported per span and never aborts an analysis.
type DegenerateSpanError struct {
	Function string
	Start    int64
	Index    int
}

func (e *DegenerateSpanError) Error() string {
	return fmt.Sprintf("degenerate span %q at %d (record %d): zero duration", e.Function, e.Start, e.Index)
}

func (e *DegenerateSpanError) Is(target error) bool { return target == ErrDegenerateSpan }

// UnknownAllocationKindError is returned for allocation records whose type or
// direction is outside the closed set the engine understands.
type UnknownAllocationKindError struct {
	Field string
	Value string
}

func (e *UnknownAllocationKindError) Error() string {
	return fmt.Sprintf("unknown allocation kind: %s=%q", e.Field, e.Value)
}

func (e *UnknownAllocationKindError) Is(target error) bool { return target == ErrUnknownAllocationKind }
