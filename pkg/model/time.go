package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// TimeWindow is an inclusive [Start, End] range of nanosecond timestamps.
// The zero value is an unset window which matches every timestamp.
type TimeWindow struct {
	Start int64
	End   int64
	Set   bool
}

// NewTimeWindow returns a window covering [start, end].
func NewTimeWindow(start, end int64) (TimeWindow, error) {
	w := TimeWindow{Start: start, End: end, Set: true}
	if err := w.Validate(); err != nil {
		return TimeWindow{}, err
	}
	return w, nil
}

func (w TimeWindow) Validate() error {
	if w.Set && w.End < w.Start {
		return &InvalidTimeWindowError{Start: w.Start, End: w.End}
	}
	return nil
}

// Contains reports whether t falls inside the window. An unset window
// contains every timestamp.
func (w TimeWindow) Contains(t int64) bool {
	return !w.Set || (w.Start <= t && t <= w.End)
}

// Expand widens a set window by d >= 0 on both sides, saturating at the
// bounds of int64.
func (w TimeWindow) Expand(d int64) TimeWindow {
	if !w.Set {
		return w
	}
	start, end := w.Start-d, w.End+d
	if start > w.Start {
		start = math.MinInt64
	}
	if end < w.End {
		end = math.MaxInt64
	}
	return TimeWindow{Start: start, End: end, Set: true}
}

func (w TimeWindow) String() string {
	if !w.Set {
		return ""
	}
	return fmt.Sprintf("%d-%d", w.Start, w.End)
}

// ParseTimeWindow parses a time filter argument of the form
// "<start_ns>-<end_ns>". An empty string yields an unset window.
func ParseTimeWindow(s string) (TimeWindow, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TimeWindow{}, nil
	}
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return TimeWindow{}, &InvalidTimeWindowError{Input: s, Err: errors.New("expected <start_ns>-<end_ns>")}
	}
	start, err := strconv.ParseInt(strings.TrimSpace(from), 10, 64)
	if err != nil {
		return TimeWindow{}, &InvalidTimeWindowError{Input: s, Err: errors.Wrap(err, "start")}
	}
	end, err := strconv.ParseInt(strings.TrimSpace(to), 10, 64)
	if err != nil {
		return TimeWindow{}, &InvalidTimeWindowError{Input: s, Err: errors.Wrap(err, "end")}
	}
	return NewTimeWindow(start, end)
}
