package model

import "fmt"

// Span is a single recorded function execution.
type Span struct {
	FunctionName  string `json:"function_name" yaml:"function_name"`
	StartTime     int64  `json:"start_time" yaml:"start_time"`
	EndTime       int64  `json:"end_time" yaml:"end_time"`
	Duration      int64  `json:"duration" yaml:"duration"`
	InnerDuration int64  `json:"inner_duration" yaml:"inner_duration"`
	CPU           int    `json:"cpuid" yaml:"cpuid"`

	// Depth is either derived from interval containment or, when
	// DepthSupplied is true, taken from the trace.
	Depth         float64 `json:"depth" yaml:"depth"`
	DepthSupplied bool    `json:"-" yaml:"-"`

	// SelfTimePerc is InnerDuration as a percentage of Duration. It is only
	// meaningful when SelfTimeValid is set.
	SelfTimePerc  float64 `json:"inner_duration_perc,omitempty" yaml:"inner_duration_perc,omitempty"`
	SelfTimeValid bool    `json:"-" yaml:"-"`

	// Index is the position of the span in the input section.
	Index int `json:"-" yaml:"-"`
}

func (s Span) Time() int64 { return s.StartTime }

func (s Span) Rebase(offset int64) Span {
	s.StartTime -= offset
	s.EndTime -= offset
	return s
}

// Contains reports whether o lies within s, bounds included.
func (s Span) Contains(o Span) bool {
	return s.StartTime <= o.StartTime && o.EndTime <= s.EndTime
}

// Validate checks the record invariants of a span.
func (s Span) Validate() error {
	switch {
	case s.StartTime > s.EndTime:
		return fmt.Errorf("start_time %d is after end_time %d", s.StartTime, s.EndTime)
	case s.Duration != s.EndTime-s.StartTime:
		return fmt.Errorf("duration %d does not match end_time - start_time = %d", s.Duration, s.EndTime-s.StartTime)
	case s.InnerDuration > s.Duration:
		return fmt.Errorf("inner_duration %d exceeds duration %d", s.InnerDuration, s.Duration)
	case s.InnerDuration < 0:
		return fmt.Errorf("negative inner_duration %d", s.InnerDuration)
	}
	return nil
}
