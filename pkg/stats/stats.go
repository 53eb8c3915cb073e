// Package stats summarises execution times per function.
package stats

import (
	"slices"
	"sort"

	"github.com/samber/lo"
	"golang.org/x/exp/constraints"

	"github.com/grafana/flametrace/pkg/model"
)

// DefaultCPUFrequency is the clock rate, in Hz, used to convert durations to
// cycles when none is configured.
const DefaultCPUFrequency = 2e9

type Number interface {
	constraints.Integer | constraints.Float
}

// Mean returns the arithmetic mean of values, or 0 for no values.
func Mean[T Number](values []T) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	return sum / float64(len(values))
}

// Median returns the median of values. For an even count it is the mean of
// the two middle values. values is not modified.
func Median[T Number](values []T) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	if n%2 == 1 {
		return float64(sorted[n/2])
	}
	return (float64(sorted[n/2-1]) + float64(sorted[n/2])) / 2
}

// Cycles converts a duration in nanoseconds to CPU cycles at frequency Hz.
func Cycles(ns, frequency float64) float64 {
	return ns * frequency / 1e9
}

type FunctionStats struct {
	Function     string  `json:"function" yaml:"function"`
	Count        int     `json:"count" yaml:"count"`
	Total        int64   `json:"total_ns" yaml:"total_ns"`
	Mean         float64 `json:"mean_ns" yaml:"mean_ns"`
	Median       float64 `json:"median_ns" yaml:"median_ns"`
	MeanCycles   float64 `json:"mean_cycles" yaml:"mean_cycles"`
	MedianCycles float64 `json:"median_cycles" yaml:"median_cycles"`
}

// ExecutionTimes groups spans by function name and returns one entry per
// function, sorted by name. A non-positive frequency selects
// DefaultCPUFrequency.
func ExecutionTimes(spans []model.Span, frequency float64) []FunctionStats {
	if frequency <= 0 {
		frequency = DefaultCPUFrequency
	}
	byName := lo.GroupBy(spans, func(s model.Span) string { return s.FunctionName })
	names := lo.Keys(byName)
	sort.Strings(names)

	out := make([]FunctionStats, 0, len(names))
	for _, name := range names {
		durations := lo.Map(byName[name], func(s model.Span, _ int) int64 { return s.Duration })
		fs := FunctionStats{
			Function: name,
			Count:    len(durations),
			Total:    lo.Sum(durations),
			Mean:     Mean(durations),
			Median:   Median(durations),
		}
		fs.MeanCycles = Cycles(fs.Mean, frequency)
		fs.MedianCycles = Cycles(fs.Median, frequency)
		out = append(out, fs)
	}
	return out
}
