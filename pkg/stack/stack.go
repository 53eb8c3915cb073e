// Package stack assigns call-stack depths to flat execution spans.
package stack

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"

	"github.com/grafana/flametrace/pkg/model"
	ftslices "github.com/grafana/flametrace/pkg/slices"
)

type Mode string

const (
	// ModeAuto uses supplied depths when every span carries one and derives
	// them otherwise.
	ModeAuto Mode = "auto"
	// ModeDerived computes depth from interval containment.
	ModeDerived Mode = "derived"
	// ModeSupplied rescales the depth recorded by the collector.
	ModeSupplied Mode = "supplied"
)

// SuppliedDepthDivisor compresses supplied integer depths for plotting.
const SuppliedDepthDivisor = 10

var Modes = []Mode{ModeAuto, ModeDerived, ModeSupplied}

func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeAuto, nil
	}
	m := Mode(s)
	if !lo.Contains(Modes, m) {
		return "", fmt.Errorf("unknown depth mode %q, expected one of %v", s, Modes)
	}
	return m, nil
}

func (m Mode) resolve(spans []model.Span) Mode {
	if m != ModeAuto && m != "" {
		return m
	}
	if len(spans) > 0 && lo.EveryBy(spans, func(s model.Span) bool { return s.DepthSupplied }) {
		return ModeSupplied
	}
	return ModeDerived
}

type Options struct {
	Mode Mode
	// Prune drops depth-0 spans that contain no other span. Derived mode only.
	Prune bool
	// RecomputeSelfTime derives InnerDuration from direct children instead of
	// trusting the recorded value.
	RecomputeSelfTime bool
}

type Result struct {
	// Spans is sorted by start time; a span always precedes the spans it
	// contains.
	Spans []model.Span
	Mode  Mode
	// Pruned is the number of isolated root spans that were dropped.
	Pruned int
	// Warnings holds one DegenerateSpanError per zero-duration span, or nil.
	Warnings error
}

// MaxDepth returns the largest depth of the result.
func (r *Result) MaxDepth() float64 {
	if len(r.Spans) == 0 {
		return 0
	}
	return lo.MaxBy(r.Spans, func(a, b model.Span) bool { return a.Depth > b.Depth }).Depth
}

// Assign computes the depth and self-time percentage of every span. The
// input is not modified.
func Assign(spans []model.Span, opts Options) (*Result, error) {
	mode := opts.Mode.resolve(spans)
	if mode != ModeDerived && mode != ModeSupplied {
		return nil, fmt.Errorf("unknown depth mode %q", opts.Mode)
	}

	out := make([]model.Span, len(spans))
	copy(out, spans)
	order := sweepOrder(out)

	var levels []int
	if mode == ModeDerived {
		levels = deriveLevels(out, order)
	} else {
		levels = lo.Map(out, func(s model.Span, _ int) int { return int(s.Depth) })
	}

	if opts.RecomputeSelfTime {
		computeInnerDurations(out, order, levels, mode == ModeSupplied)
	}

	var warnings *multierror.Error
	for i := range out {
		if mode == ModeDerived {
			out[i].Depth = float64(levels[i])
		} else {
			out[i].Depth = float64(levels[i]) / SuppliedDepthDivisor
		}
		if err := setSelfTime(&out[i]); err != nil {
			warnings = multierror.Append(warnings, err)
		}
	}

	var drop []bool
	if mode == ModeDerived && opts.Prune {
		isolated := isolatedRoots(out, order, levels)
		drop = lo.Map(order, func(i int, _ int) bool { return isolated[i] })
	}

	sorted := lo.Map(order, func(i int, _ int) model.Span { return out[i] })
	n := len(sorted)
	if drop != nil {
		sorted = ftslices.RemoveInPlace(sorted, func(_ model.Span, p int) bool { return drop[p] })
	}

	return &Result{
		Spans:    sorted,
		Mode:     mode,
		Pruned:   n - len(sorted),
		Warnings: warnings.ErrorOrNil(),
	}, nil
}

// PartitionByCPU groups spans by the CPU they ran on, skipping the excluded
// CPUs. CPU ids are returned in ascending order and spans keep their
// relative order.
func PartitionByCPU(spans []model.Span, exclude []int) ([]int, map[int][]model.Span) {
	byCPU := lo.GroupBy(
		lo.Reject(spans, func(s model.Span, _ int) bool { return lo.Contains(exclude, s.CPU) }),
		func(s model.Span) int { return s.CPU },
	)
	cpus := lo.Keys(byCPU)
	sort.Ints(cpus)
	return cpus, byCPU
}
