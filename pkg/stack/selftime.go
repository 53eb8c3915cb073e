package stack

import (
	"github.com/grafana/flametrace/pkg/model"
)

// computeInnerDurations replaces InnerDuration with the span's duration
// minus the durations of its direct children, saturating at zero.
//
// Spans are visited in sweep order while a stack holds the chain of open
// enclosing spans. A span is a direct child of the innermost enclosing span
// one level above it. When sameCPU is set, one chain is kept per CPU so
// children are only credited to a parent on the same CPU.
func computeInnerDurations(spans []model.Span, order []int, levels []int, sameCPU bool) {
	children := make([]int64, len(spans))
	chains := make(map[int][]int)
	for _, j := range order {
		child := spans[j]
		cpu := 0
		if sameCPU {
			cpu = child.CPU
		}
		chain := chains[cpu]
		for len(chain) > 0 && !spans[chain[len(chain)-1]].Contains(child) {
			chain = chain[:len(chain)-1]
		}
		// Supplied levels need not follow containment; skip enclosing spans
		// that claim to be as deep as the child.
		for k := len(chain) - 1; k >= 0 && levels[chain[k]] >= levels[j]-1; k-- {
			if levels[chain[k]] == levels[j]-1 {
				children[chain[k]] += child.Duration
				break
			}
		}
		chains[cpu] = append(chain, j)
	}
	for i := range spans {
		spans[i].InnerDuration = max(spans[i].Duration-children[i], 0)
	}
}

// setSelfTime fills the self-time percentage of s.
func setSelfTime(s *model.Span) error {
	if s.Duration == 0 {
		s.SelfTimePerc = 0
		s.SelfTimeValid = false
		return &model.DegenerateSpanError{Function: s.FunctionName, Start: s.StartTime, Index: s.Index}
	}
	s.SelfTimePerc = float64(s.InnerDuration) * 100 / float64(s.Duration)
	s.SelfTimeValid = true
	return nil
}
