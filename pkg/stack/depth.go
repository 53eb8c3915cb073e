package stack

import (
	"cmp"
	"math"
	"slices"

	"github.com/grafana/flametrace/pkg/model"
)

// sweepOrder returns span positions sorted by start ascending, end
// descending, then input position. Every span that contains another
// precedes it in this order, identical intervals included: the earlier
// record of two identical spans is treated as the outer one.
func sweepOrder(spans []model.Span) []int {
	order := make([]int, len(spans))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		if c := cmp.Compare(spans[a].StartTime, spans[b].StartTime); c != 0 {
			return c
		}
		if c := cmp.Compare(spans[b].EndTime, spans[a].EndTime); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return order
}

// deriveLevels computes the nesting level of every span: one more than the
// deepest span containing it, 0 for spans nothing contains.
//
// In sweep order the containers of a span are exactly the spans visited
// before it whose end is not smaller than its own end, so the level is a
// prefix maximum over end ranks.
func deriveLevels(spans []model.Span, order []int) []int {
	ends := make([]int64, len(spans))
	for i, s := range spans {
		ends[i] = s.EndTime
	}
	slices.Sort(ends)
	ends = slices.Compact(ends)

	// rank 1 is the latest end; every end >= e has a rank <= rank(e).
	rank := func(e int64) int {
		i, _ := slices.BinarySearch(ends, e)
		return len(ends) - i
	}

	tree := newMaxTree(len(ends))
	levels := make([]int, len(spans))
	for _, i := range order {
		r := rank(spans[i].EndTime)
		levels[i] = tree.query(r)
		tree.update(r, levels[i]+1)
	}
	return levels
}

// isolatedRoots marks the level-0 spans that contain no other span.
//
// Spans after a root in sweep order start no earlier than it does, so the
// root contains one of them iff the smallest end among them is within the
// root's end.
func isolatedRoots(spans []model.Span, order []int, levels []int) []bool {
	isolated := make([]bool, len(spans))
	minEnd := int64(math.MaxInt64)
	for p := len(order) - 1; p >= 0; p-- {
		i := order[p]
		if levels[i] == 0 && minEnd > spans[i].EndTime {
			isolated[i] = true
		}
		minEnd = min(minEnd, spans[i].EndTime)
	}
	return isolated
}

// maxTree is a Fenwick tree answering prefix maximum queries.
type maxTree []int

func newMaxTree(n int) maxTree { return make(maxTree, n+1) }

func (t maxTree) update(i, v int) {
	for ; i < len(t); i += i & -i {
		if t[i] < v {
			t[i] = v
		}
	}
}

// query returns the maximum over positions [1, i], or 0 if none was set.
func (t maxTree) query(i int) int {
	m := 0
	for ; i > 0; i -= i & -i {
		if t[i] > m {
			m = t[i]
		}
	}
	return m
}
