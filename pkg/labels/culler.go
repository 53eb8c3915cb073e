// Package labels decides which text labels are readable in a viewport.
package labels

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/grafana/flametrace/pkg/model"
)

const (
	// DefaultThresholdFraction is the minimum label weight, as a fraction of
	// the viewport width, for a label to be shown.
	DefaultThresholdFraction = 0.0075
	// DefaultVerticalCutoff is the weight below which labels are rendered
	// vertically.
	DefaultVerticalCutoff int64 = 50_000
)

// Culler tracks the visibility of registered labels for the current
// viewport. A label is visible when its interval overlaps the viewport and
// its weight is at least the viewport width times the threshold fraction.
//
// Culler is not safe for concurrent use.
type Culler struct {
	fraction       float64
	verticalCutoff int64

	labels  []model.Label
	visible []bool
	// byWeight holds label ids by descending weight, ties by id.
	byWeight []int
	// pending holds ids registered since byWeight was last merged.
	pending []int
	// shown holds the ids of the visible labels.
	shown []int

	viewportSet bool
	xMin, xMax  float64
}

func NewCuller(fraction float64, verticalCutoff int64) (*Culler, error) {
	if math.IsNaN(fraction) || math.IsInf(fraction, 0) || fraction < 0 {
		return nil, fmt.Errorf("invalid label threshold fraction %v", fraction)
	}
	return &Culler{fraction: fraction, verticalCutoff: verticalCutoff}, nil
}

func (c *Culler) compareIDs(a, b int) int {
	if d := cmp.Compare(c.labels[b].Weight, c.labels[a].Weight); d != 0 {
		return d
	}
	return cmp.Compare(a, b)
}

// Register adds a label and returns its id. If a viewport is set the label's
// visibility is evaluated right away.
func (c *Culler) Register(l model.Label) int {
	id := len(c.labels)
	c.labels = append(c.labels, l)
	c.visible = append(c.visible, false)
	c.pending = append(c.pending, id)
	if c.viewportSet && c.isVisible(l, c.required()) {
		c.visible[id] = true
		c.shown = append(c.shown, id)
	}
	return id
}

// RegisterAll adds labels in bulk and returns the id of the first one.
func (c *Culler) RegisterAll(labels []model.Label) int {
	first := len(c.labels)
	c.labels = slices.Grow(c.labels, len(labels))
	c.visible = slices.Grow(c.visible, len(labels))
	c.pending = slices.Grow(c.pending, len(labels))
	for _, l := range labels {
		c.Register(l)
	}
	return first
}

// index merges the pending ids into byWeight.
func (c *Culler) index() {
	if len(c.pending) == 0 {
		return
	}
	slices.SortFunc(c.pending, c.compareIDs)
	merged := make([]int, 0, len(c.byWeight)+len(c.pending))
	i, j := 0, 0
	for i < len(c.byWeight) && j < len(c.pending) {
		if c.compareIDs(c.byWeight[i], c.pending[j]) <= 0 {
			merged = append(merged, c.byWeight[i])
			i++
		} else {
			merged = append(merged, c.pending[j])
			j++
		}
	}
	merged = append(merged, c.byWeight[i:]...)
	merged = append(merged, c.pending[j:]...)
	c.byWeight = merged
	c.pending = c.pending[:0]
}

func (c *Culler) required() float64 {
	return (c.xMax - c.xMin) * c.fraction
}

func (c *Culler) isVisible(l model.Label, required float64) bool {
	return float64(l.Start) <= c.xMax && float64(l.End) >= c.xMin && float64(l.Weight) >= required
}

// SetViewport recomputes visibility for the viewport [xMin, xMax] and
// returns the ids of the labels whose visibility changed, in ascending
// order.
//
// Only labels heavy enough for the new viewport are interval-tested.
func (c *Culler) SetViewport(xMin, xMax float64) ([]int, error) {
	if math.IsNaN(xMin) || math.IsNaN(xMax) || xMax < xMin {
		return nil, fmt.Errorf("invalid viewport [%v, %v]", xMin, xMax)
	}
	c.xMin, c.xMax, c.viewportSet = xMin, xMax, true
	c.index()

	required := c.required()
	heavy := sort.Search(len(c.byWeight), func(i int) bool {
		return float64(c.labels[c.byWeight[i]].Weight) < required
	})

	next := make([]int, 0, len(c.shown))
	for _, id := range c.byWeight[:heavy] {
		if c.isVisible(c.labels[id], required) {
			next = append(next, id)
		}
	}

	wasVisible := make([]bool, len(next))
	for i, id := range next {
		wasVisible[i] = c.visible[id]
	}
	for _, id := range c.shown {
		c.visible[id] = false
	}
	for _, id := range next {
		c.visible[id] = true
	}

	var changed []int
	for _, id := range c.shown {
		if !c.visible[id] {
			changed = append(changed, id)
		}
	}
	for i, id := range next {
		if !wasVisible[i] {
			changed = append(changed, id)
		}
	}
	slices.Sort(changed)
	c.shown = next
	return changed, nil
}

// Viewport returns the current viewport and whether one was set.
func (c *Culler) Viewport() (xMin, xMax float64, ok bool) {
	return c.xMin, c.xMax, c.viewportSet
}

func (c *Culler) Len() int { return len(c.labels) }

func (c *Culler) Label(id int) model.Label { return c.labels[id] }

func (c *Culler) Visible(id int) bool { return c.visible[id] }

// Vertical is a presentation hint for labels too narrow to be read
// horizontally.
func (c *Culler) Vertical(id int) bool { return c.labels[id].Weight < c.verticalCutoff }

// VisibleIDs returns the ids of the visible labels in ascending order.
func (c *Culler) VisibleIDs() []int {
	ids := slices.Clone(c.shown)
	slices.Sort(ids)
	return ids
}
