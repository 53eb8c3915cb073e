// Package memory builds cumulative allocation timelines from kernel
// allocation and free events.
package memory

import (
	"cmp"
	"slices"

	"github.com/grafana/flametrace/pkg/model"
	"github.com/grafana/flametrace/pkg/window"
)

// Series is a step function of cumulative bytes. Bytes[i] holds from
// Timestamps[i] until the next point. The first point is the zero anchor.
type Series struct {
	Category   model.AllocCategory `json:"category" yaml:"category"`
	Timestamps []int64             `json:"timestamps" yaml:"timestamps"`
	Bytes      []int64             `json:"cumulative_bytes" yaml:"cumulative_bytes"`
}

func newSeries(c model.AllocCategory, anchor int64, capacity int) *Series {
	s := &Series{
		Category:   c,
		Timestamps: make([]int64, 1, capacity+1),
		Bytes:      make([]int64, 1, capacity+1),
	}
	s.Timestamps[0] = anchor
	return s
}

func (s *Series) add(ts, bytes int64) {
	s.Timestamps = append(s.Timestamps, ts)
	s.Bytes = append(s.Bytes, bytes)
}

// Len is the number of points, anchor included.
func (s *Series) Len() int { return len(s.Timestamps) }

// Last returns the final cumulative value of the series.
func (s *Series) Last() int64 { return s.Bytes[len(s.Bytes)-1] }

// Stats summarises the events of one category.
type Stats struct {
	TotalAllocated uint64 `json:"total_allocated" yaml:"total_allocated"`
	TotalFreed     uint64 `json:"total_freed" yaml:"total_freed"`
	Current        int64  `json:"current" yaml:"current"`
	Peak           int64  `json:"peak" yaml:"peak"`
	Allocs         int    `json:"allocs" yaml:"allocs"`
	Frees          int    `json:"frees" yaml:"frees"`
}

func (s *Stats) add(e model.AllocationEvent) {
	if e.Direction == model.DirectionAlloc {
		s.TotalAllocated += e.Size
		s.Current += int64(e.Size)
		s.Allocs++
	} else {
		s.TotalFreed += e.Size
		s.Current -= int64(e.Size)
		s.Frees++
	}
	s.Peak = max(s.Peak, s.Current)
}

// Timeline holds one series per allocation category plus the total.
type Timeline struct {
	Kmalloc   *Series `json:"kmalloc" yaml:"kmalloc"`
	KmemCache *Series `json:"kmem_cache" yaml:"kmem_cache"`
	Total     *Series `json:"total" yaml:"total"`

	Stats map[model.AllocCategory]Stats `json:"stats" yaml:"stats"`
}

// Series returns the series of category c, or nil for unknown categories.
func (t *Timeline) Series(c model.AllocCategory) *Series {
	switch c {
	case model.CategoryKmalloc:
		return t.Kmalloc
	case model.CategoryKmemCache:
		return t.KmemCache
	case model.CategoryTotal:
		return t.Total
	}
	return nil
}

// Build filters events to the window, orders them by timestamp and
// accumulates allocated minus freed bytes per category and in total.
//
// Every series starts with a zero point at one nanosecond before the window
// start, or at 0 without a window. The accumulators are signed: a capture
// that misses earlier allocations produces negative values.
func Build(events []model.AllocationEvent, opts window.Options) (*Timeline, error) {
	events, err := window.Filter(events, opts)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b model.AllocationEvent) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})

	var anchor int64
	if opts.Window.Set {
		anchor = opts.Window.Start - 1 - opts.Offset()
	}

	t := &Timeline{
		Kmalloc:   newSeries(model.CategoryKmalloc, anchor, 0),
		KmemCache: newSeries(model.CategoryKmemCache, anchor, 0),
		Total:     newSeries(model.CategoryTotal, anchor, len(sorted)),
		Stats:     make(map[model.AllocCategory]Stats, 3),
	}
	counters := make(map[model.AllocCategory]*Stats, 3)
	for _, c := range []model.AllocCategory{model.CategoryKmalloc, model.CategoryKmemCache, model.CategoryTotal} {
		counters[c] = &Stats{}
	}

	for _, e := range sorted {
		category, total := counters[e.Category], counters[model.CategoryTotal]
		category.add(e)
		total.add(e)
		t.Series(e.Category).add(e.Timestamp, category.Current)
		t.Total.add(e.Timestamp, total.Current)
	}
	for c, s := range counters {
		t.Stats[c] = *s
	}
	return t, nil
}
