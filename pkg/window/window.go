// Package window clips timestamped record streams to a time window.
package window

import (
	"github.com/grafana/flametrace/pkg/model"
)

// Record is a timestamped record that can be shifted in time. Each record
// type reports its natural time field: start_time for spans, timestamp for
// everything else.
type Record[T any] interface {
	Time() int64
	Rebase(offset int64) T
}

// Options selects the window applied to a stream and whether kept records
// are rebased onto the window origin.
type Options struct {
	Window model.TimeWindow
	Rebase bool
}

// Offset is the amount subtracted from timestamps of kept records.
func (o Options) Offset() int64 {
	if o.Rebase && o.Window.Set {
		return o.Window.Start
	}
	return 0
}

// Filter returns the records whose time lies within the window, bounds
// included. An unset window returns records unchanged. The input slice is
// never modified.
func Filter[T Record[T]](records []T, opts Options) ([]T, error) {
	w := opts.Window
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if !w.Set {
		return records, nil
	}
	offset := opts.Offset()
	out := make([]T, 0, len(records))
	for _, r := range records {
		if !w.Contains(r.Time()) {
			continue
		}
		if offset != 0 {
			r = r.Rebase(offset)
		}
		out = append(out, r)
	}
	return out, nil
}
