// Package throughput aggregates packet samples into per-second throughput
// series.
package throughput

import (
	"cmp"
	"math"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/samber/lo"

	"github.com/grafana/flametrace/pkg/model"
	ftslices "github.com/grafana/flametrace/pkg/slices"
	"github.com/grafana/flametrace/pkg/window"
)

// BucketWidth is the width of an aggregation bucket in nanoseconds.
const BucketWidth int64 = 1_000_000_000

var seps = []byte{'\xff'}

// Point is the traffic of one bucket. Mbps is NaN where a smoothed value is
// undefined.
type Point struct {
	Timestamp int64   `json:"timestamp" yaml:"timestamp"`
	Bytes     uint64  `json:"bytes" yaml:"bytes"`
	Mbps      float64 `json:"mbps" yaml:"mbps"`
}

// Series is the unsmoothed traffic of one interface in one direction.
type Series struct {
	Interface string                `json:"interface" yaml:"interface"`
	Direction model.PacketDirection `json:"direction" yaml:"direction"`
	Points    []Point               `json:"points" yaml:"points"`
}

type Result struct {
	Series []*Series `json:"series" yaml:"series"`
	// Total merges every interface and direction per bucket.
	Total []Point `json:"total" yaml:"total"`
	// Smoothed is the centered 3-bucket moving average of Total.
	Smoothed []Point `json:"smoothed" yaml:"smoothed"`
}

// Bucket returns the start of the bucket containing ts.
func Bucket(ts int64) int64 {
	q := ts / BucketWidth
	if ts%BucketWidth != 0 && ts < 0 {
		q--
	}
	return q * BucketWidth
}

// Mbps converts the bytes of one bucket to megabits per second.
func Mbps(bytes uint64) float64 {
	return float64(bytes) * 8 / 1e6
}

func seriesKey(iface string, dir model.PacketDirection) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(iface)
	_, _ = h.Write(seps)
	_, _ = h.WriteString(dir.String())
	return h.Sum64()
}

type seriesBuilder struct {
	iface   string
	dir     model.PacketDirection
	buckets map[int64]uint64
}

// Aggregate buckets samples per interface and direction.
//
// With a window, samples up to one bucket outside of it are kept so that
// the edge buckets are complete, and the earliest bucket, which only
// partially overlaps the expanded range, is dropped from every series.
// When rebasing, samples are shifted by the window start before bucketing
// so buckets stay aligned to whole seconds of the rebased axis.
func Aggregate(samples []model.ThroughputSample, opts window.Options) (*Result, error) {
	if err := opts.Window.Validate(); err != nil {
		return nil, err
	}
	samples, err := window.Filter(samples, window.Options{Window: opts.Window.Expand(BucketWidth)})
	if err != nil {
		return nil, err
	}
	offset := opts.Offset()

	builders := make(map[uint64]*seriesBuilder)
	totals := make(map[int64]uint64)
	for _, s := range samples {
		key := seriesKey(s.Interface, s.Direction)
		b, ok := builders[key]
		if !ok {
			b = &seriesBuilder{iface: s.Interface, dir: s.Direction, buckets: make(map[int64]uint64)}
			builders[key] = b
		}
		bucket := Bucket(s.Timestamp - offset)
		b.buckets[bucket] += s.PacketSize
		totals[bucket] += s.PacketSize
	}

	if opts.Window.Set && len(totals) > 0 {
		first := slices.Min(lo.Keys(totals))
		delete(totals, first)
		for _, b := range builders {
			delete(b.buckets, first)
		}
	}

	res := &Result{
		Series: make([]*Series, 0, len(builders)),
		Total:  points(totals),
	}
	for _, b := range builders {
		if len(b.buckets) == 0 {
			continue
		}
		res.Series = append(res.Series, &Series{
			Interface: b.iface,
			Direction: b.dir,
			Points:    points(b.buckets),
		})
	}
	slices.SortFunc(res.Series, func(a, b *Series) int {
		if c := cmp.Compare(a.Interface, b.Interface); c != 0 {
			return c
		}
		return cmp.Compare(a.Direction, b.Direction)
	})
	res.Smoothed = smooth(res.Total)
	return res, nil
}

func points(buckets map[int64]uint64) []Point {
	ts := lo.Keys(buckets)
	slices.Sort(ts)
	out := make([]Point, len(ts))
	for i, t := range ts {
		out[i] = Point{Timestamp: t, Bytes: buckets[t], Mbps: Mbps(buckets[t])}
	}
	return out
}

// smooth computes a centered moving average over three adjacent buckets.
// Averages are taken within runs of consecutive buckets only; the first
// and last bucket of each run have no value.
func smooth(total []Point) []Point {
	out := make([]Point, len(total))
	runs := ftslices.Runs(total, func(prev, next Point) bool {
		return next.Timestamp-prev.Timestamp == BucketWidth
	})
	for _, run := range runs {
		for i := run[0]; i < run[1]; i++ {
			out[i] = Point{Timestamp: total[i].Timestamp, Bytes: total[i].Bytes, Mbps: math.NaN()}
			if i == run[0] || i == run[1]-1 {
				continue
			}
			out[i].Mbps = (total[i-1].Mbps + total[i].Mbps + total[i+1].Mbps) / 3
		}
	}
	return out
}
