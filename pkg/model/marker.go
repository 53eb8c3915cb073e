package model

// Marker is a point-in-time reference event, drawn as a vertical line.
type Marker struct {
	Timestamp int64  `json:"timestamp" yaml:"timestamp"`
	Text      string `json:"text" yaml:"text"`
}

func (m Marker) Time() int64 { return m.Timestamp }

func (m Marker) Rebase(offset int64) Marker {
	m.Timestamp -= offset
	return m
}

// Label describes a text annotation anchored to a time interval. Weight is
// what the visibility threshold is compared against, usually the duration
// of the annotated span.
type Label struct {
	Text   string `json:"text" yaml:"text"`
	Start  int64  `json:"start" yaml:"start"`
	End    int64  `json:"end" yaml:"end"`
	Weight int64  `json:"weight" yaml:"weight"`
}

// SpanLabel returns the label of a span, weighted by its duration.
func SpanLabel(s Span) Label {
	return Label{Text: s.FunctionName, Start: s.StartTime, End: s.EndTime, Weight: s.Duration}
}

// Trace is a fully decoded trace: every record stream the engine consumes.
type Trace struct {
	Spans       []Span
	Allocations []AllocationEvent
	Throughput  []ThroughputSample
	Markers     []Marker
}
