// Package trace decodes trace documents into model records.
package trace

import (
	"bytes"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/grafana/flametrace/pkg/model"
)

type Section string

const (
	SectionExecutionTimes Section = "execution_times"
	SectionAllocations    Section = "allocations"
	SectionThroughput     Section = "throughput"
	SectionMarkers        Section = "xdp_times"
)

var Sections = []Section{SectionExecutionTimes, SectionAllocations, SectionThroughput, SectionMarkers}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type rawDocument struct {
	ExecutionTimes jsoniter.RawMessage `json:"execution_times"`
	Allocations    jsoniter.RawMessage `json:"allocations"`
	Throughput     jsoniter.RawMessage `json:"throughput"`
	Markers        jsoniter.RawMessage `json:"xdp_times"`
}

func (d *rawDocument) section(s Section) jsoniter.RawMessage {
	switch s {
	case SectionExecutionTimes:
		return d.ExecutionTimes
	case SectionAllocations:
		return d.Allocations
	case SectionThroughput:
		return d.Throughput
	case SectionMarkers:
		return d.Markers
	}
	return nil
}

type rawSpan struct {
	FunctionName  *string  `json:"function_name"`
	StartTime     *int64   `json:"start_time"`
	EndTime       *int64   `json:"end_time"`
	Duration      *int64   `json:"duration"`
	InnerDuration *int64   `json:"inner_duration"`
	Depth         *float64 `json:"depth"`
	CPU           int      `json:"cpuid"`
}

type rawAllocation struct {
	AllocType      *string `json:"alloc_type"`
	AllocDirection *string `json:"alloc_direction"`
	Size           *uint64 `json:"size"`
	Timestamp      *int64  `json:"timestamp"`
}

// builder accumulates decoded sections. Sections may arrive in several
// chunks, as with JSON Lines input; records are appended in arrival order.
type builder struct {
	trace   model.Trace
	present map[Section]bool
}

func newBuilder() *builder {
	return &builder{present: make(map[Section]bool, len(Sections))}
}

// Decode reads a trace document from r. r holds either a single JSON object
// or JSON Lines, one object per line, each carrying any subset of the
// sections. Sections listed in required must be present.
func Decode(r io.Reader, required ...Section) (*model.Trace, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read trace")
	}
	var docs []*rawDocument
	if doc, err := parseDocument(data); err == nil {
		docs = append(docs, doc)
	} else {
		for n, line := range bytes.Split(data, []byte("\n")) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			doc, err := parseDocument(line)
			if err != nil {
				return nil, &model.MalformedTraceError{Section: "document", Index: n, Reason: err.Error()}
			}
			docs = append(docs, doc)
		}
	}

	b := newBuilder()
	for _, doc := range docs {
		for _, s := range Sections {
			if raw := doc.section(s); raw != nil {
				if err := b.add(s, raw); err != nil {
					return nil, err
				}
			}
		}
	}
	return b.finish(required)
}

// parseDocument decodes one JSON object. The decoder reports truncated input
// as a clean EOF, so syntax is checked up front.
func parseDocument(data []byte) (*rawDocument, error) {
	if !json.Valid(data) {
		return nil, errors.New("invalid JSON")
	}
	var doc rawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// decodeSection decodes a bare array holding the records of one section.
func decodeSection(raw []byte, s Section) (*builder, error) {
	if !json.Valid(raw) {
		return nil, &model.MalformedTraceError{Section: string(s), Index: -1, Reason: "invalid JSON"}
	}
	b := newBuilder()
	if err := b.add(s, raw); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *builder) finish(required []Section) (*model.Trace, error) {
	for _, s := range required {
		if !b.present[s] {
			return nil, &model.MalformedTraceError{Section: string(s), Index: -1, Reason: "missing section"}
		}
	}
	return &b.trace, nil
}

func (b *builder) add(s Section, raw jsoniter.RawMessage) error {
	var records []jsoniter.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return &model.MalformedTraceError{Section: string(s), Index: -1, Reason: "expected an array of records"}
	}
	b.present[s] = true
	for i, rec := range records {
		var err error
		switch s {
		case SectionExecutionTimes:
			err = b.addSpan(rec)
		case SectionAllocations:
			err = b.addAllocation(rec)
		case SectionThroughput:
			err = b.addThroughput(rec)
		case SectionMarkers:
			err = b.addMarker(rec)
		}
		if err != nil {
			var bad *reason
			if errors.As(err, &bad) {
				return &model.MalformedTraceError{Section: string(s), Index: i, Reason: bad.msg}
			}
			return errors.Wrapf(err, "%s record %d", s, i)
		}
	}
	return nil
}

// reason is a record level decoding failure, reported as a
// MalformedTraceError once the section and index are known.
type reason struct{ msg string }

func (r *reason) Error() string { return r.msg }

func malformed(format string, args ...any) error {
	return &reason{msg: fmt.Sprintf(format, args...)}
}

func (b *builder) addSpan(rec jsoniter.RawMessage) error {
	var r rawSpan
	if err := json.Unmarshal(rec, &r); err != nil {
		return malformed("%v", err)
	}
	switch {
	case r.FunctionName == nil:
		return malformed("missing function_name")
	case r.StartTime == nil:
		return malformed("missing start_time")
	case r.EndTime == nil:
		return malformed("missing end_time")
	}
	s := model.Span{
		FunctionName: *r.FunctionName,
		StartTime:    *r.StartTime,
		EndTime:      *r.EndTime,
		Duration:     *r.EndTime - *r.StartTime,
		CPU:          r.CPU,
		Index:        len(b.trace.Spans),
	}
	if r.Duration != nil {
		s.Duration = *r.Duration
	}
	if r.InnerDuration != nil {
		s.InnerDuration = *r.InnerDuration
	}
	if r.Depth != nil {
		s.Depth, s.DepthSupplied = *r.Depth, true
	}
	if err := s.Validate(); err != nil {
		return malformed("%v", err)
	}
	b.trace.Spans = append(b.trace.Spans, s)
	return nil
}

func (b *builder) addAllocation(rec jsoniter.RawMessage) error {
	var r rawAllocation
	if err := json.Unmarshal(rec, &r); err != nil {
		return malformed("%v", err)
	}
	switch {
	case r.AllocType == nil:
		return malformed("missing alloc_type")
	case r.AllocDirection == nil:
		return malformed("missing alloc_direction")
	case r.Size == nil:
		return malformed("missing size")
	case r.Timestamp == nil:
		return malformed("missing timestamp")
	}
	category, err := model.ParseAllocCategory(*r.AllocType)
	if err != nil {
		return err
	}
	direction, err := model.ParseAllocDirection(*r.AllocDirection)
	if err != nil {
		return err
	}
	b.trace.Allocations = append(b.trace.Allocations, model.AllocationEvent{
		Category:  category,
		Direction: direction,
		Size:      *r.Size,
		Timestamp: *r.Timestamp,
	})
	return nil
}

// tuple decodes a positional record into dst, one pointer per field.
func tuple(rec jsoniter.RawMessage, dst ...any) error {
	var fields []jsoniter.RawMessage
	if err := json.Unmarshal(rec, &fields); err != nil {
		return malformed("expected an array: %v", err)
	}
	if len(fields) != len(dst) {
		return malformed("expected %d fields, got %d", len(dst), len(fields))
	}
	for i, f := range fields {
		if err := json.Unmarshal(f, dst[i]); err != nil {
			return malformed("field %d: %v", i, err)
		}
	}
	return nil
}

func (b *builder) addThroughput(rec jsoniter.RawMessage) error {
	var (
		s         model.ThroughputSample
		direction string
	)
	if err := tuple(rec, &s.Timestamp, &s.PacketSize, &direction, &s.Interface); err != nil {
		return err
	}
	d, err := model.ParsePacketDirection(direction)
	if err != nil {
		return malformed("%v", err)
	}
	s.Direction = d
	b.trace.Throughput = append(b.trace.Throughput, s)
	return nil
}

func (b *builder) addMarker(rec jsoniter.RawMessage) error {
	var m model.Marker
	if err := tuple(rec, &m.Timestamp, &m.Text); err != nil {
		return err
	}
	b.trace.Markers = append(b.trace.Markers, m)
	return nil
}

// merge appends the records of o to b, section by section.
func (b *builder) merge(o *builder) {
	for s := range o.present {
		b.present[s] = true
	}
	offset := len(b.trace.Spans)
	for _, s := range o.trace.Spans {
		s.Index += offset
		b.trace.Spans = append(b.trace.Spans, s)
	}
	b.trace.Allocations = append(b.trace.Allocations, o.trace.Allocations...)
	b.trace.Throughput = append(b.trace.Throughput, o.trace.Throughput...)
	b.trace.Markers = append(b.trace.Markers, o.trace.Markers...)
}
