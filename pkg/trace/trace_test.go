package trace

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/grafana/flametrace/pkg/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const document = `{
  "execution_times": [
    {"function_name": "A", "start_time": 0, "end_time": 100, "duration": 100, "inner_duration": 40, "depth": 0, "cpuid": 1},
    {"function_name": "B", "start_time": 10, "end_time": 40, "duration": 30, "inner_duration": 30, "depth": 10, "cpuid": 1}
  ],
  "allocations": [
    {"alloc_type": "kmalloc", "alloc_direction": "Malloc", "size": 100, "timestamp": 0},
    {"alloc_type": "kmem_cache", "alloc_direction": "Free", "size": 50, "timestamp": 5}
  ],
  "throughput": [[1000000000, 1500, "Ingress", "eth0"], [1000000001, 64, "egress", "lo"]],
  "xdp_times": [[42, "xdp attach"]]
}`

func wantDocument() *model.Trace {
	return &model.Trace{
		Spans: []model.Span{
			{FunctionName: "A", StartTime: 0, EndTime: 100, Duration: 100, InnerDuration: 40, CPU: 1, DepthSupplied: true, Index: 0},
			{FunctionName: "B", StartTime: 10, EndTime: 40, Duration: 30, InnerDuration: 30, CPU: 1, Depth: 10, DepthSupplied: true, Index: 1},
		},
		Allocations: []model.AllocationEvent{
			{Category: model.CategoryKmalloc, Direction: model.DirectionAlloc, Size: 100, Timestamp: 0},
			{Category: model.CategoryKmemCache, Direction: model.DirectionFree, Size: 50, Timestamp: 5},
		},
		Throughput: []model.ThroughputSample{
			{Timestamp: 1_000_000_000, PacketSize: 1500, Direction: model.DirectionIngress, Interface: "eth0"},
			{Timestamp: 1_000_000_001, PacketSize: 64, Direction: model.DirectionEgress, Interface: "lo"},
		},
		Markers: []model.Marker{{Timestamp: 42, Text: "xdp attach"}},
	}
}

func TestDecode(t *testing.T) {
	got, err := Decode(strings.NewReader(document), Sections...)
	require.NoError(t, err)
	if diff := cmp.Diff(wantDocument(), got); diff != "" {
		t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_JSONLines(t *testing.T) {
	input := `{"execution_times": [{"function_name": "A", "start_time": 0, "end_time": 100}]}
{"xdp_times": [[1, "a"]]}
{"execution_times": [{"function_name": "B", "start_time": 10, "end_time": 20}], "xdp_times": [[2, "b"]]}
`
	got, err := Decode(strings.NewReader(input), SectionExecutionTimes)
	require.NoError(t, err)
	require.Len(t, got.Spans, 2)
	assert.Equal(t, "B", got.Spans[1].FunctionName)
	assert.Equal(t, 1, got.Spans[1].Index)
	assert.Equal(t, int64(10), got.Spans[1].Duration)
	assert.False(t, got.Spans[0].DepthSupplied)
	assert.Equal(t, []model.Marker{{Timestamp: 1, Text: "a"}, {Timestamp: 2, Text: "b"}}, got.Markers)
}

func TestDecode_Errors(t *testing.T) {
	for _, tc := range []struct {
		name    string
		input   string
		section string
		index   int
	}{
		{
			name:    "missing section",
			input:   `{"allocations": []}`,
			section: "execution_times",
			index:   -1,
		},
		{
			name:    "section is not an array",
			input:   `{"execution_times": {}}`,
			section: "execution_times",
			index:   -1,
		},
		{
			name:    "missing field",
			input:   `{"execution_times": [{"function_name": "A", "start_time": 0, "end_time": 1}, {"function_name": "B", "end_time": 1}]}`,
			section: "execution_times",
			index:   1,
		},
		{
			name:    "inconsistent duration",
			input:   `{"execution_times": [{"function_name": "A", "start_time": 0, "end_time": 10, "duration": 5}]}`,
			section: "execution_times",
			index:   0,
		},
		{
			name:    "short tuple",
			input:   `{"execution_times": [], "throughput": [[1, 2, "Ingress"]]}`,
			section: "throughput",
			index:   0,
		},
		{
			name:    "bad direction",
			input:   `{"execution_times": [], "throughput": [[1, 2, "Sideways", "eth0"]]}`,
			section: "throughput",
			index:   0,
		},
		{
			name:    "not json",
			input:   `{"execution_times": [`,
			section: "document",
			index:   0,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tc.input), SectionExecutionTimes)
			require.Error(t, err)
			var malformed *model.MalformedTraceError
			require.True(t, errors.As(err, &malformed), "got %v", err)
			assert.Equal(t, tc.section, malformed.Section)
			assert.Equal(t, tc.index, malformed.Index)
			assert.ErrorIs(t, err, model.ErrMalformedTrace)
		})
	}
}

func TestDecode_UnknownAllocationKind(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"allocations": [{"alloc_type": "vmalloc", "alloc_direction": "Alloc", "size": 1, "timestamp": 0}]}`))
	require.Error(t, err)
	var kindErr *model.UnknownAllocationKindError
	require.True(t, errors.As(err, &kindErr))
	assert.Equal(t, "vmalloc", kindErr.Value)
	assert.Contains(t, err.Error(), "allocations record 0")
}

func TestDecode_Empty(t *testing.T) {
	got, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got.Spans)
}

func gzipped(t *testing.T, data string) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zstded(t *testing.T, data string) []byte {
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll([]byte(data), nil)
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/traces/plain.json", []byte(document), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/traces/trace.json.gz", gzipped(t, document), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/traces/trace.json.zst", zstded(t, document), 0o644))

	for _, path := range []string{"/traces/plain.json", "/traces/trace.json.gz", "/traces/trace.json.zst"} {
		t.Run(path, func(t *testing.T) {
			got, err := Load(context.Background(), fs, path, Sections...)
			require.NoError(t, err)
			if diff := cmp.Diff(wantDocument(), got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	_, err := Load(context.Background(), fs, "/traces/missing.json")
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	write := func(name string, data []byte) {
		require.NoError(t, afero.WriteFile(fs, "/run/"+name, data, 0o644))
	}
	write("execution_times.json", []byte(`[
		{"function_name": "A", "start_time": 0, "end_time": 100, "duration": 100, "inner_duration": 40, "depth": 0, "cpuid": 1},
		{"function_name": "B", "start_time": 10, "end_time": 40, "duration": 30, "inner_duration": 30, "depth": 10, "cpuid": 1}
	]`))
	write("allocations.json.gz", gzipped(t, `[
		{"alloc_type": "kmalloc", "alloc_direction": "Malloc", "size": 100, "timestamp": 0},
		{"alloc_type": "kmem_cache", "alloc_direction": "Free", "size": 50, "timestamp": 5}
	]`))
	write("throughput.json.zst", zstded(t, `[[1000000000, 1500, "Ingress", "eth0"], [1000000001, 64, "egress", "lo"]]`))
	write("xdp_times.json", []byte(`[[42, "xdp attach"]]`))

	got, err := Load(context.Background(), fs, "/run", Sections...)
	require.NoError(t, err)
	if diff := cmp.Diff(wantDocument(), got); diff != "" {
		t.Errorf("LoadDir() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDir_MissingRequiredSection(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/run", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/run/xdp_times.json", []byte(`[]`), 0o644))

	_, err := LoadDir(context.Background(), fs, "/run", SectionExecutionTimes)
	var malformed *model.MalformedTraceError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, "execution_times", malformed.Section)

	got, err := LoadDir(context.Background(), fs, "/run", SectionMarkers)
	require.NoError(t, err)
	assert.Empty(t, got.Markers)
}

func TestLoadDir_MalformedSection(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/run/allocations.json", []byte(`[{"alloc_type": "kmalloc"}]`), 0o644))

	_, err := LoadDir(context.Background(), fs, "/run")
	assert.ErrorIs(t, err, model.ErrMalformedTrace)
}

func TestLoad_CanceledContext(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/t.json", []byte(document), 0o644))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Load(ctx, fs, "/t.json")
	assert.ErrorIs(t, err, context.Canceled)
}
