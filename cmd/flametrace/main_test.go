package main

import (
	"bytes"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/flametrace/pkg/model"
)

const exampleTrace = `{
  "execution_times": [
    {"function_name": "A", "start_time": 0, "end_time": 100, "duration": 100, "inner_duration": 40, "cpuid": 0},
    {"function_name": "B", "start_time": 10, "end_time": 40, "duration": 30, "inner_duration": 30, "cpuid": 0},
    {"function_name": "C", "start_time": 50, "end_time": 90, "duration": 40, "inner_duration": 30, "cpuid": 1},
    {"function_name": "D", "start_time": 60, "end_time": 70, "duration": 10, "inner_duration": 10, "cpuid": 1}
  ],
  "allocations": [
    {"alloc_type": "kmalloc", "alloc_direction": "Alloc", "size": 100, "timestamp": 0},
    {"alloc_type": "kmalloc", "alloc_direction": "Alloc", "size": 50, "timestamp": 5},
    {"alloc_type": "kmalloc", "alloc_direction": "Free", "size": 100, "timestamp": 10}
  ],
  "throughput": [[0, 1500, "Ingress", "eth0"], [1000000000, 1500, "Ingress", "eth0"], [2000000000, 1500, "Ingress", "eth0"]],
  "xdp_times": [[55, "attach"]]
}`

func newTestFs(t *testing.T) afero.Fs {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/trace.json", []byte(exampleTrace), 0o644))
	return fs
}

func runCLI(fs afero.Fs, args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(fs, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

type exported struct {
	Merged struct {
		Spans []model.Span `json:"spans"`
	} `json:"merged"`
	Memory struct {
		Total struct {
			Timestamps []int64 `json:"timestamps"`
			Bytes      []int64 `json:"cumulative_bytes"`
		} `json:"total"`
	} `json:"memory"`
	Throughput struct {
		Smoothed []struct {
			Mbps *float64 `json:"mbps"`
		} `json:"smoothed"`
	} `json:"throughput"`
}

func TestExport_JSON(t *testing.T) {
	code, stdout, stderr := runCLI(newTestFs(t), "export", "/trace.json")
	require.Equal(t, 0, code, stderr)

	var doc exported
	require.NoError(t, jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal([]byte(stdout), &doc))
	depths := map[string]float64{}
	for _, s := range doc.Merged.Spans {
		depths[s.FunctionName] = s.Depth
	}
	assert.Equal(t, map[string]float64{"A": 0, "B": 1, "C": 1, "D": 2}, depths)
	assert.Equal(t, []int64{0, 0, 5, 10}, doc.Memory.Total.Timestamps)
	assert.Equal(t, []int64{0, 100, 150, 50}, doc.Memory.Total.Bytes)

	require.Len(t, doc.Throughput.Smoothed, 3)
	assert.Nil(t, doc.Throughput.Smoothed[0].Mbps)
	require.NotNil(t, doc.Throughput.Smoothed[1].Mbps)
	assert.InDelta(t, 0.012, *doc.Throughput.Smoothed[1].Mbps, 1e-9)
	assert.Nil(t, doc.Throughput.Smoothed[2].Mbps)
}

func TestExport_YAML(t *testing.T) {
	code, stdout, stderr := runCLI(newTestFs(t), "export", "--format=yaml", "--no-memory", "--no-throughput", "/trace.json")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "function_name: D")
	assert.NotContains(t, stdout, "cumulative_bytes")
}

func TestInvalidTimeFilter(t *testing.T) {
	code, stdout, stderr := runCLI(newTestFs(t), "analyze", "--time-filter=100-10", "/trace.json")
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "invalid time window")
}

func TestMissingSection(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/trace.json", []byte(`{"execution_times": []}`), 0o644))

	code, _, stderr := runCLI(fs, "analyze", "/trace.json")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, `section "allocations"`)

	code, _, stderr = runCLI(fs, "analyze", "--no-memory", "--no-throughput", "/trace.json")
	assert.Equal(t, 0, code, stderr)
}

func TestAnalyze_Tables(t *testing.T) {
	code, stdout, stderr := runCLI(newTestFs(t), "analyze", "--per-cpu", "--markers", "--metrics", "/trace.json")
	require.Equal(t, 0, code, stderr)
	for _, want := range []string{"Call stacks:", "cpu 1", "Execution times:", "Memory:", "kmem_cache", "Throughput:", "eth0", "attach"} {
		assert.Contains(t, stdout, want)
	}
	assert.Contains(t, stderr, `flametrace_spans_analyzed_total{trace="/trace.json"} 8`)
}

func TestConfigFile(t *testing.T) {
	fs := newTestFs(t)
	require.NoError(t, afero.WriteFile(fs, "/flametrace.yaml", []byte(`
depth_mode: derived
views:
  merged: true
  memory: false
  throughput: false
`), 0o644))

	code, stdout, stderr := runCLI(fs, "--config.file=/flametrace.yaml", "export", "/trace.json")
	require.Equal(t, 0, code, stderr)
	assert.NotContains(t, stdout, `"memory"`)

	// Flags take precedence over the file.
	code, stdout, stderr = runCLI(fs, "--config.file", "/flametrace.yaml", "export", "--memory", "/trace.json")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, `"memory"`)

	require.NoError(t, afero.WriteFile(fs, "/bad.yaml", []byte("depth_mode: sideways\n"), 0o644))
	code, _, stderr = runCLI(fs, "--config.file=/bad.yaml", "export", "/trace.json")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "sideways")
}

func TestLabels(t *testing.T) {
	code, stdout, stderr := runCLI(newTestFs(t), "labels", "--marker-labels", "--viewport=0,100", "/trace.json")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "attach")
	assert.Contains(t, stdout, "5 of 5 labels visible in [0, 100]")

	code, _, stderr = runCLI(newTestFs(t), "labels", "--viewport=100,0", "/trace.json")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid viewport")
}

func TestConfigFileFromArgs(t *testing.T) {
	assert.Equal(t, "a.yaml", configFileFromArgs([]string{"--config.file", "a.yaml", "export"}))
	assert.Equal(t, "b.yaml", configFileFromArgs([]string{"export", "--config.file=b.yaml"}))
	assert.Equal(t, "", configFileFromArgs([]string{"export", "--", "--config.file=c.yaml"}))
}

func TestAnalyze_Tree(t *testing.T) {
	code, stdout, stderr := runCLI(newTestFs(t), "analyze", "--tree", "--no-memory", "--no-throughput", "/trace.json")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Call tree (merged):")
	assert.Contains(t, stdout, "A: calls 1 self 40ns total 100ns")
	assert.Contains(t, stdout, "D: calls 1 self 10ns total 10ns")
}

func TestEnvVar(t *testing.T) {
	assert.Equal(t, "FLAMETRACE_CONFIG_FILE", envVar("config.file"))
	assert.Equal(t, "FLAMETRACE_RECOMPUTE_SELF_TIME", envVar("recompute-self-time"))

	t.Setenv("FLAMETRACE_DEPTH_MODE", "sideways")
	code, _, stderr := runCLI(newTestFs(t), "export", "/trace.json")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "sideways")
}

func TestAnalyze_VerboseLogsTrace(t *testing.T) {
	code, _, stderr := runCLI(newTestFs(t), "-v", "analyze", "--no-memory", "--no-throughput", "/trace.json")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "trace=/trace.json")
}
