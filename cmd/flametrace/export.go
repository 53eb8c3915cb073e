package main

import (
	"context"
	"math"

	"github.com/hashicorp/go-multierror"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/grafana/flametrace/pkg/engine"
	"github.com/grafana/flametrace/pkg/memory"
	"github.com/grafana/flametrace/pkg/model"
	"github.com/grafana/flametrace/pkg/stack"
	"github.com/grafana/flametrace/pkg/stats"
	"github.com/grafana/flametrace/pkg/throughput"
)

type exportParams struct {
	*analysisParams
	format string
}

func addExportParams(cmd commander, defaults engine.Config) *exportParams {
	p := &exportParams{analysisParams: addAnalysisParams(cmd, defaults)}
	cmd.Flag("format", "Output format: json or yaml.").Default("json").Envar(envVar("format")).EnumVar(&p.format, "json", "yaml")
	return p
}

type exportStack struct {
	Mode     stack.Mode   `json:"mode" yaml:"mode"`
	Pruned   int          `json:"pruned" yaml:"pruned"`
	MaxDepth float64      `json:"max_depth" yaml:"max_depth"`
	Warnings []string     `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Spans    []model.Span `json:"spans" yaml:"spans"`
}

type exportCPU struct {
	CPU   int          `json:"cpu" yaml:"cpu"`
	Stack *exportStack `json:"stack" yaml:"stack"`
}

// exportPoint is a throughput point whose undefined rate is encoded as null.
type exportPoint struct {
	Timestamp int64    `json:"timestamp" yaml:"timestamp"`
	Bytes     uint64   `json:"bytes" yaml:"bytes"`
	Mbps      *float64 `json:"mbps" yaml:"mbps"`
}

type exportSeries struct {
	Interface string                `json:"interface" yaml:"interface"`
	Direction model.PacketDirection `json:"direction" yaml:"direction"`
	Points    []exportPoint         `json:"points" yaml:"points"`
}

type exportThroughput struct {
	Series   []exportSeries `json:"series" yaml:"series"`
	Total    []exportPoint  `json:"total" yaml:"total"`
	Smoothed []exportPoint  `json:"smoothed" yaml:"smoothed"`
}

type exportDocument struct {
	Window     string                `json:"window,omitempty" yaml:"window,omitempty"`
	Rebased    bool                  `json:"rebased" yaml:"rebased"`
	Merged     *exportStack          `json:"merged,omitempty" yaml:"merged,omitempty"`
	PerCPU     []exportCPU           `json:"per_cpu,omitempty" yaml:"per_cpu,omitempty"`
	Functions  []stats.FunctionStats `json:"functions,omitempty" yaml:"functions,omitempty"`
	Memory     *memory.Timeline      `json:"memory,omitempty" yaml:"memory,omitempty"`
	Throughput *exportThroughput     `json:"throughput,omitempty" yaml:"throughput,omitempty"`
	Markers    []model.Marker        `json:"markers,omitempty" yaml:"markers,omitempty"`
}

func newExportStack(res *stack.Result) *exportStack {
	s := &exportStack{
		Mode:     res.Mode,
		Pruned:   res.Pruned,
		MaxDepth: res.MaxDepth(),
		Spans:    res.Spans,
	}
	if merr, ok := res.Warnings.(*multierror.Error); ok {
		for _, err := range merr.Errors {
			s.Warnings = append(s.Warnings, err.Error())
		}
	}
	return s
}

func newExportPoints(points []throughput.Point) []exportPoint {
	out := make([]exportPoint, len(points))
	for i, p := range points {
		out[i] = exportPoint{Timestamp: p.Timestamp, Bytes: p.Bytes}
		if !math.IsNaN(p.Mbps) {
			mbps := p.Mbps
			out[i].Mbps = &mbps
		}
	}
	return out
}

func newExportDocument(a *engine.Analysis) *exportDocument {
	doc := &exportDocument{
		Window:    a.Window.String(),
		Rebased:   a.Rebased,
		Functions: a.Functions,
		Memory:    a.Memory,
		Markers:   a.Markers,
	}
	if a.Merged != nil {
		doc.Merged = newExportStack(a.Merged)
	}
	for _, v := range a.PerCPU {
		doc.PerCPU = append(doc.PerCPU, exportCPU{CPU: v.CPU, Stack: newExportStack(v.Stack)})
	}
	if res := a.Throughput; res != nil {
		t := &exportThroughput{
			Total:    newExportPoints(res.Total),
			Smoothed: newExportPoints(res.Smoothed),
		}
		for _, s := range res.Series {
			t.Series = append(t.Series, exportSeries{
				Interface: s.Interface,
				Direction: s.Direction,
				Points:    newExportPoints(s.Points),
			})
		}
		doc.Throughput = t
	}
	return doc
}

func export(ctx context.Context, fs afero.Fs, params *exportParams) error {
	a, err := params.analyze(ctx, fs)
	if err != nil {
		return err
	}
	doc := newExportDocument(a)
	out := output(ctx)

	switch params.format {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return errors.Wrap(err, "encode yaml")
		}
		return enc.Close()
	default:
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(out)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(doc), "encode json")
	}
}
