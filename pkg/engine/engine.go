// Package engine runs the analysis pipeline over one loaded trace.
package engine

import (
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"

	flamecontext "github.com/grafana/flametrace/pkg/context"
	"github.com/grafana/flametrace/pkg/labels"
	"github.com/grafana/flametrace/pkg/memory"
	"github.com/grafana/flametrace/pkg/model"
	"github.com/grafana/flametrace/pkg/stack"
	"github.com/grafana/flametrace/pkg/stats"
	"github.com/grafana/flametrace/pkg/throughput"
	"github.com/grafana/flametrace/pkg/window"
)

const (
	// MarkerLabelWeight is the weight given to marker labels.
	MarkerLabelWeight int64 = 1_000_000
	// markerLabelHalfWidth is how far a marker label reaches on each side of
	// its timestamp.
	markerLabelHalfWidth int64 = 500_000
)

// Engine derives views from a single trace. An engine holds no state
// between analyses; each call to Analyze allocates fresh results.
type Engine struct {
	cfg     Config
	mode    stack.Mode
	trace   *model.Trace
	logger  log.Logger
	metrics *metrics
}

// New returns an engine for t. The logger and metrics registerer are taken
// from ctx.
func New(ctx context.Context, cfg Config, t *model.Trace) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid engine config")
	}
	mode, err := stack.ParseMode(cfg.DepthMode)
	if err != nil {
		return nil, err
	}
	if t == nil {
		t = &model.Trace{}
	}
	return &Engine{
		cfg:     cfg,
		mode:    mode,
		trace:   t,
		logger:  flamecontext.Logger(ctx),
		metrics: newMetrics(flamecontext.Registry(ctx)),
	}, nil
}

// CPUView is the stack layout of the spans that ran on one CPU.
type CPUView struct {
	CPU   int
	Stack *stack.Result
}

// Analysis holds the views derived for one time window. Views not enabled
// in the engine configuration are nil.
type Analysis struct {
	Window model.TimeWindow
	// Rebased is set when timestamps were shifted to start at the window
	// origin.
	Rebased bool

	Merged     *stack.Result
	PerCPU     []CPUView
	Functions  []stats.FunctionStats
	Memory     *memory.Timeline
	Throughput *throughput.Result
	Markers    []model.Marker

	cfg Config
}

// Analyze filters the trace to w and derives the configured views. An unset
// window analyzes the whole trace.
func (e *Engine) Analyze(w model.TimeWindow) (*Analysis, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	opts := window.Options{Window: w, Rebase: e.cfg.Rebase}
	a := &Analysis{
		Window:  w,
		Rebased: opts.Rebase && w.Set,
		cfg:     e.cfg,
	}

	views := e.cfg.Views
	if views.Merged || views.PerCPU {
		spans, err := window.Filter(e.trace.Spans, opts)
		if err != nil {
			return nil, err
		}
		a.Functions = stats.ExecutionTimes(spans, e.cfg.CPUFrequency)
		if views.Merged {
			if a.Merged, err = e.assign("merged", spans); err != nil {
				return nil, errors.Wrap(err, "merged stack")
			}
		}
		if views.PerCPU {
			cpus, byCPU := stack.PartitionByCPU(spans, e.cfg.ExcludeCPUs)
			a.PerCPU = make([]CPUView, 0, len(cpus))
			for _, cpu := range cpus {
				res, err := e.assign("per_cpu", byCPU[cpu])
				if err != nil {
					return nil, errors.Wrapf(err, "stack of cpu %d", cpu)
				}
				a.PerCPU = append(a.PerCPU, CPUView{CPU: cpu, Stack: res})
			}
		}
	}

	if views.Memory {
		timer := prometheus.NewTimer(e.metrics.duration.WithLabelValues("memory"))
		timeline, err := memory.Build(e.trace.Allocations, opts)
		timer.ObserveDuration()
		if err != nil {
			return nil, errors.Wrap(err, "memory timeline")
		}
		e.metrics.allocationEvents.Add(float64(timeline.Total.Len() - 1))
		a.Memory = timeline
	}

	if views.Throughput {
		timer := prometheus.NewTimer(e.metrics.duration.WithLabelValues("throughput"))
		res, err := throughput.Aggregate(e.trace.Throughput, opts)
		timer.ObserveDuration()
		if err != nil {
			return nil, errors.Wrap(err, "throughput")
		}
		e.metrics.throughputBuckets.Add(float64(len(res.Total)))
		a.Throughput = res
	}

	if views.Markers || e.cfg.MarkerLabels {
		markers, err := window.Filter(e.trace.Markers, opts)
		if err != nil {
			return nil, err
		}
		a.Markers = markers
	}

	level.Debug(e.logger).Log(
		"msg", "analysis complete",
		"window", w,
		"rebased", a.Rebased,
		"cpus", len(a.PerCPU),
		"markers", len(a.Markers),
	)
	return a, nil
}

func (e *Engine) assign(view string, spans []model.Span) (*stack.Result, error) {
	timer := prometheus.NewTimer(e.metrics.duration.WithLabelValues(view))
	defer timer.ObserveDuration()

	res, err := stack.Assign(spans, stack.Options{
		Mode:              e.mode,
		Prune:             e.cfg.Prune,
		RecomputeSelfTime: e.cfg.RecomputeSelfTime,
	})
	if err != nil {
		return nil, err
	}
	e.metrics.spans.Add(float64(len(res.Spans)))
	e.metrics.pruned.Add(float64(res.Pruned))

	var warnings *multierror.Error
	if errors.As(res.Warnings, &warnings) {
		e.metrics.degenerate.Add(float64(len(warnings.Errors)))
		for _, w := range warnings.Errors {
			level.Warn(e.logger).Log("msg", "span has no self-time percentage", "view", view, "err", w)
		}
	}
	level.Debug(e.logger).Log("msg", "stack assigned", "view", view, "mode", res.Mode, "spans", len(res.Spans), "pruned", res.Pruned)
	return res, nil
}

// Labels returns a culler holding the labels of the analysis: one per span
// of the merged layout, or of every per-CPU layout without one, and one per
// marker when marker labels are enabled.
func (a *Analysis) Labels() (*labels.Culler, error) {
	c, err := labels.NewCuller(a.cfg.LabelThreshold, a.cfg.VerticalCutoff)
	if err != nil {
		return nil, err
	}
	var ls []model.Label
	if a.cfg.StackLabels {
		switch {
		case a.Merged != nil:
			ls = append(ls, lo.Map(a.Merged.Spans, spanLabel)...)
		default:
			for _, v := range a.PerCPU {
				ls = append(ls, lo.Map(v.Stack.Spans, spanLabel)...)
			}
		}
	}
	if a.cfg.MarkerLabels {
		for _, m := range a.Markers {
			ls = append(ls, model.Label{
				Text:   m.Text,
				Start:  m.Timestamp - markerLabelHalfWidth,
				End:    m.Timestamp + markerLabelHalfWidth,
				Weight: MarkerLabelWeight,
			})
		}
	}
	c.RegisterAll(ls)
	return c, nil
}

func spanLabel(s model.Span, _ int) model.Label { return model.SpanLabel(s) }
