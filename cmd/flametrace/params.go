package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"gopkg.in/alecthomas/kingpin.v2"
	"gopkg.in/yaml.v3"

	flamecontext "github.com/grafana/flametrace/pkg/context"
	"github.com/grafana/flametrace/pkg/engine"
	"github.com/grafana/flametrace/pkg/model"
	"github.com/grafana/flametrace/pkg/stack"
	"github.com/grafana/flametrace/pkg/trace"
)

type commander interface {
	Flag(name, help string) *kingpin.FlagClause
	Arg(name, help string) *kingpin.ArgClause
}

type analysisParams struct {
	cfg        engine.Config
	path       string
	timeFilter string
}

func envVar(flag string) string {
	return envPrefix + strcase.ToScreamingSnake(flag)
}

func addAnalysisParams(cmd commander, defaults engine.Config) *analysisParams {
	p := &analysisParams{cfg: defaults}
	c := &p.cfg
	boolFlag := func(name, help string, def bool, target *bool) {
		cmd.Flag(name, help).Default(strconv.FormatBool(def)).Envar(envVar(name)).BoolVar(target)
	}

	cmd.Arg("trace", "Trace file (JSON or JSON Lines, optionally gzip or zstd compressed) or directory of per-section files.").Required().StringVar(&p.path)

	boolFlag("merged", "Lay out the spans of every CPU in one stack.", c.Views.Merged, &c.Views.Merged)
	boolFlag("per-cpu", "Lay out one stack per CPU.", c.Views.PerCPU, &c.Views.PerCPU)
	boolFlag("memory", "Build the cumulative memory timelines.", c.Views.Memory, &c.Views.Memory)
	boolFlag("throughput", "Aggregate network throughput per second.", c.Views.Throughput, &c.Views.Throughput)
	boolFlag("markers", "Include the marker events.", c.Views.Markers, &c.Views.Markers)
	boolFlag("marker-labels", "Add a label per marker event.", c.MarkerLabels, &c.MarkerLabels)
	boolFlag("stack-labels", "Add a label per span.", c.StackLabels, &c.StackLabels)
	boolFlag("rebase", "Shift timestamps so the time filter starts at zero.", c.Rebase, &c.Rebase)
	boolFlag("prune", "Drop root spans that contain no other span.", c.Prune, &c.Prune)
	boolFlag("recompute-self-time", "Derive self time from child spans instead of the recorded inner duration.", c.RecomputeSelfTime, &c.RecomputeSelfTime)

	// Repeatable flags append to their target; the configured values are
	// passed as flag defaults instead.
	excluded := lo.Map(c.ExcludeCPUs, func(v, _ int) string { return strconv.Itoa(v) })
	c.ExcludeCPUs = nil
	cmd.Flag("exclude-cpu", "CPU to leave out of the per-CPU stacks. May be repeated.").
		Default(excluded...).Envar(envVar("exclude-cpu")).IntsVar(&c.ExcludeCPUs)
	cmd.Flag("depth-mode", "How span depth is obtained: auto, derived or supplied.").
		Default(c.DepthMode).Envar(envVar("depth-mode")).EnumVar(&c.DepthMode, modeNames()...)
	cmd.Flag("vertical-cutoff", "Labels lighter than this many nanoseconds are drawn vertically.").
		Default(strconv.FormatInt(c.VerticalCutoff, 10)).Envar(envVar("vertical-cutoff")).Int64Var(&c.VerticalCutoff)
	cmd.Flag("label-threshold", "Minimum label weight as a fraction of the viewport width.").
		Default(strconv.FormatFloat(c.LabelThreshold, 'g', -1, 64)).Envar(envVar("label-threshold")).Float64Var(&c.LabelThreshold)
	cmd.Flag("cpu-frequency", "CPU frequency in Hz used to convert durations to cycles.").
		Default(strconv.FormatFloat(c.CPUFrequency, 'g', -1, 64)).Envar(envVar("cpu-frequency")).Float64Var(&c.CPUFrequency)
	cmd.Flag("time-filter", "Only analyze events in <start_ns>-<end_ns>.").
		Default("").Envar(envVar("time-filter")).StringVar(&p.timeFilter)
	return p
}

func modeNames() []string {
	return lo.Map(stack.Modes, func(m stack.Mode, _ int) string { return string(m) })
}

// requiredSections lists the trace sections the enabled views read.
func requiredSections(c engine.Config) []trace.Section {
	var sections []trace.Section
	if c.Views.Merged || c.Views.PerCPU {
		sections = append(sections, trace.SectionExecutionTimes)
	}
	if c.Views.Memory {
		sections = append(sections, trace.SectionAllocations)
	}
	if c.Views.Throughput {
		sections = append(sections, trace.SectionThroughput)
	}
	if c.Views.Markers || c.MarkerLabels {
		sections = append(sections, trace.SectionMarkers)
	}
	return sections
}

func (p *analysisParams) analyze(ctx context.Context, fs afero.Fs) (*engine.Analysis, error) {
	w, err := model.ParseTimeWindow(p.timeFilter)
	if err != nil {
		return nil, err
	}
	ctx = flamecontext.WithTrace(ctx, p.path)
	t, err := trace.Load(ctx, fs, p.path, requiredSections(p.cfg)...)
	if err != nil {
		return nil, err
	}
	e, err := engine.New(ctx, p.cfg, t)
	if err != nil {
		return nil, err
	}
	return e.Analyze(w)
}

// configFileFromArgs finds the config file before flags are declared, as
// its values become the flag defaults.
func configFileFromArgs(args []string) string {
	for i, a := range args {
		switch {
		case a == "--":
			return ""
		case a == "--config.file" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(a, "--config.file="):
			return strings.TrimPrefix(a, "--config.file=")
		}
	}
	return os.Getenv(envVar("config.file"))
}

func loadConfig(fs afero.Fs, path string) (engine.Config, error) {
	c := engine.DefaultConfig()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return c, errors.Wrap(err, "read config file")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return c, errors.Wrapf(err, "parse config file %s", path)
	}
	if err := c.Validate(); err != nil {
		return c, errors.Wrapf(err, "config file %s", path)
	}
	return c, nil
}
