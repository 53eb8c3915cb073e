package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"

	"github.com/grafana/flametrace/pkg/engine"
	"github.com/grafana/flametrace/pkg/memory"
	"github.com/grafana/flametrace/pkg/model"
	"github.com/grafana/flametrace/pkg/stack"
	"github.com/grafana/flametrace/pkg/stats"
	"github.com/grafana/flametrace/pkg/throughput"
	"github.com/grafana/flametrace/pkg/util/cli"
)

const banner = ` _____ _                 _
|  ___| | __ _ _ __ ___ | |_ _ __ __ _  ___ ___
| |_  | |/ _' | '_ ' _ \| __| '__/ _' |/ __/ _ \
|  _| | | (_| | | | | | | |_| | | (_| | (_|  __/
|_|   |_|\__,_|_| |_| |_|\__|_|  \__,_|\___\___|`

type analyzeParams struct {
	*analysisParams
	tree bool
}

func addAnalyzeParams(cmd commander, defaults engine.Config) *analyzeParams {
	p := &analyzeParams{analysisParams: addAnalysisParams(cmd, defaults)}
	cmd.Flag("tree", "Print the call tree of each stack.").Default("false").Envar(envVar("tree")).BoolVar(&p.tree)
	return p
}

func analyze(ctx context.Context, fs afero.Fs, params *analyzeParams) error {
	a, err := params.analyze(ctx, fs)
	if err != nil {
		return err
	}

	out := output(ctx)
	if cli.IsTerminal(out) {
		if err := cli.GradientBanner(banner, out); err != nil {
			return err
		}
	}
	if a.Window.Set {
		fmt.Fprintf(out, "Time filter: %s (rebased: %t)\n", a.Window, a.Rebased)
	}

	if a.Merged != nil || len(a.PerCPU) > 0 {
		printStacks(out, a)
		if params.tree {
			printTrees(out, a)
		}
		printFunctions(out, a.Functions)
	}
	if a.Memory != nil {
		printMemory(out, a.Memory)
	}
	if a.Throughput != nil {
		printThroughput(out, a.Throughput)
	}
	if len(a.Markers) > 0 {
		printMarkers(out, a.Markers)
	}
	return nil
}

func degenerateCount(res *stack.Result) int {
	if merr, ok := res.Warnings.(*multierror.Error); ok {
		return merr.Len()
	}
	return 0
}

func printStacks(out io.Writer, a *engine.Analysis) {
	fmt.Fprintln(out, "\nCall stacks:")
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"View", "Mode", "Spans", "Pruned", "Max depth", "No self time"})
	row := func(view string, res *stack.Result) {
		table.Append([]string{
			view,
			string(res.Mode),
			humanize.Comma(int64(len(res.Spans))),
			humanize.Comma(int64(res.Pruned)),
			strconv.FormatFloat(res.MaxDepth(), 'f', -1, 64),
			strconv.Itoa(degenerateCount(res)),
		})
	}
	warnings := 0
	if a.Merged != nil {
		row("merged", a.Merged)
		warnings += degenerateCount(a.Merged)
	}
	for _, v := range a.PerCPU {
		row(fmt.Sprintf("cpu %d", v.CPU), v.Stack)
		warnings += degenerateCount(v.Stack)
	}
	table.Render()
	if warnings > 0 {
		fmt.Fprintln(out, color.YellowString("%d zero-duration spans have no self-time percentage", warnings))
	}
}

func printTrees(out io.Writer, a *engine.Analysis) {
	if a.Merged != nil {
		fmt.Fprintf(out, "\nCall tree (merged):\n%s", a.Merged.CallTree())
	}
	for _, v := range a.PerCPU {
		fmt.Fprintf(out, "\nCall tree (cpu %d):\n%s", v.CPU, v.Stack.CallTree())
	}
}

func formatNanos(ns float64) string {
	return time.Duration(ns).String()
}

func printFunctions(out io.Writer, fns []stats.FunctionStats) {
	fmt.Fprintln(out, "\nExecution times:")
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Function", "Count", "Total", "Mean", "Median", "Mean cycles", "Median cycles"})
	for _, f := range fns {
		table.Append([]string{
			f.Function,
			humanize.Comma(int64(f.Count)),
			formatNanos(float64(f.Total)),
			formatNanos(f.Mean),
			formatNanos(f.Median),
			humanize.SIWithDigits(f.MeanCycles, 2, ""),
			humanize.SIWithDigits(f.MedianCycles, 2, ""),
		})
	}
	table.Render()
}

func formatBytes(b int64) string {
	if b < 0 {
		return "-" + humanize.IBytes(uint64(-b))
	}
	return humanize.IBytes(uint64(b))
}

func printMemory(out io.Writer, t *memory.Timeline) {
	fmt.Fprintln(out, "\nMemory:")
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Category", "Allocs", "Frees", "Allocated", "Freed", "Current", "Peak"})
	for _, c := range []model.AllocCategory{model.CategoryKmalloc, model.CategoryKmemCache, model.CategoryTotal} {
		s := t.Stats[c]
		table.Append([]string{
			c.String(),
			humanize.Comma(int64(s.Allocs)),
			humanize.Comma(int64(s.Frees)),
			humanize.IBytes(s.TotalAllocated),
			humanize.IBytes(s.TotalFreed),
			formatBytes(s.Current),
			formatBytes(s.Peak),
		})
	}
	table.Render()
}

func printThroughput(out io.Writer, res *throughput.Result) {
	fmt.Fprintln(out, "\nThroughput:")
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Interface", "Direction", "Buckets", "Bytes", "Peak Mbps"})
	row := func(iface, dir string, points []throughput.Point) {
		var total uint64
		var peak float64
		for _, p := range points {
			total += p.Bytes
			peak = max(peak, p.Mbps)
		}
		table.Append([]string{
			iface,
			dir,
			strconv.Itoa(len(points)),
			humanize.Bytes(total),
			strconv.FormatFloat(peak, 'f', 3, 64),
		})
	}
	for _, s := range res.Series {
		row(s.Interface, s.Direction.String(), s.Points)
	}
	row("total", "", res.Total)
	table.Render()
}

func printMarkers(out io.Writer, markers []model.Marker) {
	fmt.Fprintln(out, "\nMarkers:")
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Timestamp", "Text"})
	for _, m := range markers {
		table.Append([]string{strconv.FormatInt(m.Timestamp, 10), m.Text})
	}
	table.Render()
}
