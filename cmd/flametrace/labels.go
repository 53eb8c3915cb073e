package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"

	"github.com/grafana/flametrace/pkg/engine"
)

type labelsParams struct {
	*analysisParams
	viewport string
}

func addLabelsParams(cmd commander, defaults engine.Config) *labelsParams {
	p := &labelsParams{analysisParams: addAnalysisParams(cmd, defaults)}
	cmd.Flag("viewport", "Visible x range as <x_min>,<x_max> in nanoseconds. Defaults to the extent of every label.").
		Default("").Envar(envVar("viewport")).StringVar(&p.viewport)
	return p
}

func parseViewport(s string) (xMin, xMax float64, err error) {
	from, to, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("invalid viewport %q, expected <x_min>,<x_max>", s)
	}
	if xMin, err = strconv.ParseFloat(strings.TrimSpace(from), 64); err != nil {
		return 0, 0, fmt.Errorf("invalid viewport start %q: %w", from, err)
	}
	if xMax, err = strconv.ParseFloat(strings.TrimSpace(to), 64); err != nil {
		return 0, 0, fmt.Errorf("invalid viewport end %q: %w", to, err)
	}
	return xMin, xMax, nil
}

func listLabels(ctx context.Context, fs afero.Fs, params *labelsParams) error {
	a, err := params.analyze(ctx, fs)
	if err != nil {
		return err
	}
	culler, err := a.Labels()
	if err != nil {
		return err
	}

	var xMin, xMax float64
	if params.viewport != "" {
		if xMin, xMax, err = parseViewport(params.viewport); err != nil {
			return err
		}
	} else if culler.Len() > 0 {
		xMin, xMax = float64(culler.Label(0).Start), float64(culler.Label(0).End)
		for id := 1; id < culler.Len(); id++ {
			l := culler.Label(id)
			xMin, xMax = min(xMin, float64(l.Start)), max(xMax, float64(l.End))
		}
	}
	if _, err := culler.SetViewport(xMin, xMax); err != nil {
		return err
	}

	out := output(ctx)
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"ID", "Text", "Start", "End", "Weight", "Vertical"})
	for _, id := range culler.VisibleIDs() {
		l := culler.Label(id)
		table.Append([]string{
			strconv.Itoa(id),
			l.Text,
			strconv.FormatInt(l.Start, 10),
			strconv.FormatInt(l.End, 10),
			strconv.FormatInt(l.Weight, 10),
			strconv.FormatBool(culler.Vertical(id)),
		})
	}
	table.Render()
	vMin, vMax, _ := culler.Viewport()
	fmt.Fprintf(out, "%d of %d labels visible in [%g, %g]\n", len(culler.VisibleIDs()), culler.Len(), vMin, vMax)
	return nil
}
