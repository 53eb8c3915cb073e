package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/version"
	"github.com/spf13/afero"
	"gopkg.in/alecthomas/kingpin.v2"

	flamecontext "github.com/grafana/flametrace/pkg/context"
	"github.com/grafana/flametrace/pkg/engine"
	"github.com/grafana/flametrace/pkg/util"
)

const envPrefix = "FLAMETRACE_"

var cfg struct {
	verbose    bool
	configFile string
	metrics    bool
}

func main() {
	os.Exit(run(afero.NewOsFs(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(fs afero.Fs, args []string, stdout, stderr io.Writer) int {
	defaults := engine.DefaultConfig()
	if path := configFileFromArgs(args); path != "" {
		var err error
		if defaults, err = loadConfig(fs, path); err != nil {
			return checkError(stderr, err)
		}
	}

	app := kingpin.New("flametrace", "Analyze kernel performance traces: call stacks, memory and network throughput.").
		UsageWriter(stdout).
		ErrorWriter(stderr)
	app.Version(version.Print("flametrace"))
	app.HelpFlag.Short('h')
	app.Flag("verbose", "Enable verbose logging.").Short('v').Default("false").BoolVar(&cfg.verbose)
	app.Flag("config.file", "YAML file with analysis defaults. Flags take precedence.").Default("").Envar(envVar("config.file")).StringVar(&cfg.configFile)
	app.Flag("metrics", "Print engine metrics in the Prometheus text format to stderr when done.").Default("false").BoolVar(&cfg.metrics)

	analyzeCmd := app.Command("analyze", "Print a summary of the views derived from a trace.")
	analyzeParams := addAnalyzeParams(analyzeCmd, defaults)

	exportCmd := app.Command("export", "Write the views derived from a trace as JSON or YAML.")
	exportParams := addExportParams(exportCmd, defaults)

	labelsCmd := app.Command("labels", "List the labels readable in a viewport.")
	labelsParams := addLabelsParams(labelsCmd, defaults)

	parsedCmd, err := app.Parse(args)
	if err != nil {
		return checkError(stderr, err)
	}

	logger := util.NewLogger(stderr, cfg.verbose)
	reg := prometheus.NewRegistry()
	ctx := flamecontext.WithLogger(context.Background(), logger)
	ctx = flamecontext.WithRegistry(ctx, reg)
	ctx = withOutput(ctx, stdout)

	switch parsedCmd {
	case analyzeCmd.FullCommand():
		err = analyze(ctx, fs, analyzeParams)
	case exportCmd.FullCommand():
		err = export(ctx, fs, exportParams)
	case labelsCmd.FullCommand():
		err = listLabels(ctx, fs, labelsParams)
	default:
		level.Error(logger).Log("msg", "unknown command", "cmd", parsedCmd)
		return 1
	}
	if err == nil && cfg.metrics {
		err = writeMetrics(stderr, reg)
	}
	return checkError(stderr, err)
}

func checkError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(w, "%s%v\n", color.RedString("error: "), err)
	return 1
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

type contextKey uint8

const (
	contextKeyOutput contextKey = iota
)

func withOutput(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, contextKeyOutput, w)
}

func output(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(contextKeyOutput).(io.Writer); ok {
		return w
	}
	return os.Stdout
}
