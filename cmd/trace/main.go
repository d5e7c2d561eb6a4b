package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/delaneyj/proxyparty/internal/ctxlog"
	"github.com/delaneyj/proxyparty/internal/scenario"
	"github.com/delaneyj/proxyparty/promadapter"
	"github.com/delaneyj/proxyparty/reactive"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	jsoniter "github.com/json-iterator/go"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
)

const (
	jsonKey      = "json"
	verboseKey   = "verbose"
	limitKey     = "recursion-limit"
	stepOnlyKey  = "step"
	phaseOnlyKey = "phase"
	metricsKey   = "metrics"
)

func main() {
	cmd := &cli.Command{
		Name:      "trace",
		Usage:     "Replay a scenario file and print every track, trigger and effect run",
		ArgsUsage: "<scenario.hcl>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  jsonKey,
				Usage: "Print events as JSON lines instead of a table",
			},
			&cli.BoolFlag{
				Name:    verboseKey,
				Aliases: []string{"v"},
				Usage:   "Log debug output to stderr",
			},
			&cli.IntFlag{
				Name:  limitKey,
				Usage: "Maximum runs of one scheduled effect per step",
				Value: 100,
			},
			&cli.StringFlag{
				Name:  stepOnlyKey,
				Usage: "Only print events of this step",
			},
			&cli.StringFlag{
				Name:  phaseOnlyKey,
				Usage: "Only print events of this phase (track, trigger, run)",
			},
			&cli.BoolFlag{
				Name:  metricsKey,
				Usage: "Print the Prometheus counters collected during the replay",
			},
		},
		Action: trace,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func trace(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("missing scenario file argument")
	}

	level := slog.LevelWarn
	if cmd.Bool(verboseKey) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	ctx = ctxlog.WithLogger(ctx, logger)

	start := time.Now()
	sc, err := scenario.Load(ctx, path)
	if err != nil {
		return err
	}
	registry := prometheus.NewRegistry()
	opts := []scenario.Option{scenario.WithRecursionLimit(int(cmd.Int(limitKey)))}
	if cmd.Bool(metricsKey) {
		collector := promadapter.New(promadapter.WithRegistry(registry))
		opts = append(opts, scenario.WithSystemOptions(reactive.WithMetrics(collector)))
	}
	result, runErr := scenario.Run(ctx, sc, opts...)
	if result == nil {
		return runErr
	}

	events := filter(result.Events, cmd.String(stepOnlyKey), cmd.String(phaseOnlyKey))
	if cmd.Bool(jsonKey) {
		if err := writeJSON(os.Stdout, events); err != nil {
			return err
		}
	} else {
		writeTable(os.Stdout, events)
		writeSummary(os.Stdout, result, time.Since(start))
	}
	if cmd.Bool(metricsKey) {
		if err := writeMetrics(os.Stdout, registry); err != nil {
			return err
		}
	}
	return runErr
}

func filter(events []scenario.Event, step, phase string) []scenario.Event {
	if step == "" && phase == "" {
		return events
	}
	out := make([]scenario.Event, 0, len(events))
	for _, e := range events {
		if step != "" && e.Step != step {
			continue
		}
		if phase != "" && e.Phase != phase {
			continue
		}
		out = append(out, e)
	}
	return out
}

func writeJSON(w io.Writer, events []scenario.Event) error {
	enc := jsoniter.ConfigFastest.NewEncoder(w)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

func writeTable(w io.Writer, events []scenario.Event) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"step", "phase", "effect", "target", "op", "key"})
	table.SetAutoMergeCells(false)
	for _, e := range events {
		table.Append([]string{e.Step, e.Phase, e.Effect, e.Target, e.Op, e.Key})
	}
	table.Render()
}

func writeSummary(w io.Writer, result *scenario.Trace, took time.Duration) {
	fmt.Fprintf(w, "%s steps, %s events (%s tracks, %s triggers, %s runs) in %v\n",
		humanize.Comma(int64(len(result.Steps))),
		humanize.Comma(int64(len(result.Events))),
		humanize.Comma(int64(result.Count(scenario.PhaseTrack))),
		humanize.Comma(int64(result.Count(scenario.PhaseTrigger))),
		humanize.Comma(int64(result.Count(scenario.PhaseRun))),
		took,
	)
	for _, name := range slices.Sorted(maps.Keys(result.Runs)) {
		fmt.Fprintf(w, "  %s ran %s\n", name, english.Plural(result.Runs[name], "time", "times"))
	}
}

func writeMetrics(w io.Writer, registry *prometheus.Registry) error {
	families, err := registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"metric", "labels", "value"})
	for _, family := range families {
		for _, m := range family.GetMetric() {
			var labels []string
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			table.Append([]string{
				family.GetName(),
				strings.Join(labels, ","),
				humanize.Comma(int64(m.GetCounter().GetValue())),
			})
		}
	}
	table.Render()
	return nil
}
