// Command stockflow-cli compiles and runs stock-and-flow diagrams read from
// a JSON document. Grounded on the teacher's cmd/server/main.go: flag
// parsing per subcommand, config.Load() for environment defaults,
// logger.Setup(cfg.LogLevel) before any other work, and single top-level
// error handling with os.Exit(1) rather than panics.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"

	"github.com/smilemakc/stockflow/internal/infrastructure/config"
	"github.com/smilemakc/stockflow/internal/infrastructure/logger"
	"github.com/smilemakc/stockflow/internal/simulator"
	"github.com/smilemakc/stockflow/pkg/stockflow"
)

func main() {
	cfg := config.Load()
	logger.Setup(cfg.LogLevel)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: stockflow-cli <compile|run|inspect|batch> <file.json>")
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "compile":
		err = runCompile(cfg, os.Args[2:])
	case "run":
		err = runRun(cfg, os.Args[2:])
	case "inspect":
		err = runInspect(cfg, os.Args[2:])
	case "batch":
		err = runBatch(cfg, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		log.Error().Err(err).Msg("stockflow-cli failed")
		os.Exit(1)
	}
}

func loadDocument(path string) (*stockflow.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc stockflow.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &doc, nil
}

func compileDocument(path string, scaling stockflow.FlowScaling) (*stockflow.SimulationPlan, error) {
	doc, err := loadDocument(path)
	if err != nil {
		return nil, err
	}
	frame, err := doc.ToFrame()
	if err != nil {
		return nil, fmt.Errorf("build frame: %w", err)
	}
	plan, cerr := stockflow.Compile(frame, scaling)
	if cerr != nil {
		return nil, describeCompileError(cerr)
	}
	return plan, nil
}

func describeCompileError(cerr *stockflow.CompilerError) error {
	if cerr.Internal != nil {
		return cerr.Internal
	}
	var n int
	for range cerr.Issues.All() {
		n++
	}
	return fmt.Errorf("compilation failed with diagnostics on %d object(s)", n)
}

func runCompile(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	scaling := fs.String("scaling", "outflow_first", "outflow_first | inflow_first")
	_ = fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: stockflow-cli compile <file.json>")
	}

	p, err := compileDocument(fs.Arg(0), scalingFromFlag(*scaling))
	if err != nil {
		return err
	}
	log.Info().Int("objects", len(p.Objects)).Int("stocks", len(p.Stocks)).Int("flows", len(p.Flows)).Msg("compiled")
	return nil
}

func runRun(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	scaling := fs.String("scaling", "outflow_first", "outflow_first | inflow_first")
	steps := fs.Int("steps", 10, "number of steps to simulate")
	dt := fs.Float64("dt", cfg.TimeStep, "time delta per step")
	_ = fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: stockflow-cli run <file.json>")
	}

	p, err := compileDocument(fs.Arg(0), scalingFromFlag(*scaling))
	if err != nil {
		return err
	}

	sim := simulator.New(p)
	state, err := sim.Init(0, *dt, nil)
	if err != nil {
		return err
	}

	printState(p, state)
	for i := 0; i < *steps; i++ {
		state, err = sim.Step(state)
		if err != nil {
			return err
		}
		printState(p, state)
	}
	return nil
}

func printState(p *stockflow.SimulationPlan, s stockflow.SimulationState) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"step", "time", "name", "value"})
	for _, obj := range p.Objects {
		t.AppendRow(table.Row{s.Step, s.Time, obj.Name, s.Values[obj.VariableIndex]})
	}
	t.Render()
}

func runInspect(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	scaling := fs.String("scaling", "outflow_first", "outflow_first | inflow_first")
	_ = fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: stockflow-cli inspect <file.json>")
	}

	p, err := compileDocument(fs.Arg(0), scalingFromFlag(*scaling))
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"variable_index", "name", "content"})
	for i, sv := range p.StateVariables {
		t.AppendRow(table.Row{i, sv.Name, sv.Content})
	}
	t.Render()

	if len(p.ValueBindings) > 0 {
		vb := table.NewWriter()
		vb.SetOutputMirror(os.Stdout)
		vb.SetTitle("value bindings")
		vb.AppendHeader(table.Row{"control_id", "variable", "min", "max", "step"})
		for _, b := range p.ValueBindings {
			sv, _ := p.Variable(b.VariableIndex)
			vb.AppendRow(table.Row{b.ControlID, sv.Name, b.Min, b.Max, b.Step})
		}
		vb.Render()
	}

	if len(p.Charts) > 0 {
		ch := table.NewWriter()
		ch.SetOutputMirror(os.Stdout)
		ch.SetTitle("charts")
		ch.AppendHeader(table.Row{"chart_id", "series_variable", "color"})
		for _, c := range p.Charts {
			for _, s := range c.Series {
				sv, _ := p.Variable(s.VariableIndex)
				ch.AppendRow(table.Row{c.ChartID, sv.Name, s.Color})
			}
		}
		ch.Render()
	}

	return nil
}

func runBatch(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	scaling := fs.String("scaling", "outflow_first", "outflow_first | inflow_first")
	steps := fs.Int("steps", 10, "number of steps per run")
	dt := fs.Float64("dt", cfg.TimeStep, "time delta per step")
	runs := fs.Int("runs", 4, "number of runs in the batch")
	concurrency := fs.Int("concurrency", 0, "max concurrent runs (0 = unbounded)")
	_ = fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: stockflow-cli batch <file.json>")
	}

	p, err := compileDocument(fs.Arg(0), scalingFromFlag(*scaling))
	if err != nil {
		return err
	}

	var track []int
	for i := range p.Stocks {
		track = append(track, p.Stocks[i].VariableIndex)
	}

	configs := make([]simulator.RunConfig, *runs)
	for i := range configs {
		configs[i] = simulator.RunConfig{Label: fmt.Sprintf("run-%d", i), TimeDelta: *dt, Steps: *steps}
	}

	results, err := simulator.RunBatch(context.Background(), p, configs, track, *concurrency)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"run", "error", "final_time"})
	for _, r := range results {
		errStr := ""
		if r.Err != nil {
			errStr = r.Err.Error()
		}
		t.AppendRow(table.Row{r.Label, errStr, r.Final.Time})
	}
	t.Render()

	st := table.NewWriter()
	st.SetOutputMirror(os.Stdout)
	st.SetTitle("series statistics")
	st.AppendHeader(table.Row{"run", "variable", "mean", "stddev", "min", "max"})
	for _, r := range results {
		for _, idx := range track {
			s, ok := r.Series[idx]
			if !ok {
				continue
			}
			sv, _ := p.Variable(idx)
			st.AppendRow(table.Row{r.Label, sv.Name, s.Mean, s.StdDev, s.Min, s.Max})
		}
	}
	st.Render()
	return nil
}

func scalingFromFlag(raw string) stockflow.FlowScaling {
	if raw == "inflow_first" {
		return stockflow.InflowFirst
	}
	return stockflow.OutflowFirst
}
