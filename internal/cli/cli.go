// Package cli implements the command-line goal surface: translating
// user-typed goal names and address strings into an ExecutionRequest,
// driving it through the scheduler, and reporting root states.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/polyweave/polyweave/internal/fieldwalk"
	"github.com/polyweave/polyweave/internal/fsview"
	"github.com/polyweave/polyweave/internal/goal"
	"github.com/polyweave/polyweave/internal/node"
	"github.com/polyweave/polyweave/internal/pgraph"
	"github.com/polyweave/polyweave/internal/plugin"
	"github.com/polyweave/polyweave/internal/registry"
	"github.com/polyweave/polyweave/internal/scheduler"
	"github.com/polyweave/polyweave/internal/stepctx"
	"github.com/polyweave/polyweave/internal/subject"
	"github.com/polyweave/polyweave/internal/telemetry"
	"github.com/polyweave/polyweave/internal/visualize"
)

// Execute parses args and runs the resulting command; it is the single
// entry point main calls.
func Execute(args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.Execute()
}

type rootFlags struct {
	manifestDir  string
	fsRoot       string
	concurrency  int
	verboseHooks bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "polyweave",
		Short: "A demand-driven, memoizing build orchestrator",
	}
	cmd.PersistentFlags().StringVar(&flags.manifestDir, "tasks", "./tasks", "directory of task manifest JSON files")
	cmd.PersistentFlags().StringVar(&flags.fsRoot, "root", ".", "filesystem root the engine resolves subjects against")
	cmd.PersistentFlags().IntVar(&flags.concurrency, "concurrency", 8, "max concurrent node steps per batch")
	cmd.PersistentFlags().BoolVar(&flags.verboseHooks, "verbose-hooks", false, "log scheduler batch/step boundaries through the plugin hook engine")

	cmd.AddCommand(newBuildCmd(flags))
	cmd.AddCommand(newGraphCmd(flags))
	cmd.AddCommand(newListGoalsCmd(flags))
	return cmd
}

// parseAddress parses a "path:name" or bare "path" address string.
func parseAddress(s string) subject.Address {
	if i := strings.LastIndex(s, ":"); i >= 0 {
		return subject.Address{Path: s[:i], Name: s[i+1:]}
	}
	return subject.Address{Path: s}
}

// defaultGoalMap is the built-in {goal_name -> product_type} binding; a
// real deployment would load this from configuration alongside the task
// manifest, but the engine's core is agnostic to where it comes from.
func defaultGoalMap() goal.GoalMap {
	return goal.GoalMap{
		"compile": subject.Product("Compiled"),
		"test":    subject.Product("TestResult"),
		"lint":    subject.Product("LintResult"),
	}
}

func buildEngine(flags *rootFlags) (*pgraph.Graph, *stepctx.Context, error) {
	manifest, err := registry.LoadDir(flags.manifestDir)
	if err != nil {
		return nil, nil, fmt.Errorf("loading task manifest: %w", err)
	}

	// Bindings must be supplied by the host in real deployments (each
	// task_id maps to a compiled-in callable); an empty binding set still
	// lets goal/graph commands run against an empty task registry.
	bindings := map[string]node.Task{}
	tasks, err := registry.Build(manifest, bindings)
	if err != nil {
		return nil, nil, fmt.Errorf("binding task registry: %w", err)
	}

	fs := fsview.New(flags.fsRoot)
	sc := &stepctx.Context{
		Tasks: tasks,
		Natives: node.NewFilesystemNatives(
			[2]string{"address", "DirEntries"},
			[2]string{"address", "FileContent"},
			[2]string{"pathglobs", "files"},
			[2]string{"pathglobs", "dirs"},
		),
		FS:        fs,
		Projector: fieldwalk.Projector{},
		Fields:    fieldwalk.Extractor{},
	}
	return pgraph.New(), sc, nil
}

func newBuildCmd(flags *rootFlags) *cobra.Command {
	var goals []string
	var addrs []string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Resolve one or more goals for the given addresses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), flags, goals, addrs)
		},
	}
	cmd.Flags().StringSliceVar(&goals, "goal", nil, "goal name (repeatable)")
	cmd.Flags().StringSliceVar(&addrs, "address", nil, "target address path[:name] (repeatable)")
	return cmd
}

func runBuild(ctx context.Context, flags *rootFlags, goals, addrStrs []string) error {
	log := telemetry.NewLogger(telemetry.DefaultLogConfig())
	metrics := telemetry.NewMetrics()

	graph, sc, err := buildEngine(flags)
	if err != nil {
		return err
	}

	subjects := make([]subject.Subject, len(addrStrs))
	for i, a := range addrStrs {
		subjects[i] = parseAddress(a)
	}

	req, err := goal.BuildRequest(goals, subjects, defaultGoalMap())
	if err != nil {
		return err
	}

	hooks, err := buildHooks(flags, log, metrics)
	if err != nil {
		return err
	}

	sched := scheduler.New(graph, sc, hooks)
	worker := instrumentedWorker(scheduler.DefaultWorker(sc), metrics)
	if err := sched.Run(ctx, req, worker, flags.concurrency); err != nil {
		return err
	}

	if n := graph.CyclicRejectionCount(); n > 0 {
		metrics.ObserveCycleRejected(ctx, n)
	}

	entries := sched.RootEntries(req)
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// The engine itself never treats a Noop root as an error; whether an
	// unproduced goal fails the build is this command's policy. build
	// fails on both Throw and Noop roots so a typo'd goal or a broken
	// task can't exit 0.
	var thrown, noops int
	for _, k := range keys {
		log.Info("root resolved", "node", k, "state", fmt.Sprint(entries[k]))
		switch entries[k].(type) {
		case node.Throw:
			thrown++
		case node.Noop:
			noops++
		}
	}
	if thrown > 0 || noops > 0 {
		return fmt.Errorf("%d of %d roots did not resolve: %d failed, %d had no matching production",
			thrown+noops, len(entries), thrown, noops)
	}
	return nil
}

// buildHooks composes the scheduler's lifecycle hooks: metrics always
// record batch counts, and when verbose-hooks is enabled a logging plugin
// runs through the same HookEngine a host would register real plugins
// with.
func buildHooks(flags *rootFlags, log *slog.Logger, metrics *telemetry.Metrics) (plugin.LifecycleHooks, error) {
	metricsHooks := telemetry.MetricsHooks{Metrics: metrics}
	if !flags.verboseHooks {
		return metricsHooks, nil
	}
	eng, err := plugin.NewHookEngine([]plugin.RuntimePlugin{plugin.NewLoggingPlugin(log)}, log)
	if err != nil {
		return nil, fmt.Errorf("building plugin hook engine: %w", err)
	}
	return plugin.Combine(metricsHooks, eng), nil
}

func newGraphCmd(flags *rootFlags) *cobra.Command {
	var goals []string
	var addrs []string
	var includeNoop bool
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the resolved product graph as Graphviz DOT",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := telemetry.NewLogger(telemetry.DefaultLogConfig())
			metrics := telemetry.NewMetrics()

			graph, sc, err := buildEngine(flags)
			if err != nil {
				return err
			}
			subjects := make([]subject.Subject, len(addrs))
			for i, a := range addrs {
				subjects[i] = parseAddress(a)
			}
			req, err := goal.BuildRequest(goals, subjects, defaultGoalMap())
			if err != nil {
				return err
			}
			hooks, err := buildHooks(flags, log, metrics)
			if err != nil {
				return err
			}
			sched := scheduler.New(graph, sc, hooks)
			worker := instrumentedWorker(scheduler.DefaultWorker(sc), metrics)
			if err := sched.Run(cmd.Context(), req, worker, flags.concurrency); err != nil {
				return err
			}
			if n := graph.CyclicRejectionCount(); n > 0 {
				metrics.ObserveCycleRejected(cmd.Context(), n)
			}
			return visualize.Render(os.Stdout, graph, req.Roots, visualize.Options{IncludeNoop: includeNoop})
		},
	}
	cmd.Flags().StringSliceVar(&goals, "goal", nil, "goal name (repeatable)")
	cmd.Flags().StringSliceVar(&addrs, "address", nil, "target address path[:name] (repeatable)")
	cmd.Flags().BoolVar(&includeNoop, "include-noop", false, "keep Noop-rooted subgraphs in the render")
	return cmd
}

func newListGoalsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list-goals",
		Short: "List the goal names registered with this build",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, g := range goal.ListGoals(defaultGoalMap()) {
				fmt.Fprintln(cmd.OutOrStdout(), g)
			}
			return nil
		},
	}
}

// instrumentedWorker wraps a scheduler.Worker to record per-step metrics
// without the step package itself needing to know about telemetry.
func instrumentedWorker(w scheduler.Worker, m *telemetry.Metrics) scheduler.Worker {
	return func(ctx context.Context, req scheduler.StepRequest) scheduler.StepResult {
		start := time.Now()
		res := w(ctx, req)
		kind := fmt.Sprintf("%T", req.Node)
		stateKind := fmt.Sprintf("%T", res.State)
		m.ObserveStep(ctx, stateKind, kind, time.Since(start))
		return res
	}
}
