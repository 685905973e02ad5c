// Command growthcore administers the growth computation core: installing
// model parameter files, recomputing assimilated slot state, running and
// archiving projections, and serving the nightly recompute scheduler.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"growthcore/internal/blob"
	"growthcore/internal/config"
	"growthcore/internal/core"
	"growthcore/internal/modelfile"
	"growthcore/internal/scheduler"
	"growthcore/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

const usageText = `usage: growthcore <command> [flags]

commands:
  install          install models from an hjson parameter file
  assimilate       recompute assimilated daily state for one slot or all
  project          execute a projection run from an hjson scenario file
  runs             list projection runs or show one run in full
  archive          export a completed run to the blob archive
  serve-scheduler  run the nightly recompute scheduler until interrupted

run 'growthcore <command> -h' for command flags
`

func cli(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usageText)
		return 2
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "install":
		return cmdInstall(rest, stdout, stderr)
	case "assimilate":
		return cmdAssimilate(rest, stdout, stderr)
	case "project":
		return cmdProject(rest, stdout, stderr)
	case "runs":
		return cmdRuns(rest, stdout, stderr)
	case "archive":
		return cmdArchive(rest, stdout, stderr)
	case "serve-scheduler":
		return cmdServeScheduler(rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usageText)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		fmt.Fprint(stderr, usageText)
		return 2
	}
}

// app bundles the wired service with everything the subcommands share.
type app struct {
	cfg    *config.Config
	svc    *core.Service
	logger *zap.Logger
}

func newApp(ctx context.Context, envFile string) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	logger, err := buildLogger(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	store, err := core.OpenPersistentStore(core.DefaultRulesEngine())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	archive, err := blob.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	metrics, err := core.NewPrometheusMetricsRecorder(prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}

	svc := core.NewService(store,
		core.WithLogger(core.NewZapLogger(logger)),
		core.WithMetricsRecorder(metrics),
		core.WithParallelism(cfg.Engine.RecomputeParallelism),
		core.WithHorizonCap(cfg.Engine.HorizonCapDays),
		core.WithRunArchive(archive),
	)
	return &app{cfg: cfg, svc: svc, logger: logger}, nil
}

func (a *app) close() {
	if closer, ok := a.svc.Store().(io.Closer); ok {
		_ = closer.Close()
	}
	_ = a.logger.Sync()
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "growthcore: %v\n", err)
	return 1
}

func printWarnings(stdout io.Writer, violations []domain.Violation) {
	for _, v := range violations {
		if v.Severity == domain.SeverityBlock {
			continue
		}
		fmt.Fprintf(stdout, "warning [%s] %s\n", v.Rule, v.Message)
	}
}

func cmdInstall(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("install", stderr)
	envFile := fs.String("env", "", "env file to load configuration from")
	file := fs.String("file", "", "hjson model parameter file (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *file == "" {
		fmt.Fprintln(stderr, "install: -file is required")
		return 2
	}

	ctx := context.Background()
	a, err := newApp(ctx, *envFile)
	if err != nil {
		return fail(stderr, err)
	}
	defer a.close()

	doc, err := modelfile.LoadFile(*file)
	if err != nil {
		return fail(stderr, err)
	}
	report, err := doc.Install(ctx, a.svc)
	printWarnings(stdout, report.Warnings)
	if err != nil {
		return fail(stderr, err)
	}

	if report.StageTableSet {
		fmt.Fprintln(stdout, "stage table installed")
	}
	for name, id := range report.GrowthModelIDs {
		fmt.Fprintf(stdout, "growth model %s -> %s\n", name, id)
	}
	for name, id := range report.FeedModelIDs {
		fmt.Fprintf(stdout, "feed model %s -> %s\n", name, id)
	}
	for name, id := range report.MortalityModelIDs {
		fmt.Fprintf(stdout, "mortality model %s -> %s\n", name, id)
	}
	for name, id := range report.ProfileIDs {
		fmt.Fprintf(stdout, "temperature profile %s -> %s\n", name, id)
	}
	return 0
}

func cmdAssimilate(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("assimilate", stderr)
	envFile := fs.String("env", "", "env file to load configuration from")
	slotID := fs.String("slot", "", "slot to recompute (default: all active slots)")
	through := fs.String("through", "", "recompute through this day, YYYY-MM-DD (default today)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	day, err := parseDayFlag(*through)
	if err != nil {
		return fail(stderr, err)
	}

	ctx := context.Background()
	a, err := newApp(ctx, *envFile)
	if err != nil {
		return fail(stderr, err)
	}
	defer a.close()

	if *slotID != "" {
		rows, res, err := a.svc.RecomputeAssimilation(ctx, *slotID, day)
		printWarnings(stdout, res.Violations)
		if err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintf(stdout, "slot %s: %d days assimilated\n", *slotID, len(rows))
		return 0
	}

	recomputed, err := a.svc.RecomputeAllAssimilation(ctx, day)
	if err != nil {
		fmt.Fprintf(stdout, "%d slots recomputed\n", recomputed)
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "%d slots recomputed\n", recomputed)
	return 0
}

func cmdProject(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("project", stderr)
	envFile := fs.String("env", "", "env file to load configuration from")
	scenarioFile := fs.String("scenario", "", "hjson scenario file (required)")
	archiveRun := fs.Bool("archive", false, "archive the completed run to the blob store")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *scenarioFile == "" {
		fmt.Fprintln(stderr, "project: -scenario is required")
		return 2
	}

	ctx := context.Background()
	a, err := newApp(ctx, *envFile)
	if err != nil {
		return fail(stderr, err)
	}
	defer a.close()

	scenario, err := modelfile.LoadScenarioFile(*scenarioFile)
	if err != nil {
		return fail(stderr, err)
	}
	req, err := scenario.Resolve(ctx, a.svc.Store())
	if err != nil {
		return fail(stderr, err)
	}
	run, res, err := a.svc.RunProjection(ctx, req)
	printWarnings(stdout, res.Violations)
	if err != nil {
		return fail(stderr, err)
	}

	fmt.Fprintf(stdout, "run %s completed: %d days simulated\n", run.ID, run.HorizonDays)
	if run.Summary != nil {
		fmt.Fprintf(stdout, "final: %.1fg avg weight, %d fish, %.1fkg biomass, %.1fkg feed\n",
			run.Summary.FinalWeightG, run.Summary.FinalPopulation,
			run.Summary.FinalBiomassG/1000, run.Summary.TotalFeedG/1000)
	}
	if *archiveRun {
		info, err := a.svc.ArchiveRun(ctx, run.ID)
		if err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintf(stdout, "archived to %s (%d bytes)\n", info.Key, info.Size)
	}
	return 0
}

func cmdRuns(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("runs", stderr)
	envFile := fs.String("env", "", "env file to load configuration from")
	scopeID := fs.String("scope", "", "filter runs by scope (cohort or slot)")
	runID := fs.String("id", "", "print one run as JSON, states included")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	a, err := newApp(ctx, *envFile)
	if err != nil {
		return fail(stderr, err)
	}
	defer a.close()

	if *runID != "" {
		run, err := a.svc.GetRun(ctx, *runID)
		if err != nil {
			return fail(stderr, err)
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(run); err != nil {
			return fail(stderr, err)
		}
		return 0
	}

	summaries, err := a.svc.ListRuns(ctx, *scopeID)
	if err != nil {
		return fail(stderr, err)
	}
	if len(summaries) == 0 {
		fmt.Fprintln(stdout, "no runs")
		return 0
	}
	for _, s := range summaries {
		line := fmt.Sprintf("%s  %-9s  %3dd  %s", s.ID, s.Status, s.HorizonDays, s.Label)
		if s.Summary != nil {
			line += fmt.Sprintf("  (final %.1fg x %d)", s.Summary.FinalWeightG, s.Summary.FinalPopulation)
		}
		fmt.Fprintln(stdout, line)
	}
	return 0
}

func cmdArchive(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("archive", stderr)
	envFile := fs.String("env", "", "env file to load configuration from")
	runID := fs.String("run", "", "run to archive (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *runID == "" {
		fmt.Fprintln(stderr, "archive: -run is required")
		return 2
	}

	ctx := context.Background()
	a, err := newApp(ctx, *envFile)
	if err != nil {
		return fail(stderr, err)
	}
	defer a.close()

	info, err := a.svc.ArchiveRun(ctx, *runID)
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "archived to %s (%d bytes)\n", info.Key, info.Size)
	return 0
}

func cmdServeScheduler(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("serve-scheduler", stderr)
	envFile := fs.String("env", "", "env file to load configuration from")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, *envFile)
	if err != nil {
		return fail(stderr, err)
	}
	defer a.close()

	sched := scheduler.New(a.svc, a.cfg.Scheduler.CronSchedule, a.logger)
	if err := sched.Start(); err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "scheduler running (%s), ctrl-c to stop\n", a.cfg.Scheduler.CronSchedule)

	<-ctx.Done()
	sched.Stop()
	fmt.Fprintln(stdout, "scheduler stopped")
	return 0
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func parseDayFlag(value string) (time.Time, error) {
	if value == "" {
		return domain.DayOf(time.Now()), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", value)
	}
	return domain.DayOf(t), nil
}
