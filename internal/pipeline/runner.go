// Package pipeline executes a plan of stages in dependency order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/dosanma1/pipeforge/internal/artifact"
	"github.com/dosanma1/pipeforge/internal/builder"
	"github.com/dosanma1/pipeforge/internal/config"
	"github.com/dosanma1/pipeforge/internal/executil"
	"github.com/dosanma1/pipeforge/internal/graph"
	"github.com/dosanma1/pipeforge/internal/registry"
)

var (
	ErrStageFailed = errors.New("stage failed")
	ErrNoTarget    = errors.New("no target given and the pipeline has no default")
)

// Config wires a Runner. Only Pipeline is required.
type Config struct {
	Pipeline *config.Pipeline

	Builders   *builder.Registry
	Store      *artifact.Store
	Exec       executil.Runner
	Resolver   *config.Resolver
	Publishers registry.Factory
	Logger     *slog.Logger

	DryRun  bool
	Push    bool
	Publish builder.PublishOverrides

	// Progress receives a progress bar when set.
	Progress io.Writer

	Stdout io.Writer
	Stderr io.Writer
}

// Runner executes stages sequentially on the calling goroutine.
type Runner struct {
	cfg   Config
	graph *graph.Graph
}

// New creates a runner, filling unset dependencies with the defaults.
func New(cfg Config) *Runner {
	if cfg.Builders == nil {
		cfg.Builders = builder.DefaultRegistry()
	}
	if cfg.Store == nil {
		cfg.Store = artifact.NewStore(cfg.Pipeline.StatePath())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Resolver == nil {
		cfg.Resolver = config.NewResolver(cfg.Pipeline)
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.Exec == nil {
		runner := executil.NewRunner(cfg.DryRun, cfg.Logger)
		runner.Out = cfg.Stdout
		cfg.Exec = runner
	}
	if cfg.Publishers == nil {
		cfg.Publishers = registry.NewFactory(cfg.Exec)
	}

	return &Runner{cfg: cfg, graph: graph.New(cfg.Pipeline)}
}

// Plan resolves targets (or the pipeline default) to an execution order.
func (r *Runner) Plan(targets ...string) ([]string, error) {
	if len(targets) == 0 {
		if r.cfg.Pipeline.Default == "" {
			return nil, ErrNoTarget
		}
		targets = []string{r.cfg.Pipeline.Default}
	}
	return r.graph.Plan(targets...)
}

// Run executes the plan for targets. The first failing stage stops the run;
// every stage after it is reported as skipped. The returned report is never
// nil once planning succeeded.
func (r *Runner) Run(ctx context.Context, targets ...string) (*Report, error) {
	plan, err := r.Plan(targets...)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	log := r.cfg.Logger
	report := &Report{Pipeline: r.cfg.Pipeline.Name}

	stages := make([]stage, 0, len(plan))
	for _, name := range plan {
		t, err := r.cfg.Pipeline.Target(name)
		if err != nil {
			return nil, err
		}
		b, err := r.cfg.Builders.Get(t.Kind)
		if err != nil {
			return nil, err
		}
		sr := &StageReport{Target: name, Kind: t.Kind, Builder: b.Name(), State: StatePending}
		report.Stages = append(report.Stages, sr)
		stages = append(stages, stage{target: t, builder: b, report: sr})
	}

	results := make(map[string]*builder.BuildArtifact, len(plan))
	bar := r.progressBar(len(plan))

	// Stage progress goes to the bar when there is one; logging it as well
	// would interleave with the bar on the same terminal.
	stageLog := log.Info
	if bar != nil {
		stageLog = log.Debug
	}

	finish := func() {
		report.Duration = time.Since(start)
		if bar != nil {
			_ = bar.Finish()
		}
	}

	// Inputs are checked for every stage before the first one runs.
	for i, s := range stages {
		if err := s.builder.Validate(r.options(s.target, results)); err != nil {
			s.report.State = StateFailed
			s.report.Err = err
			for j, other := range stages {
				if j != i {
					other.report.State = StateSkipped
				}
			}
			finish()
			log.Error("stage validation failed", "target", s.target.Name, "error", err)
			return report, fmt.Errorf("%w: %s: %w", ErrStageFailed, s.target.Name, err)
		}
	}

	for i, s := range stages {
		if err := ctx.Err(); err != nil {
			report.skipRemaining(i - 1)
			finish()
			return report, fmt.Errorf("run canceled before %s: %w", s.target.Name, err)
		}

		if bar != nil {
			bar.Describe(fmt.Sprintf("[%d/%d] %s", i+1, len(stages), s.target.Name))
		}

		s.report.State = StateRunning
		stageLog("stage started", "target", s.target.Name, "kind", s.target.Kind, "builder", s.builder.Name())

		stageStart := time.Now()
		result, err := s.builder.Build(ctx, r.options(s.target, results))
		s.report.Duration = time.Since(stageStart)

		if err != nil {
			s.report.State = StateFailed
			s.report.Err = err
			report.skipRemaining(i)
			finish()
			log.Error("stage failed", "target", s.target.Name, "duration", s.report.Duration, "error", err)
			return report, fmt.Errorf("%w: %s: %w", ErrStageFailed, s.target.Name, err)
		}

		s.report.State = StateSucceeded
		s.report.Artifact = result
		results[s.target.Name] = result
		stageLog("stage succeeded", "target", s.target.Name, "duration", s.report.Duration)

		if bar != nil {
			_ = bar.Add(1)
		}
	}

	finish()
	return report, nil
}

type stage struct {
	target  *config.Target
	builder builder.Builder
	report  *StageReport
}

func (r *Runner) options(t *config.Target, results map[string]*builder.BuildArtifact) *builder.BuildOptions {
	return &builder.BuildOptions{
		Pipeline:   r.cfg.Pipeline,
		Target:     t,
		Store:      r.cfg.Store,
		Runner:     r.cfg.Exec,
		Results:    results,
		DryRun:     r.cfg.DryRun,
		Push:       r.cfg.Push,
		Publish:    r.cfg.Publish,
		Resolver:   r.cfg.Resolver,
		Publishers: r.cfg.Publishers,
		Logger:     r.cfg.Logger,
		Stdout:     r.cfg.Stdout,
		Stderr:     r.cfg.Stderr,
	}
}

func (r *Runner) progressBar(total int) *progressbar.ProgressBar {
	if r.cfg.Progress == nil {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.cfg.Progress),
		progressbar.OptionSetDescription("starting"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(r.cfg.Progress)
		}),
	)
}
