// Package orchestrator drives the automated build/repair cycle: save, clean,
// build, monitor, and when the build fails, an AI-assisted repair loop with a
// bounded number of attempts.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/DannyJanmaat/VSPilot-sub000/internal/logging"
	"github.com/DannyJanmaat/VSPilot-sub000/internal/metrics"
	"github.com/DannyJanmaat/VSPilot-sub000/internal/workspace"
)

const (
	// DefaultMaxRepairAttempts bounds the repair loop after a failed build.
	DefaultMaxRepairAttempts = 3

	// DefaultPollInterval is how often an in-flight build is sampled.
	DefaultPollInterval = 100 * time.Millisecond
)

// ErrNoWorkspace is returned by New when no workspace is supplied. This is
// a wiring mistake, unlike "no solution open" which is a normal runtime
// condition reported through BuildStatus.
var ErrNoWorkspace = errors.New("orchestrator: workspace is required")

// ProgressFunc receives coarse progress updates during a build.
type ProgressFunc func(percent int, step string)

// Completer is the slice of the AI router the orchestrator consumes.
type Completer interface {
	GetCompletion(ctx context.Context, prompt string, maintainContext bool) (string, error)
	GetStructuredCompletion(ctx context.Context, prompt string) (string, error)
}

// Orchestrator owns the build state machine. At most one build runs at a
// time; a second BuildSolution while one is in flight returns false without
// touching the active build's status.
type Orchestrator struct {
	ws       workspace.Workspace
	analyzer *Analyzer
	applier  FixApplier

	maxRepairAttempts int
	pollInterval      time.Duration

	building atomic.Bool

	mu     sync.RWMutex
	status BuildStatus

	log *zap.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithMaxRepairAttempts overrides the repair attempt bound.
func WithMaxRepairAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.maxRepairAttempts = n
		}
	}
}

// WithPollInterval overrides the build monitor sampling interval.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithFixApplier replaces the default logging-only applier.
func WithFixApplier(a FixApplier) Option {
	return func(o *Orchestrator) {
		if a != nil {
			o.applier = a
		}
	}
}

// New creates an Orchestrator bound to a workspace and an AI completion
// source.
func New(ws workspace.Workspace, ai Completer, opts ...Option) (*Orchestrator, error) {
	if ws == nil {
		return nil, ErrNoWorkspace
	}
	o := &Orchestrator{
		ws:                ws,
		analyzer:          NewAnalyzer(ai),
		applier:           NewNopApplier(),
		maxRepairAttempts: DefaultMaxRepairAttempts,
		pollInterval:      DefaultPollInterval,
		log:               logging.L().Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// GetBuildStatus returns a snapshot of the current or last build.
func (o *Orchestrator) GetBuildStatus() BuildStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

// BuildSolution saves all documents, cleans, builds the whole solution, and
// on failure runs the repair loop. It reports true only when a build cycle
// ends with zero failed units. All failures, including panics in workspace
// callbacks, are converted into a failed BuildStatus.
func (o *Orchestrator) BuildSolution(ctx context.Context, report ProgressFunc) (ok bool) {
	if report == nil {
		report = func(int, string) {}
	}

	if !o.ws.IsProjectOpen() {
		o.setStatus(BuildStatus{
			StartTime:    time.Now(),
			ErrorMessage: "no solution or project is open",
			CurrentStep:  "Failed",
		})
		o.log.Warn("build requested with no open solution")
		return false
	}

	if !o.building.CompareAndSwap(false, true) {
		o.log.Warn("build already in progress, request ignored")
		return false
	}
	defer o.building.Store(false)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("build orchestration panicked", zap.Any("panic", r))
			o.failStatus(fmt.Sprintf("internal error: %v", r))
			metrics.Get().BuildsTotal.WithLabelValues("failed").Inc()
			ok = false
		}
		metrics.Get().BuildDuration.Observe(time.Since(start).Seconds())
	}()

	o.setStatus(BuildStatus{StartTime: start, CurrentStep: "Saving documents"})
	report(0, "Saving documents")
	if err := o.ws.SaveAll(); err != nil {
		o.failStatus(fmt.Sprintf("saving documents failed: %v", err))
		metrics.Get().BuildsTotal.WithLabelValues("failed").Inc()
		return false
	}

	success, err := o.runCycle(ctx, "", report)
	if err != nil {
		return o.finishAborted(err)
	}
	if success {
		o.succeedStatus()
		report(100, "Build succeeded")
		metrics.Get().BuildsTotal.WithLabelValues("succeeded").Inc()
		return true
	}

	for attempt := 1; attempt <= o.maxRepairAttempts; attempt++ {
		if ctx.Err() != nil {
			return o.finishAborted(ctx.Err())
		}

		metrics.Get().RepairAttempts.Inc()
		step := fmt.Sprintf("Repairing (attempt %d of %d)", attempt, o.maxRepairAttempts)
		o.setStep(step)
		report(0, step)
		o.log.Info("starting repair attempt",
			zap.Int("attempt", attempt),
			zap.Int("max", o.maxRepairAttempts))

		o.repairDiagnostics(ctx)

		success, err = o.runCycle(ctx, "", report)
		if err != nil {
			return o.finishAborted(err)
		}
		if success {
			o.succeedStatus()
			report(100, "Build succeeded after repair")
			metrics.Get().BuildsTotal.WithLabelValues("succeeded").Inc()
			metrics.Get().RepairLoopResults.WithLabelValues("recovered").Inc()
			o.log.Info("repair loop recovered the build", zap.Int("attempts", attempt))
			return true
		}
	}

	succeeded, failed, _ := o.ws.BuildCounts()
	o.failStatus(fmt.Sprintf(
		"build failed after %d repair attempts (%d succeeded, %d failed)",
		o.maxRepairAttempts, succeeded, failed))
	report(100, "Build failed")
	metrics.Get().BuildsTotal.WithLabelValues("failed").Inc()
	metrics.Get().RepairLoopResults.WithLabelValues("exhausted").Inc()
	o.log.Warn("repair attempts exhausted",
		zap.Int("attempts", o.maxRepairAttempts),
		zap.Int("failed_units", failed))
	return false
}

// BuildProject builds a single project without the repair loop.
func (o *Orchestrator) BuildProject(ctx context.Context, project string, report ProgressFunc) bool {
	if report == nil {
		report = func(int, string) {}
	}

	if !o.ws.IsProjectOpen() {
		o.setStatus(BuildStatus{
			StartTime:    time.Now(),
			ErrorMessage: "no solution or project is open",
			CurrentStep:  "Failed",
		})
		return false
	}
	if !o.building.CompareAndSwap(false, true) {
		o.log.Warn("build already in progress, request ignored", zap.String("project", project))
		return false
	}
	defer o.building.Store(false)

	o.setStatus(BuildStatus{StartTime: time.Now(), CurrentStep: "Saving documents"})
	if err := o.ws.SaveAll(); err != nil {
		o.failStatus(fmt.Sprintf("saving documents failed: %v", err))
		metrics.Get().BuildsTotal.WithLabelValues("failed").Inc()
		return false
	}

	success, err := o.runCycle(ctx, project, report)
	if err != nil {
		return o.finishAborted(err)
	}
	if success {
		o.succeedStatus()
		metrics.Get().BuildsTotal.WithLabelValues("succeeded").Inc()
		return true
	}
	_, failed, _ := o.ws.BuildCounts()
	o.failStatus(fmt.Sprintf("project %s failed to build (%d failed units)", project, failed))
	metrics.Get().BuildsTotal.WithLabelValues("failed").Inc()
	return false
}

// CleanSolution cleans the open solution. Cleaning with nothing open is a
// no-op, and repeated cleans are harmless.
func (o *Orchestrator) CleanSolution(ctx context.Context) error {
	if !o.ws.IsProjectOpen() {
		o.log.Debug("clean requested with no open solution")
		return nil
	}
	return o.ws.StartClean(ctx)
}

// runCycle executes one clean-build-monitor pass. It returns whether the
// build succeeded; a non-nil error means the cycle was interrupted rather
// than completed.
func (o *Orchestrator) runCycle(ctx context.Context, project string, report ProgressFunc) (bool, error) {
	o.setStep("Cleaning")
	report(0, "Cleaning")
	if err := o.ws.StartClean(ctx); err != nil {
		return false, err
	}

	o.setStep("Building")
	report(0, "Building")
	if err := o.ws.StartBuild(ctx, project); err != nil {
		return false, err
	}

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()
	for o.ws.BuildState() == workspace.BuildInProgress {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
		succeeded, failed, total := o.ws.BuildCounts()
		if total > 0 {
			report((succeeded+failed)*100/total, "Building")
		}
		o.updateCounts(succeeded, failed)
	}

	succeeded, failed, _ := o.ws.BuildCounts()
	o.updateCounts(succeeded, failed)
	return failed == 0, nil
}

// repairDiagnostics analyzes each current diagnostic and hands the result to
// the applier. Applier errors are logged and skipped so one bad patch never
// stops the remaining fixes.
func (o *Orchestrator) repairDiagnostics(ctx context.Context) {
	diags := o.ws.Diagnostics()
	if len(diags) == 0 {
		o.log.Info("build failed but produced no diagnostics, rebuilding as-is")
		return
	}
	for _, item := range diags {
		if ctx.Err() != nil {
			return
		}
		analysis := o.analyzer.Analyze(ctx, item)
		if err := o.applier.Apply(ctx, item, analysis); err != nil {
			o.log.Warn("fix could not be applied",
				zap.String("file", item.File),
				zap.Error(err))
		}
	}
}

// finishAborted converts an interruption (cancellation or a workspace error)
// into a failed status and returns false.
func (o *Orchestrator) finishAborted(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		o.failStatus("build cancelled")
		metrics.Get().BuildsTotal.WithLabelValues("cancelled").Inc()
		o.log.Info("build cancelled")
		return false
	}
	o.failStatus(err.Error())
	metrics.Get().BuildsTotal.WithLabelValues("failed").Inc()
	o.log.Error("build aborted", zap.Error(err))
	return false
}

func (o *Orchestrator) setStatus(s BuildStatus) {
	o.mu.Lock()
	o.status = s
	o.mu.Unlock()
}

func (o *Orchestrator) setStep(step string) {
	o.mu.Lock()
	o.status.CurrentStep = step
	o.mu.Unlock()
}

func (o *Orchestrator) updateCounts(succeeded, failed int) {
	o.mu.Lock()
	o.status.SucceededUnits = succeeded
	o.status.FailedUnits = failed
	o.mu.Unlock()
}

func (o *Orchestrator) succeedStatus() {
	o.mu.Lock()
	o.status.IsSuccessful = true
	o.status.ErrorMessage = ""
	o.status.CurrentStep = "Completed"
	o.mu.Unlock()
}

func (o *Orchestrator) failStatus(msg string) {
	o.mu.Lock()
	o.status.IsSuccessful = false
	o.status.ErrorMessage = msg
	o.status.CurrentStep = "Failed"
	o.mu.Unlock()
}
