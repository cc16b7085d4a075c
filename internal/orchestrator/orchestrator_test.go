package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DannyJanmaat/VSPilot-sub000/internal/workspace"
)

// fakeWorkspace scripts build outcomes per attempt. When block is set, builds
// stay in progress until the channel is closed.
type fakeWorkspace struct {
	mu sync.Mutex

	open    bool
	results []bool // outcome per build attempt; out of range means failure
	diags   []workspace.ErrorItem
	block   chan struct{}

	saveCalls  int
	cleanCalls int
	buildCalls int

	state     workspace.BuildState
	succeeded int
	failed    int
	total     int
}

func (f *fakeWorkspace) IsProjectOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeWorkspace) SaveAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	return nil
}

func (f *fakeWorkspace) StartClean(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanCalls++
	return nil
}

func (f *fakeWorkspace) StartBuild(context.Context, string) error {
	f.mu.Lock()
	attempt := f.buildCalls
	f.buildCalls++
	f.state = workspace.BuildInProgress
	block := f.block
	f.mu.Unlock()

	if block != nil {
		go func() {
			<-block
			f.finish(attempt)
		}()
		return nil
	}
	f.finish(attempt)
	return nil
}

func (f *fakeWorkspace) finish(attempt int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok := attempt < len(f.results) && f.results[attempt]
	f.total = 1
	if ok {
		f.succeeded, f.failed = 1, 0
	} else {
		f.succeeded, f.failed = 0, 1
	}
	f.state = workspace.BuildDone
}

func (f *fakeWorkspace) BuildState() workspace.BuildState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeWorkspace) BuildCounts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.succeeded, f.failed, f.total
}

func (f *fakeWorkspace) Diagnostics() []workspace.ErrorItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.diags
}

func (f *fakeWorkspace) Projects() []string { return []string{"app"} }

func (f *fakeWorkspace) builds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buildCalls
}

// fakeAI returns a canned structured fix.
type fakeAI struct {
	mu    sync.Mutex
	calls int
}

func (a *fakeAI) GetCompletion(context.Context, string, bool) (string, error) {
	return "ok", nil
}

func (a *fakeAI) GetStructuredCompletion(context.Context, string) (string, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	return `{"cause":"missing import","fix":"add the import","auto_fixable":true}`, nil
}

type countingApplier struct {
	mu    sync.Mutex
	calls int
}

func (c *countingApplier) Apply(context.Context, workspace.ErrorItem, ErrorAnalysis) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return nil
}

func (c *countingApplier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestNewRequiresWorkspace(t *testing.T) {
	_, err := New(nil, &fakeAI{})
	require.ErrorIs(t, err, ErrNoWorkspace)
}

func TestBuildSolutionNoProjectOpen(t *testing.T) {
	ws := &fakeWorkspace{open: false}
	o, err := New(ws, &fakeAI{})
	require.NoError(t, err)

	ok := o.BuildSolution(context.Background(), nil)
	assert.False(t, ok)
	assert.Equal(t, 0, ws.builds(), "nothing to build without an open solution")

	status := o.GetBuildStatus()
	assert.False(t, status.IsSuccessful)
	assert.Contains(t, status.ErrorMessage, "no solution")
}

func TestBuildSolutionSucceedsFirstAttempt(t *testing.T) {
	ws := &fakeWorkspace{open: true, results: []bool{true}}
	applier := &countingApplier{}
	o, err := New(ws, &fakeAI{}, WithFixApplier(applier))
	require.NoError(t, err)

	ok := o.BuildSolution(context.Background(), nil)
	assert.True(t, ok)
	assert.Equal(t, 1, ws.builds(), "a clean first build needs no repair cycle")
	assert.Equal(t, 0, applier.count())

	status := o.GetBuildStatus()
	assert.True(t, status.IsSuccessful)
	assert.Equal(t, 1, status.SucceededUnits)
	assert.Equal(t, "Completed", status.CurrentStep)
}

func TestRepairLoopExhausted(t *testing.T) {
	ws := &fakeWorkspace{
		open:  true,
		diags: []workspace.ErrorItem{{Description: "undefined: frobnicate", File: "main.go", Line: 10}},
	}
	applier := &countingApplier{}
	o, err := New(ws, &fakeAI{}, WithMaxRepairAttempts(3), WithFixApplier(applier))
	require.NoError(t, err)

	ok := o.BuildSolution(context.Background(), nil)
	assert.False(t, ok)
	assert.Equal(t, 4, ws.builds(), "initial build plus exactly three repair rebuilds")
	assert.Equal(t, 3, applier.count(), "one fix per diagnostic per attempt")

	status := o.GetBuildStatus()
	assert.False(t, status.IsSuccessful)
	assert.Contains(t, status.ErrorMessage, "3 repair attempts")
	assert.Equal(t, 1, status.FailedUnits)
}

func TestRepairLoopRecovers(t *testing.T) {
	ws := &fakeWorkspace{
		open:    true,
		results: []bool{false, false, true},
		diags:   []workspace.ErrorItem{{Description: "syntax error", File: "main.go"}},
	}
	o, err := New(ws, &fakeAI{}, WithMaxRepairAttempts(3))
	require.NoError(t, err)

	var steps []string
	var mu sync.Mutex
	ok := o.BuildSolution(context.Background(), func(_ int, step string) {
		mu.Lock()
		steps = append(steps, step)
		mu.Unlock()
	})
	assert.True(t, ok)
	assert.Equal(t, 3, ws.builds(), "stops rebuilding as soon as a repair succeeds")
	assert.True(t, o.GetBuildStatus().IsSuccessful)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, steps, "Build succeeded after repair")
}

func TestBuildProjectHasNoRepairLoop(t *testing.T) {
	ws := &fakeWorkspace{
		open:  true,
		diags: []workspace.ErrorItem{{Description: "undefined: x", File: "a.go"}},
	}
	applier := &countingApplier{}
	o, err := New(ws, &fakeAI{}, WithFixApplier(applier))
	require.NoError(t, err)

	ok := o.BuildProject(context.Background(), "app", nil)
	assert.False(t, ok)
	assert.Equal(t, 1, ws.builds(), "single-project builds never retry")
	assert.Equal(t, 0, applier.count())
	assert.Contains(t, o.GetBuildStatus().ErrorMessage, "app")
}

func TestCleanSolutionIdempotent(t *testing.T) {
	closed := &fakeWorkspace{open: false}
	o, err := New(closed, &fakeAI{})
	require.NoError(t, err)
	require.NoError(t, o.CleanSolution(context.Background()))
	assert.Equal(t, 0, closed.cleanCalls, "cleaning nothing is a no-op")

	open := &fakeWorkspace{open: true}
	o2, err := New(open, &fakeAI{})
	require.NoError(t, err)
	require.NoError(t, o2.CleanSolution(context.Background()))
	require.NoError(t, o2.CleanSolution(context.Background()))
	assert.Equal(t, 2, open.cleanCalls)
}

func TestBuildSolutionCancelled(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	ws := &fakeWorkspace{open: true, block: block}
	o, err := New(ws, &fakeAI{}, WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	ok := o.BuildSolution(ctx, nil)
	assert.False(t, ok)
	status := o.GetBuildStatus()
	assert.False(t, status.IsSuccessful)
	assert.Equal(t, "build cancelled", status.ErrorMessage)
}

func TestConcurrentBuildRejected(t *testing.T) {
	block := make(chan struct{})
	ws := &fakeWorkspace{open: true, results: []bool{true}, block: block}
	o, err := New(ws, &fakeAI{}, WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)

	done := make(chan bool, 1)
	go func() { done <- o.BuildSolution(context.Background(), nil) }()

	// Wait for the first build to be in flight.
	require.Eventually(t, func() bool { return ws.builds() == 1 },
		2*time.Second, 5*time.Millisecond)

	assert.False(t, o.BuildSolution(context.Background(), nil),
		"second build must be rejected while one is running")
	assert.Equal(t, 1, ws.builds())

	close(block)
	assert.True(t, <-done)

	if !strings.Contains(o.GetBuildStatus().CurrentStep, "Completed") {
		t.Fatalf("first build status clobbered: %+v", o.GetBuildStatus())
	}
}
