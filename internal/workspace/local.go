package workspace

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/DannyJanmaat/VSPilot-sub000/internal/logging"
)

// Diagnostic line formats recognized by the local workspace.
var (
	// Go/gcc style: path/file.go:12:5: message
	goDiagRe = regexp.MustCompile(`^([^\s:]+\.\w+):(\d+):(\d+):\s*(.+)$`)
	// MSBuild style: Path\File.cs(12,5): error CS1002: message
	msbuildDiagRe = regexp.MustCompile(`^(.+?)\((\d+),(\d+)\):\s*(?:error|warning)\s+\w+:\s*(.+)$`)
)

// Local drives builds by shelling out to configured clean/build commands and
// parsing their output into diagnostics. One build at a time.
type Local struct {
	dir      string
	buildCmd string
	cleanCmd string

	mu          sync.RWMutex
	state       BuildState
	diagnostics []ErrorItem
	succeeded   int
	failed      int
	total       int

	log *zap.Logger
}

// NewLocal creates a command-driven workspace rooted at dir.
func NewLocal(dir, buildCmd, cleanCmd string) *Local {
	return &Local{
		dir:      dir,
		buildCmd: buildCmd,
		cleanCmd: cleanCmd,
		state:    BuildIdle,
		log:      logging.L().Named("workspace"),
	}
}

// IsProjectOpen reports whether the workspace directory exists and contains
// any buildable project marker.
func (l *Local) IsProjectOpen() bool {
	info, err := os.Stat(l.dir)
	if err != nil || !info.IsDir() {
		return false
	}
	for _, marker := range []string{"go.mod", "Makefile", "package.json"} {
		if _, err := os.Stat(filepath.Join(l.dir, marker)); err == nil {
			return true
		}
	}
	matches, _ := filepath.Glob(filepath.Join(l.dir, "*.csproj"))
	if len(matches) > 0 {
		return true
	}
	matches, _ = filepath.Glob(filepath.Join(l.dir, "*.sln"))
	return len(matches) > 0
}

// SaveAll is a no-op for the local workspace: there is no editor buffer to
// flush.
func (l *Local) SaveAll() error { return nil }

// StartClean runs the clean command synchronously. Cleaning is quick and
// idempotent, so it does not go through the async build state.
func (l *Local) StartClean(ctx context.Context) error {
	if l.cleanCmd == "" {
		return nil
	}
	cmd := commandContext(ctx, l.cleanCmd, l.dir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		l.log.Warn("clean command failed",
			zap.String("cmd", l.cleanCmd),
			zap.String("output", string(out)))
	}
	return nil
}

// StartBuild launches the build command in the background and transitions
// the workspace to BuildInProgress.
func (l *Local) StartBuild(ctx context.Context, project string) error {
	l.mu.Lock()
	if l.state == BuildInProgress {
		l.mu.Unlock()
		return ErrBuildInProgress
	}
	l.state = BuildInProgress
	l.diagnostics = nil
	l.mu.Unlock()

	buildCmd := l.buildCmd
	if project != "" {
		buildCmd = l.buildCmd + " " + project
	}

	go func() {
		cmd := commandContext(ctx, buildCmd, l.dir)
		var buf bytes.Buffer
		cmd.Stdout = &buf
		cmd.Stderr = &buf
		err := cmd.Run()

		diags := parseDiagnostics(&buf)

		l.mu.Lock()
		l.state = BuildDone
		l.diagnostics = diags
		l.total = 1
		if err != nil || len(diags) > 0 {
			l.succeeded, l.failed = 0, 1
		} else {
			l.succeeded, l.failed = 1, 0
		}
		l.mu.Unlock()

		l.log.Info("build command finished",
			zap.String("cmd", buildCmd),
			zap.Bool("ok", err == nil),
			zap.Int("diagnostics", len(diags)))
	}()
	return nil
}

// BuildState returns the current build state.
func (l *Local) BuildState() BuildState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// BuildCounts returns unit counts for the most recent build.
func (l *Local) BuildCounts() (succeeded, failed, total int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.succeeded, l.failed, l.total
}

// Diagnostics returns parsed diagnostics from the most recent build.
func (l *Local) Diagnostics() []ErrorItem {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ErrorItem, len(l.diagnostics))
	copy(out, l.diagnostics)
	return out
}

// Projects returns the workspace directory's base name as the single
// project of the local "solution".
func (l *Local) Projects() []string {
	abs, err := filepath.Abs(l.dir)
	if err != nil {
		return []string{l.dir}
	}
	return []string{filepath.Base(abs)}
}

func commandContext(ctx context.Context, command, dir string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	return cmd
}

func parseDiagnostics(out *bytes.Buffer) []ErrorItem {
	var items []ErrorItem
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if m := goDiagRe.FindStringSubmatch(line); m != nil {
			items = append(items, ErrorItem{
				Description: m[4],
				File:        m[1],
				Line:        atoi(m[2]),
				Column:      atoi(m[3]),
			})
			continue
		}
		if m := msbuildDiagRe.FindStringSubmatch(line); m != nil {
			items = append(items, ErrorItem{
				Description: m[4],
				File:        m[1],
				Line:        atoi(m[2]),
				Column:      atoi(m[3]),
			})
		}
	}
	return items
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
