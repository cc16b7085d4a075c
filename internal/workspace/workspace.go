// Package workspace abstracts the host environment's project model: project
// enumeration, document persistence, clean/build operations, and the live
// diagnostics surface.
//
// Orchestration logic depends only on the Workspace interface so it can be
// tested without a real host; Local provides a command-driven implementation
// for running outside an IDE.
package workspace

import "context"

// BuildState reports the host's view of an in-flight build.
type BuildState int

const (
	BuildIdle BuildState = iota
	BuildInProgress
	BuildDone
)

func (s BuildState) String() string {
	switch s {
	case BuildIdle:
		return "idle"
	case BuildInProgress:
		return "in_progress"
	case BuildDone:
		return "done"
	default:
		return "unknown"
	}
}

// ErrorItem is a normalized compiler/build diagnostic.
type ErrorItem struct {
	Description string `json:"description"`
	File        string `json:"file"`
	Line        int    `json:"line"`
	Column      int    `json:"column"`
}

// Workspace is the capability the orchestrator consumes from the host.
type Workspace interface {
	// IsProjectOpen reports whether a project or solution is loaded.
	IsProjectOpen() bool

	// SaveAll persists all unsaved documents.
	SaveAll() error

	// StartClean kicks off a clean of the whole solution.
	StartClean(ctx context.Context) error

	// StartBuild kicks off a build. An empty project name builds the whole
	// solution. The build runs asynchronously; poll BuildState for
	// completion.
	StartBuild(ctx context.Context, project string) error

	// BuildState returns the host's current build state.
	BuildState() BuildState

	// BuildCounts returns unit counts for the most recent build:
	// succeeded, failed, and total build units.
	BuildCounts() (succeeded, failed, total int)

	// Diagnostics returns the current error list after a build.
	Diagnostics() []ErrorItem

	// Projects enumerates the projects in the open solution.
	Projects() []string
}
