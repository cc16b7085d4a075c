package workspace

import "errors"

// ErrBuildInProgress is returned when a build is requested while another is
// still running.
var ErrBuildInProgress = errors.New("workspace: build already in progress")
