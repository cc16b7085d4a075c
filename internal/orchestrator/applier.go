package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/DannyJanmaat/VSPilot-sub000/internal/filestore"
	"github.com/DannyJanmaat/VSPilot-sub000/internal/logging"
	"github.com/DannyJanmaat/VSPilot-sub000/internal/workspace"
)

// FixApplier applies a repair suggestion between build attempts. Apply
// errors are logged by the caller and never abort the repair loop.
type FixApplier interface {
	Apply(ctx context.Context, item workspace.ErrorItem, analysis ErrorAnalysis) error
}

// NopApplier records suggestions without touching files. It is the default
// so that automated edits stay opt-in.
type NopApplier struct {
	log *zap.Logger
}

// NewNopApplier creates the logging-only applier.
func NewNopApplier() *NopApplier {
	return &NopApplier{log: logging.L().Named("applier")}
}

func (a *NopApplier) Apply(_ context.Context, item workspace.ErrorItem, analysis ErrorAnalysis) error {
	a.log.Info("suggested fix (not applied)",
		zap.String("file", item.File),
		zap.String("cause", analysis.Cause),
		zap.String("fix", analysis.SuggestedFix))
	return nil
}

// SearchReplaceApplier applies concrete search/replace patches through the
// backing file store, which snapshots the file before every overwrite.
type SearchReplaceApplier struct {
	files *filestore.Store
	log   *zap.Logger
}

// NewSearchReplaceApplier creates an applier writing through the given store.
func NewSearchReplaceApplier(files *filestore.Store) *SearchReplaceApplier {
	return &SearchReplaceApplier{
		files: files,
		log:   logging.L().Named("applier"),
	}
}

func (a *SearchReplaceApplier) Apply(_ context.Context, item workspace.ErrorItem, analysis ErrorAnalysis) error {
	if analysis.Patch == nil {
		a.log.Debug("no patch in analysis, skipping",
			zap.String("file", item.File),
			zap.String("cause", analysis.Cause))
		return nil
	}

	patch := analysis.Patch
	content, err := a.files.ReadText(patch.File)
	if err != nil {
		return err
	}
	if !strings.Contains(content, patch.Search) {
		return fmt.Errorf("applier: search text not found in %s", patch.File)
	}

	updated := strings.Replace(content, patch.Search, patch.Replace, 1)
	if err := a.files.WriteText(patch.File, updated); err != nil {
		return err
	}

	a.log.Info("patch applied",
		zap.String("file", patch.File),
		zap.String("cause", analysis.Cause))
	return nil
}
