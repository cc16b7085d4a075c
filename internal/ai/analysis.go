package ai

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DannyJanmaat/VSPilot-sub000/internal/metrics"
)

// analysisTimeout bounds each background analysis call.
const analysisTimeout = 2 * time.Minute

// QueueAnalysis enqueues a background project analysis. It never blocks;
// a drain worker is started unless one is already running. At most one
// drain loop processes the queue at a time.
func (r *Router) QueueAnalysis(projectName string) {
	r.analysisMu.Lock()
	r.analysisQueue = append(r.analysisQueue, projectName)
	depth := len(r.analysisQueue)
	r.analysisMu.Unlock()

	metrics.Get().AnalysisQueueLen.Set(float64(depth))

	if r.analysisActive.CompareAndSwap(false, true) {
		go r.drainAnalysis()
	}
}

// AnalysisPending returns the number of queued analysis requests.
func (r *Router) AnalysisPending() int {
	r.analysisMu.Lock()
	defer r.analysisMu.Unlock()
	return len(r.analysisQueue)
}

// AnalysesProcessed returns how many analysis requests have been drained.
func (r *Router) AnalysesProcessed() int64 {
	return r.analysisRuns.Load()
}

// drainAnalysis pops queued requests until the queue is empty. After
// releasing the active flag it re-checks the queue: an item enqueued between
// the empty check and the release would otherwise be stranded until the next
// QueueAnalysis call.
func (r *Router) drainAnalysis() {
	for {
		for {
			r.analysisMu.Lock()
			if len(r.analysisQueue) == 0 {
				r.analysisMu.Unlock()
				break
			}
			subject := r.analysisQueue[0]
			r.analysisQueue = r.analysisQueue[1:]
			depth := len(r.analysisQueue)
			r.analysisMu.Unlock()

			metrics.Get().AnalysisQueueLen.Set(float64(depth))
			r.runAnalysis(subject)
		}

		r.analysisActive.Store(false)

		r.analysisMu.Lock()
		empty := len(r.analysisQueue) == 0
		r.analysisMu.Unlock()
		if empty || !r.analysisActive.CompareAndSwap(false, true) {
			return
		}
	}
}

func (r *Router) runAnalysis(subject string) {
	defer r.analysisRuns.Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), analysisTimeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Analyze the project %q for structural issues, missing dependencies, and likely build problems. Reply with a short prioritized list.",
		subject)

	result, err := r.complete(ctx, prompt, false, false)
	if err != nil {
		r.log.Warn("background analysis failed",
			zap.String("project", subject),
			zap.Error(err))
		return
	}

	r.log.Info("background analysis complete", zap.String("project", subject))
	if r.sink != nil {
		if err := r.sink.SaveAnalysis(subject, result); err != nil {
			r.log.Warn("failed to persist analysis result", zap.Error(err))
		}
	}
}
