// VSPilot automation core: a priority task scheduler, an AI-assisted build
// orchestrator, and a multi-provider completion router, exposed over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/DannyJanmaat/VSPilot-sub000/internal/ai"
	"github.com/DannyJanmaat/VSPilot-sub000/internal/api"
	"github.com/DannyJanmaat/VSPilot-sub000/internal/config"
	"github.com/DannyJanmaat/VSPilot-sub000/internal/filestore"
	"github.com/DannyJanmaat/VSPilot-sub000/internal/logging"
	"github.com/DannyJanmaat/VSPilot-sub000/internal/orchestrator"
	"github.com/DannyJanmaat/VSPilot-sub000/internal/scheduler"
	"github.com/DannyJanmaat/VSPilot-sub000/internal/store"
	"github.com/DannyJanmaat/VSPilot-sub000/internal/workspace"
)

func main() {
	// A missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	logging.Init()
	defer logging.Sync()
	log := logging.L()

	cfg := config.Load()

	audit, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal("failed to open audit store", zap.String("path", cfg.DBPath), zap.Error(err))
	}
	defer audit.Close()

	router := ai.NewRouter(
		ai.RouterConfig{
			Selected:      ai.Provider(cfg.AIProvider),
			AutoSwitch:    cfg.AutoSwitch,
			ContextWindow: cfg.ContextWindow,
			MaxTokens:     cfg.MaxTokens,
			Temperature:   cfg.Temperature,
			RatePerMinute: cfg.ProviderRateRPM,
		},
		audit,
		ai.NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIModel),
		ai.NewAnthropicClient(cfg.AnthropicKey, cfg.AnthropicModel),
		ai.NewCopilotClient(cfg.UseCopilot),
	)

	ws := workspace.NewLocal(cfg.WorkspaceDir, cfg.BuildCommand, cfg.CleanCommand)
	files := filestore.New(cfg.WorkspaceDir)

	orch, err := orchestrator.New(ws, router,
		orchestrator.WithMaxRepairAttempts(cfg.MaxRepairAttempts),
		orchestrator.WithPollInterval(cfg.BuildPollInterval),
		orchestrator.WithFixApplier(orchestrator.NewSearchReplaceApplier(files)),
	)
	if err != nil {
		log.Fatal("failed to create orchestrator", zap.Error(err))
	}

	sched := scheduler.New(scheduler.WithPollInterval(cfg.SchedulerPollInterval))

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewServer(sched, router, orch, audit).Engine(),
	}

	go func() {
		log.Info("vspilot listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("workspace", cfg.WorkspaceDir),
			zap.String("provider", cfg.AIProvider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("http shutdown incomplete", zap.Error(err))
	}

	// Stop cancels queued entries and waits for the active task to yield.
	sched.Stop()
	log.Info("stopped")
}
