// Package api exposes the automation pipeline over HTTP: chat completions,
// build control, status, history, and a websocket stream of scheduler events.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/DannyJanmaat/VSPilot-sub000/internal/ai"
	"github.com/DannyJanmaat/VSPilot-sub000/internal/logging"
	"github.com/DannyJanmaat/VSPilot-sub000/internal/orchestrator"
	"github.com/DannyJanmaat/VSPilot-sub000/internal/scheduler"
	"github.com/DannyJanmaat/VSPilot-sub000/internal/store"
)

// chatWait bounds how long a chat request waits for its queued task.
const chatWait = 3 * time.Minute

// Server wires the scheduler, AI router, and build orchestrator into an HTTP
// surface.
type Server struct {
	sched  *scheduler.Scheduler
	router *ai.Router
	orch   *orchestrator.Orchestrator
	audit  *store.Store // optional; history endpoints 404 without it
	log    *zap.Logger
}

// NewServer creates the API server. audit may be nil.
func NewServer(sched *scheduler.Scheduler, router *ai.Router, orch *orchestrator.Orchestrator, audit *store.Store) *Server {
	return &Server{
		sched:  sched,
		router: router,
		orch:   orch,
		audit:  audit,
		log:    logging.L().Named("api"),
	}
}

// Engine builds the gin engine with all routes registered.
func (s *Server) Engine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", s.Health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/ws/events", s.StreamEvents)

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/chat", s.Chat)
		v1.POST("/build", s.Build)
		v1.POST("/clean", s.Clean)
		v1.GET("/status", s.Status)
		v1.GET("/history", s.History)
		v1.GET("/analyses", s.Analyses)
		v1.GET("/builds", s.Builds)
		v1.POST("/analyze", s.Analyze)
		v1.DELETE("/tasks/:id", s.CancelTask)
	}
	return engine
}

// Health reports process liveness and provider availability.
func (s *Server) Health(c *gin.Context) {
	avail := s.router.Availability()
	healthy := 0
	for _, ok := range avail {
		if ok {
			healthy++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":              "healthy",
		"queue_length":        s.sched.QueueLength(),
		"ai_providers":        avail,
		"available_providers": healthy,
	})
}

type chatRequest struct {
	Prompt          string `json:"prompt" binding:"required"`
	MaintainContext *bool  `json:"maintain_context"`
	Priority        string `json:"priority"`
}

// Chat enqueues a completion task and waits for the reply.
func (s *Server) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	maintain := true
	if req.MaintainContext != nil {
		maintain = *req.MaintainContext
	}

	type reply struct {
		content string
		err     error
	}
	result := make(chan reply, 1)

	task := &scheduler.Task{
		ID:          "chat",
		Description: "AI chat completion",
		Action: func(ctx context.Context, _ scheduler.ProgressFunc) error {
			content, err := s.router.GetCompletion(ctx, req.Prompt, maintain)
			result <- reply{content: content, err: err}
			return err
		},
	}

	entryID, err := s.sched.Enqueue(task, parsePriority(req.Priority, scheduler.PriorityNormal))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	select {
	case r := <-result:
		if r.err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": r.err.Error(), "entry_id": entryID})
			return
		}
		c.JSON(http.StatusOK, gin.H{"content": r.content, "entry_id": entryID})
	case <-time.After(chatWait):
		s.sched.Cancel(entryID)
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "completion timed out", "entry_id": entryID})
	case <-c.Request.Context().Done():
		s.sched.Cancel(entryID)
	}
}

type buildRequest struct {
	Project  string `json:"project"`
	Priority string `json:"priority"`
}

// Build enqueues a build task and returns immediately with the entry id.
// Progress is observable via /ws/events and /api/v1/status.
func (s *Server) Build(c *gin.Context) {
	var req buildRequest
	_ = c.ShouldBindJSON(&req) // empty body builds the whole solution

	start := time.Now()
	task := &scheduler.Task{
		ID:          "build",
		Description: "build and repair",
		Action: func(ctx context.Context, report scheduler.ProgressFunc) error {
			var ok bool
			if req.Project == "" {
				ok = s.orch.BuildSolution(ctx, orchestrator.ProgressFunc(report))
			} else {
				ok = s.orch.BuildProject(ctx, req.Project, orchestrator.ProgressFunc(report))
			}
			s.recordBuild(ok, time.Since(start))
			return nil
		},
	}

	entryID, err := s.sched.Enqueue(task, parsePriority(req.Priority, scheduler.PriorityHigh))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"entry_id": entryID})
}

// Clean runs a solution clean synchronously.
func (s *Server) Clean(c *gin.Context) {
	if err := s.orch.CleanSolution(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleaned"})
}

// Status returns the current build status snapshot and queue length.
func (s *Server) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"build":        s.orch.GetBuildStatus(),
		"queue_length": s.sched.QueueLength(),
	})
}

// History returns recent conversation records from the audit store.
func (s *Server) History(c *gin.Context) {
	if s.audit == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "audit store not configured"})
		return
	}
	recs, err := s.audit.RecentMessages(limitParam(c, 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": recs})
}

// Analyses returns recent background analysis results.
func (s *Server) Analyses(c *gin.Context) {
	if s.audit == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "audit store not configured"})
		return
	}
	recs, err := s.audit.RecentAnalyses(limitParam(c, 20))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": recs})
}

// Builds returns recent build outcomes.
func (s *Server) Builds(c *gin.Context) {
	if s.audit == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "audit store not configured"})
		return
	}
	recs, err := s.audit.RecentBuilds(limitParam(c, 20))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"builds": recs})
}

type analyzeRequest struct {
	Project string `json:"project" binding:"required"`
}

// Analyze queues a background project analysis and returns immediately.
func (s *Server) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.router.QueueAnalysis(req.Project)
	c.JSON(http.StatusAccepted, gin.H{"queued": req.Project, "pending": s.router.AnalysisPending()})
}

// CancelTask cancels a queued or running scheduler entry.
func (s *Server) CancelTask(c *gin.Context) {
	id := c.Param("id")
	if s.sched.Cancel(id) {
		c.JSON(http.StatusOK, gin.H{"cancelled": id})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "no pending entry with that id"})
}

func (s *Server) recordBuild(ok bool, elapsed time.Duration) {
	if s.audit == nil {
		return
	}
	status := s.orch.GetBuildStatus()
	err := s.audit.SaveBuild(store.BuildRecord{
		Succeeded:      ok,
		SucceededUnits: status.SucceededUnits,
		FailedUnits:    status.FailedUnits,
		ErrorMessage:   status.ErrorMessage,
		DurationMS:     elapsed.Milliseconds(),
	})
	if err != nil {
		s.log.Warn("failed to persist build record", zap.Error(err))
	}
}

func parsePriority(s string, def scheduler.Priority) scheduler.Priority {
	switch s {
	case "low":
		return scheduler.PriorityLow
	case "normal":
		return scheduler.PriorityNormal
	case "high":
		return scheduler.PriorityHigh
	case "critical":
		return scheduler.PriorityCritical
	default:
		return def
	}
}

func limitParam(c *gin.Context, def int) int {
	if v, ok := c.GetQuery("limit"); ok {
		var n int
		for _, ch := range v {
			if ch < '0' || ch > '9' {
				return def
			}
			n = n*10 + int(ch-'0')
		}
		if n > 0 && n <= 1000 {
			return n
		}
	}
	return def
}
