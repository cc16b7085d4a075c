package ai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"
)

// copilotProbeTTL caches the agent availability probe result.
const copilotProbeTTL = 30 * time.Second

// CopilotClient integrates with a local Copilot agent on a best-effort
// basis. There is no official stable contract: the agent is detected by
// probing a configured endpoint, and absence of a working integration is a
// normal "unavailable provider" condition, not an error.
//
// The agent is expected to expose an OpenAI-compatible chat completions
// endpoint, the de facto shape local Copilot proxies speak.
type CopilotClient struct {
	agentURL   string
	enabled    bool
	httpClient *http.Client

	mu        sync.Mutex
	probedAt  time.Time
	reachable bool
}

// NewCopilotClient creates a Copilot client. The agent endpoint comes from
// COPILOT_AGENT_URL; without it (or with enabled=false) the client is
// permanently unavailable.
func NewCopilotClient(enabled bool) *CopilotClient {
	return &CopilotClient{
		agentURL: os.Getenv("COPILOT_AGENT_URL"),
		enabled:  enabled,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (c *CopilotClient) Provider() Provider { return ProviderCopilot }

// Available probes the agent endpoint, caching the result briefly so
// selection decisions stay cheap and deterministic.
func (c *CopilotClient) Available() bool {
	if !c.enabled || c.agentURL == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Since(c.probedAt) < copilotProbeTTL {
		return c.reachable
	}

	probe := &http.Client{Timeout: 2 * time.Second}
	resp, err := probe.Get(c.agentURL + "/health")
	if err == nil {
		resp.Body.Close()
	}
	c.reachable = err == nil && resp.StatusCode < http.StatusInternalServerError
	c.probedAt = time.Now()
	return c.reachable
}

// Complete forwards the request to the agent's OpenAI-compatible endpoint.
func (c *CopilotClient) Complete(ctx context.Context, messages []Message, opts Options) (string, *Usage, error) {
	if !c.Available() {
		return "", nil, fmt.Errorf("copilot: agent not reachable at %q", c.agentURL)
	}
	proxy := &OpenAIClient{
		apiKey:     "copilot",
		model:      "copilot-codex",
		baseURL:    c.agentURL + "/v1/chat/completions",
		httpClient: c.httpClient,
	}
	return proxy.Complete(ctx, messages, opts)
}
