package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/DannyJanmaat/VSPilot-sub000/internal/logging"
	"github.com/DannyJanmaat/VSPilot-sub000/internal/metrics"
)

// NotConfiguredMessage is returned by GetCompletion when no provider is
// available. Missing configuration is an informational result, never an
// error.
const NotConfiguredMessage = "No AI provider is configured. Set OPENAI_API_KEY or ANTHROPIC_API_KEY, or enable the Copilot integration, to use AI assistance."

// Keyword heuristics for Auto provider selection.
var (
	codeVerbs    = []string{"generate", "write", "implement", "create", "refactor", "fix", "add", "scaffold"}
	explainVerbs = []string{"explain", "why", "describe", "what", "how", "summarize", "compare"}
)

// AuditSink persists conversation turns and analysis results. Optional; a
// nil sink keeps history in memory only.
type AuditSink interface {
	SaveMessage(role, content string, provider Provider) error
	SaveAnalysis(subject, result string) error
}

// RouterConfig controls provider selection and context management.
type RouterConfig struct {
	// Selected is the explicitly configured provider; ProviderAuto enables
	// heuristic selection.
	Selected Provider
	// AutoSwitch substitutes the first available provider in the fixed
	// fallback order when the chosen one is not available. Defaults on.
	AutoSwitch bool
	// ContextWindow bounds how many recent messages accompany each call.
	ContextWindow int
	MaxTokens     int
	Temperature   float32
	// RatePerMinute limits calls per provider. Zero disables limiting.
	RatePerMinute int
}

// Router selects among the registered backends, maintains conversation
// context, and drains a background analysis queue with single-flight
// semantics.
type Router struct {
	cfg      RouterConfig
	clients  map[Provider]Client
	limiters map[Provider]*rate.Limiter
	history  *History
	sink     AuditSink
	log      *zap.Logger

	analysisMu     sync.Mutex
	analysisQueue  []string
	analysisActive atomic.Bool
	analysisRuns   atomic.Int64
}

// NewRouter creates a Router over the given backends. Unavailable clients
// may be registered; they are skipped at selection time.
func NewRouter(cfg RouterConfig, sink AuditSink, clients ...Client) *Router {
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 10
	}
	if cfg.Selected == "" {
		cfg.Selected = ProviderAuto
	}

	r := &Router{
		cfg:      cfg,
		clients:  make(map[Provider]Client, len(clients)),
		limiters: make(map[Provider]*rate.Limiter, len(clients)),
		history:  NewHistory(),
		sink:     sink,
		log:      logging.L().Named("ai"),
	}
	for _, c := range clients {
		r.clients[c.Provider()] = c
		if cfg.RatePerMinute > 0 {
			r.limiters[c.Provider()] = rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60.0), cfg.RatePerMinute)
		}
	}
	return r
}

// History exposes the full untrimmed conversation log.
func (r *Router) History() *History { return r.history }

// Availability reports each registered provider's current availability.
func (r *Router) Availability() map[Provider]bool {
	out := make(map[Provider]bool, len(r.clients))
	for p, c := range r.clients {
		out[p] = c.Available()
	}
	return out
}

// GetCompletion routes a prompt to the selected provider and returns the
// reply text. When maintainContext is true the prompt/response pair is
// appended to the conversation history. An unconfigured provider yields
// NotConfiguredMessage with a nil error; only transport-level failure
// returns an error.
func (r *Router) GetCompletion(ctx context.Context, prompt string, maintainContext bool) (string, error) {
	return r.complete(ctx, prompt, maintainContext, false)
}

// GetStructuredCompletion is GetCompletion for prompts that require a
// JSON-shaped reply; structured requests prefer OpenAI when configured.
func (r *Router) GetStructuredCompletion(ctx context.Context, prompt string) (string, error) {
	return r.complete(ctx, prompt, false, true)
}

func (r *Router) complete(ctx context.Context, prompt string, maintainContext, structured bool) (string, error) {
	provider, ok := r.SelectProvider(prompt, structured)
	if !ok {
		r.log.Info("completion requested with no provider configured")
		return NotConfiguredMessage, nil
	}
	client := r.clients[provider]

	messages := append(r.history.Window(r.cfg.ContextWindow), Message{Role: RoleUser, Content: prompt})

	if lim := r.limiters[provider]; lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return "", fmt.Errorf("ai: rate limit wait aborted: %w", err)
		}
	}

	m := metrics.Get()
	start := time.Now()
	content, usage, err := client.Complete(ctx, messages, Options{
		MaxTokens:    r.cfg.MaxTokens,
		Temperature:  r.cfg.Temperature,
		JSONResponse: structured,
	})
	m.AIRequestSeconds.WithLabelValues(string(provider)).Observe(time.Since(start).Seconds())
	if err != nil {
		// Fallback is a selection-time decision only; a failed call is
		// surfaced to the caller, not retried on another provider.
		m.AIRequestsTotal.WithLabelValues(string(provider), "error").Inc()
		r.log.Error("provider call failed",
			zap.String("provider", string(provider)),
			zap.Error(err))
		return "", fmt.Errorf("ai: %s completion failed: %w", provider, err)
	}
	m.AIRequestsTotal.WithLabelValues(string(provider), "ok").Inc()
	if usage != nil {
		m.AITokensUsed.WithLabelValues(string(provider), "prompt").Add(float64(usage.PromptTokens))
		m.AITokensUsed.WithLabelValues(string(provider), "completion").Add(float64(usage.CompletionTokens))
	}

	if maintainContext {
		r.history.Append(RoleUser, prompt)
		r.history.Append(RoleAssistant, content)
		if r.sink != nil {
			if err := r.sink.SaveMessage(RoleUser, prompt, provider); err != nil {
				r.log.Warn("failed to persist user message", zap.Error(err))
			}
			if err := r.sink.SaveMessage(RoleAssistant, content, provider); err != nil {
				r.log.Warn("failed to persist assistant message", zap.Error(err))
			}
		}
	}
	return content, nil
}

// SelectProvider resolves which backend serves a prompt. Deterministic for
// a fixed configuration and availability state. The boolean is false when
// no provider is available at all.
func (r *Router) SelectProvider(prompt string, structured bool) (Provider, bool) {
	preferred := r.preferred(prompt, structured)

	if preferred != "" && r.available(preferred) {
		return preferred, true
	}

	// Substitute the first available provider in the fixed order. When a
	// provider was explicitly chosen, substitution requires AutoSwitch.
	if preferred == "" || r.cfg.AutoSwitch {
		for _, p := range fallbackOrder {
			if r.available(p) {
				if preferred != "" && p != preferred {
					metrics.Get().AIFallbacksTotal.WithLabelValues(string(preferred), string(p)).Inc()
					r.log.Info("substituting provider",
						zap.String("preferred", string(preferred)),
						zap.String("using", string(p)))
				}
				return p, true
			}
		}
	}
	return "", false
}

// preferred applies the selection rules before availability is considered.
// An explicitly configured provider wins outright. Under Auto: structured
// output prefers OpenAI when configured, code-generation verbs bias toward
// Copilot, explanatory verbs toward Anthropic. Empty means "no preference":
// take the first available in the fixed order.
func (r *Router) preferred(prompt string, structured bool) Provider {
	if r.cfg.Selected != ProviderAuto {
		return r.cfg.Selected
	}

	if structured && r.available(ProviderOpenAI) {
		return ProviderOpenAI
	}

	lower := strings.ToLower(prompt)
	for _, v := range codeVerbs {
		if lower == v || strings.HasPrefix(lower, v+" ") {
			return ProviderCopilot
		}
	}
	for _, v := range explainVerbs {
		if lower == v || strings.HasPrefix(lower, v+" ") {
			return ProviderAnthropic
		}
	}
	return ""
}

func (r *Router) available(p Provider) bool {
	c, ok := r.clients[p]
	return ok && c.Available()
}
