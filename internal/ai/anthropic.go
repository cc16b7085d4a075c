package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const anthropicVersion = "2023-06-01"

// AnthropicClient talks to the Anthropic messages API.
type AnthropicClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float32   `json:"temperature,omitempty"`
	System      string    `json:"system,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnthropicClient creates an Anthropic client. An empty apiKey yields an
// unavailable client.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	return &AnthropicClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://api.anthropic.com/v1/messages",
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (a *AnthropicClient) Provider() Provider { return ProviderAnthropic }

func (a *AnthropicClient) Available() bool { return a.apiKey != "" }

// Complete implements Client. System-role messages are lifted into the
// request's system field; the messages array carries only user/assistant
// turns, as the API requires.
func (a *AnthropicClient) Complete(ctx context.Context, messages []Message, opts Options) (string, *Usage, error) {
	var systemParts []string
	turns := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			systemParts = append(systemParts, m.Content)
			continue
		}
		turns = append(turns, m)
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}

	req := &anthropicRequest{
		Model:       a.model,
		Messages:    turns,
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
		System:      strings.Join(systemParts, "\n\n"),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", nil, fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("anthropic: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", nil, statusError("anthropic", resp.StatusCode, data)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", nil, fmt.Errorf("anthropic: unmarshal response: %w", err)
	}
	if parsed.Error != nil {
		return "", nil, fmt.Errorf("anthropic: api error: %s", parsed.Error.Message)
	}
	if len(parsed.Content) == 0 || parsed.Content[0].Type != "text" {
		return "", nil, fmt.Errorf("anthropic: no text content in response")
	}

	usage := &Usage{
		PromptTokens:     parsed.Usage.InputTokens,
		CompletionTokens: parsed.Usage.OutputTokens,
	}
	return parsed.Content[0].Text, usage, nil
}
