package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAIClient talks to the OpenAI chat completions API.
type OpenAIClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAIClient creates an OpenAI client. An empty apiKey yields an
// unavailable client.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://api.openai.com/v1/chat/completions",
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (o *OpenAIClient) Provider() Provider { return ProviderOpenAI }

func (o *OpenAIClient) Available() bool { return o.apiKey != "" }

// Complete implements Client.
func (o *OpenAIClient) Complete(ctx context.Context, messages []Message, opts Options) (string, *Usage, error) {
	req := &openAIRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", nil, fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("openai: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", nil, statusError("openai", resp.StatusCode, data)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", nil, fmt.Errorf("openai: unmarshal response: %w", err)
	}
	if parsed.Error != nil {
		return "", nil, fmt.Errorf("openai: api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", nil, fmt.Errorf("openai: empty choices in response")
	}

	usage := &Usage{
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
	}
	return parsed.Choices[0].Message.Content, usage, nil
}

// statusError maps common HTTP failures to readable errors.
func statusError(provider string, status int, body []byte) error {
	switch status {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s: rate limit exceeded (status 429)", provider)
	case http.StatusUnauthorized:
		return fmt.Errorf("%s: invalid API key (status 401)", provider)
	case http.StatusForbidden:
		return fmt.Errorf("%s: access denied (status 403)", provider)
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%s: service temporarily unavailable (status %d)", provider, status)
	default:
		return fmt.Errorf("%s: request failed with status %d: %s", provider, status, string(body))
	}
}
