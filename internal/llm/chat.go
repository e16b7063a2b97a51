package llm

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

const (
	CerebrasEndpoint = "https://api.cerebras.ai/v1/chat/completions"
	OpenAIEndpoint   = "https://api.openai.com/v1/chat/completions"
)

// Options tunes a single generation.
type Options struct {
	// System overrides the client's default system message when non-empty.
	System      string
	Temperature float64
	MaxTokens   int
}

// ChatClient talks to an OpenAI-compatible chat completions endpoint.
type ChatClient struct {
	HTTPClient *http.Client
	Endpoint   string
	APIKey     string
	Model      string
	// Name labels errors and metrics, e.g. "cerebras".
	Name string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatCompletionsResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

func NewCerebrasClient(apiKey, model string) *ChatClient {
	return &ChatClient{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Endpoint:   CerebrasEndpoint,
		APIKey:     apiKey,
		Model:      model,
		Name:       "cerebras",
	}
}

func NewOpenAIClient(apiKey, model string) *ChatClient {
	return &ChatClient{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Endpoint:   OpenAIEndpoint,
		APIKey:     apiKey,
		Model:      model,
		Name:       "openai",
	}
}

const defaultSystem = "You are a professional, friendly job interviewer. Keep every reply short and conversational."

// Generate returns the first choice for prompt. An empty reply is not an error.
func (c *ChatClient) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("%s api key missing", c.Name)
	}
	system := opts.System
	if system == "" {
		system = defaultSystem
	}
	messages := []chatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: prompt},
	}
	temp := opts.Temperature
	reqBody, _ := json.Marshal(chatCompletionsRequest{
		Model:       c.Model,
		Messages:    messages,
		Temperature: &temp,
		MaxTokens:   opts.MaxTokens,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%s error: status=%d body=%s", c.Name, resp.StatusCode, string(b))
	}
	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("%s decode: %w", c.Name, err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("%s: empty choices", c.Name)
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}
