package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ProviderError is returned when the text-generation provider answers
// with a non-success status.
type ProviderError struct {
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("text-generation provider returned status %d: %s", e.Status, e.Body)
}

// Generator is the text-generation contract the pipeline depends on.
type Generator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Client calls an OpenAI-compatible chat-completions endpoint.
type Client struct {
	apiKey string
	model  string
	client *resty.Client
}

var _ Generator = (*Client)(nil)

// NewClient creates a new text-generation client
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		apiKey: apiKey,
		model:  model,
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(120*time.Second).
			SetHeader("User-Agent", "signalbrief-pipeline/1.0"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends the system contract and user corpus and returns the raw
// response text. The caller owns interpretation of that text; contract
// violations are a parsing concern, not a transport error.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(chatRequest{
			Model: c.model,
			Messages: []chatMessage{
				{Role: "system", Content: system},
				{Role: "user", Content: user},
			},
		}).
		Post("/v1/chat/completions")

	if err != nil {
		return "", fmt.Errorf("text-generation request failed: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", &ProviderError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}

	var parsed chatResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return "", fmt.Errorf("failed to parse text-generation response: %w", err)
	}

	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("text-generation response contained no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}
