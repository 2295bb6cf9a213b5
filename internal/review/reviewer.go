// Package review asks a chat model for feedback on new code and orchestrates the full
// acquire, retrieve, prompt and review pipeline.
package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/minaoshi/internal/models"
	"github.com/hyperjump/minaoshi/internal/prompt"
)

// Reviewer turns a prompt into review text.
type Reviewer interface {
	Review(ctx context.Context, prompt string) (string, error)
}

// OpenAIConfig configures an OpenAI-compatible chat completions endpoint.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Defaults used when OpenAIConfig fields are zero.
const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultModel     = "gpt-4o-mini"
	DefaultMaxTokens = 500
)

// OpenAIReviewer calls POST {BaseURL}/chat/completions. Requests are retried on 429 and 5xx.
type OpenAIReviewer struct {
	cfg     OpenAIConfig
	http    *http.Client
	backoff time.Duration
}

// NewOpenAIReviewer creates a reviewer. Temperature is used as given.
func NewOpenAIReviewer(cfg OpenAIConfig) *OpenAIReviewer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAIReviewer{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, backoff: 200 * time.Millisecond}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// Review sends the prompt with the fixed system message and returns the first choice.
// Any failure, including an empty completion, wraps models.ErrReviewServiceFailure.
func (r *OpenAIReviewer) Review(ctx context.Context, p string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: r.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt.SystemMessage},
			{Role: "user", Content: p},
		},
		Temperature: r.cfg.Temperature,
		MaxTokens:   r.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", models.ErrReviewServiceFailure, err)
	}

	resp, err := r.do(ctx, body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrReviewServiceFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: chat http %d: %s", models.ErrReviewServiceFailure, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", models.ErrReviewServiceFailure, err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: empty completion", models.ErrReviewServiceFailure)
	}
	return out.Choices[0].Message.Content, nil
}

// do posts body, retrying up to three times on 429 and 5xx responses.
func (r *OpenAIReviewer) do(ctx context.Context, body []byte) (*http.Response, error) {
	const attempts = 3
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if r.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
		}
		resp, err := r.http.Do(req)
		if err != nil {
			return nil, err
		}
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode/100 == 5
		if !retry || attempt == attempts-1 {
			return resp, nil
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.backoff + time.Duration(attempt)*100*time.Millisecond):
		}
	}
}

// ReviewerFunc adapts a function to Reviewer.
type ReviewerFunc func(ctx context.Context, prompt string) (string, error)

// Review calls f.
func (f ReviewerFunc) Review(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
