// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm talks to the Claude Messages API: bibliographic parsing of
// page text, topic classification against the taxonomy, and the optional
// summary and domain-attribute enrichments.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pdiddy/literature-manager/internal/httputil"
	"github.com/pdiddy/literature-manager/pkg/types"
)

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

const anthropicVersion = "2023-06-01"

var (
	// ErrMissingAPIKey means no Anthropic key was configured.
	ErrMissingAPIKey = errors.New("anthropic API key not configured")

	// ErrAuth means the API rejected the key (401/403).
	ErrAuth = errors.New("anthropic API rejected credentials")

	// ErrUnavailable covers transport failures, rate limits, and other
	// non-success responses after retries.
	ErrUnavailable = errors.New("anthropic API unavailable")

	// ErrInvalidJSON means the model output could not be decoded, even
	// after one retry.
	ErrInvalidJSON = errors.New("LLM returned invalid JSON")
)

// Client sends a single-turn prompt and returns the text reply.
type Client interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Claude is the production Client.
type Claude struct {
	APIKey      string
	Model       string
	HTTP        *http.Client
	MaxAttempts int
}

// NewClaude builds a Claude client. It fails with ErrMissingAPIKey when
// cfg carries no key.
func NewClaude(cfg types.AIConfig) (*Claude, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	return &Claude{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		HTTP:        &http.Client{Timeout: cfg.Timeout},
		MaxAttempts: cfg.MaxRetries,
	}, nil
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	Messages    []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Complete implements Client. Requests run at temperature 0.
func (c *Claude) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if c.APIKey == "" {
		return "", ErrMissingAPIKey
	}

	bodyBytes, err := json.Marshal(claudeRequest{
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: 0,
		Messages:    []claudeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := httputil.DoWithRetry(ctx, c.HTTP, req, c.MaxAttempts)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: HTTP %d", ErrAuth, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: HTTP %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}
	for _, block := range cResp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("%w: no text content in response", ErrUnavailable)
}
