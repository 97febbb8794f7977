// Package llm is the assistant proxy: one fixed system prompt per persona,
// the user's message and context blob forwarded to an OpenAI-compatible
// chat-completions endpoint, and a hard wall-clock timeout on the call.
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
	"time"
)

var (
	// ErrNoAPIKey means the proxy is not configured; a per-request 500.
	ErrNoAPIKey = errors.New("llm: api key not configured")
	// ErrTimeout means the bounded wait elapsed and the call was cancelled.
	ErrTimeout = errors.New("llm: upstream call timed out")
)

// VendorError is a non-2xx answer from the LLM vendor, passed through as a
// 502 with its detail.
type VendorError struct {
	Status int
	Detail string
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("llm: vendor returned %d: %s", e.Status, e.Detail)
}

// Persona system prompts. One per feature area; unknown personas are
// rejected at the handler.
var personas = map[string]string{
	"finance":  "You are a pragmatic personal finance coach inside a wellness tracker. Give short, concrete, non-judgmental guidance about budgeting, saving and spending habits. Never give regulated investment advice.",
	"sleep":    "You are a sleep hygiene coach inside a wellness tracker. Give short, practical advice grounded in common sleep hygiene practice. Encourage consistency over perfection.",
	"habits":   "You are a habit-building coach inside a wellness tracker. Help the user design small, sustainable habits and recover from missed days without guilt.",
	"recovery": "You are a supportive companion inside an addiction recovery tracker. Be warm and non-judgmental, encourage professional help where appropriate, and never moralize about relapses.",
}

// KnownPersona reports whether a persona has a configured system prompt.
func KnownPersona(name string) bool {
	_, ok := personas[name]
	return ok
}

type Client struct {
	apiKey  string
	baseURL string
	model   string
	timeout time.Duration
	http    *http.Client
}

func New(apiKey, baseURL, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		timeout: timeout,
		http:    &http.Client{},
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
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Reply forwards one user message for a persona and returns the model's
// answer. The context blob is the feature's current state (streak numbers,
// last night's sleep, budget summary) serialized by the caller.
func (c *Client) Reply(ctx context.Context, persona, message, contextBlob string) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}
	system, ok := personas[persona]
	if !ok {
		return "", fmt.Errorf("llm: unknown persona %q", persona)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if contextBlob != "" {
		system += "\n\nCurrent user context:\n" + contextBlob
	}
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: message},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &VendorError{Status: resp.StatusCode, Detail: strings.TrimSpace(string(raw))}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("llm: malformed vendor response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("llm: vendor response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
