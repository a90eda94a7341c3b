// Package ai talks to the LLM backend that produces note summaries, tags and
// category insights. The backend is Gemini, reached through the genai SDK.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/starford/auralis/internal/apperr"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.0-flash"

	temperature = 0.2
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("ai: api key not configured")

// Config holds the LLM endpoint settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls the LLM backend.
type Client struct {
	model    string
	api      *genai.Client
	setupErr error
}

// New creates a Client. Zero config fields fall back to defaults. Without an
// API key every call fails with ErrNotConfigured.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &Client{model: cfg.Model}
	if cfg.APIKey == "" {
		c.setupErr = ErrNotConfigured
		return c
	}
	c.api, c.setupErr = genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: strings.TrimRight(cfg.BaseURL, "/") + "/",
			Timeout: &cfg.Timeout,
		},
	})
	return c
}

// generate sends prompt with a response schema and decodes the JSON object
// the model answers with into out. It returns false when the model produced
// no text at all.
func (c *Client) generate(ctx context.Context, op, prompt string, schema *genai.Schema, out any) (bool, error) {
	if c.setupErr != nil {
		return false, apperr.Remote("ai", op, c.setupErr)
	}

	resp, err := c.api.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](temperature),
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	})
	if err != nil {
		return false, remoteError(op, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return false, apperr.Remote("ai", op, fmt.Errorf("decode model output: %w", err))
	}
	return true, nil
}

// remoteError keeps the HTTP status of API failures so callers can tell
// quota and auth problems from transport errors.
func remoteError(op string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &apperr.RemoteError{Service: "ai", Op: op, Status: apiErr.Code, Err: err}
	}
	return apperr.Remote("ai", op, err)
}

func stringList() *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}}
}
