package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openveil/pii-gateway/internal/config"
	"github.com/openveil/pii-gateway/internal/logger"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Generator is the single provider operation the gateway depends on.
// Implementations own wire details; callers own the prompt contents.
type Generator interface {
	Generate(ctx context.Context, target Target, systemPrompt, userMessage string) (string, error)
}

// Target identifies the provider endpoint a request should reach.
type Target struct {
	Name     string
	Endpoint config.ProviderEndpoint
	Local    bool
}

// Client calls LLM providers over plain HTTP. The provider call is the only
// network I/O in the pipeline and honors the caller-supplied context.
type Client struct {
	httpClient *http.Client
	config     config.ProvidersConfig
	logger     *logger.Logger
}

// NewClient creates a new provider client
func NewClient(cfg config.ProvidersConfig, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		config:     cfg,
		logger:     log,
	}
}

// Resolve picks the target endpoint for a request. An explicit provider name
// must exist in the external map; otherwise the configured default external
// provider is used, or the local endpoint when the caller asked for local
// execution.
func (c *Client) Resolve(explicitProvider string, isLocal bool) (Target, error) {
	if isLocal && explicitProvider == "" {
		return Target{Name: "local", Endpoint: c.config.Local, Local: true}, nil
	}

	name := explicitProvider
	if name == "" {
		name = c.config.Default
	}

	endpoint, ok := c.config.External[name]
	if !ok {
		return Target{}, fmt.Errorf("unknown provider: %q", name)
	}

	return Target{Name: name, Endpoint: endpoint}, nil
}

// Generate sends the prompt to the target and extracts the completion text
// from the JSON response via the endpoint's configured gjson path.
func (c *Client) Generate(ctx context.Context, target Target, systemPrompt, userMessage string) (string, error) {
	body, err := buildRequestBody(target.Endpoint, systemPrompt, userMessage)
	if err != nil {
		return "", fmt.Errorf("failed to build provider request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.Endpoint.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("provider call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read provider response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider returned HTTP %d", resp.StatusCode)
	}

	textPath := target.Endpoint.TextPath
	if textPath == "" {
		textPath = "response"
	}

	text := gjson.GetBytes(respBody, textPath)
	if !text.Exists() {
		return "", fmt.Errorf("provider response missing text at path %q", textPath)
	}

	c.logger.Debug("Provider call completed",
		zap.String("provider", target.Name),
		zap.Bool("local", target.Local),
		zap.Duration("duration", time.Since(start)),
		zap.Int("response_bytes", len(respBody)),
	)

	return text.String(), nil
}

// buildRequestBody assembles the provider request in the endpoint's format.
func buildRequestBody(endpoint config.ProviderEndpoint, systemPrompt, userMessage string) ([]byte, error) {
	switch endpoint.Format {
	case "chat":
		type message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}
		payload := struct {
			Model    string    `json:"model"`
			Messages []message `json:"messages"`
		}{Model: endpoint.Model}
		if systemPrompt != "" {
			payload.Messages = append(payload.Messages, message{Role: "system", Content: systemPrompt})
		}
		payload.Messages = append(payload.Messages, message{Role: "user", Content: userMessage})
		return json.Marshal(payload)
	default:
		payload := struct {
			Model  string `json:"model"`
			System string `json:"system,omitempty"`
			Prompt string `json:"prompt"`
			Stream bool   `json:"stream"`
		}{Model: endpoint.Model, System: systemPrompt, Prompt: userMessage}
		return json.Marshal(payload)
	}
}
