// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/AleutianAI/SeekIn/services/evolution/datatypes"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// =============================================================================
// Configuration
// =============================================================================

const (
	DefaultModel          = "gpt-3.5-turbo"
	DefaultTemperature    = float32(0.8)
	DefaultMaxTokens      = 1000
	DefaultRequestTimeout = 60 * time.Second
)

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	// APIKey is the bearer credential. Required.
	APIKey string

	// BaseURL overrides the API root, e.g. "http://localhost:11434/v1" for
	// any OpenAI-compatible server. Empty uses the go-openai default.
	BaseURL string

	// Model defaults to DefaultModel.
	Model string

	// Temperature defaults to DefaultTemperature. Zero means unset, since the
	// request omits a zero temperature.
	Temperature float32

	// MaxTokens defaults to DefaultMaxTokens.
	MaxTokens int

	// SystemPrompt is sent as the system message. Empty sends only the
	// user message.
	SystemPrompt string

	// RequestTimeout bounds one call. Defaults to DefaultRequestTimeout.
	RequestTimeout time.Duration

	// RequestsPerMinute limits call rate on this client. 0 disables.
	RequestsPerMinute int

	// HTTPClient overrides the transport. Mainly for tests.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func applyOpenAIDefaults(cfg *OpenAIConfig) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
}

// =============================================================================
// Client
// =============================================================================

// OpenAIClient is a GenerationClient backed by the chat completions API.
//
// # Thread Safety
//
// Safe for concurrent use.
type OpenAIClient struct {
	client  *openai.Client
	cfg     OpenAIConfig
	limiter *rate.Limiter
}

// NewOpenAIClient creates a client from cfg.
//
// # Inputs
//
//   - cfg: Client configuration. APIKey must be set.
//
// # Outputs
//
//   - *OpenAIClient: Ready client.
//   - error: Non-nil if the API key is missing.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	applyOpenAIDefaults(&cfg)

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	cfg.Logger.Info("Initializing OpenAI client", "model", cfg.Model, "base_url", clientCfg.BaseURL)
	return &OpenAIClient{
		client:  openai.NewClientWithConfig(clientCfg),
		cfg:     cfg,
		limiter: limiter,
	}, nil
}

// Model returns the configured model name.
func (o *OpenAIClient) Model() string {
	return o.cfg.Model
}

// Generate implements the GenerationClient interface.
//
// # Description
//
// Sends {model, messages: [system, user], temperature, max_tokens} and
// returns the content of the first choice. The call is bounded by
// RequestTimeout on top of any deadline already on ctx.
//
// # Outputs
//
//   - string: Raw content of choices[0].message.
//   - error: *datatypes.TransportError on any failure.
func (o *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return "", &datatypes.TransportError{Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if o.cfg.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: o.cfg.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:       o.cfg.Model,
		Messages:    messages,
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
	}

	o.cfg.Logger.Debug("Generating text via OpenAI", "model", o.cfg.Model, "prompt_chars", len(prompt))
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		tErr := &datatypes.TransportError{StatusCode: statusCodeOf(err), Err: err}
		o.cfg.Logger.Error("OpenAI API call failed", "status", tErr.StatusCode, "error", err)
		return "", tErr
	}

	if len(resp.Choices) == 0 {
		o.cfg.Logger.Warn("OpenAI returned no choices")
		return "", &datatypes.TransportError{StatusCode: http.StatusOK, Err: errors.New("response contained no choices")}
	}
	o.cfg.Logger.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

// statusCodeOf extracts the HTTP status from go-openai errors, 0 if none.
func statusCodeOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
