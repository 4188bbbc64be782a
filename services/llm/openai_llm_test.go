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
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/SeekIn/services/evolution/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-3.5-turbo",
  "choices": [
    {"index": 0, "message": {"role": "assistant", "content": "hello cells"}, "finish_reason": "stop"}
  ]
}`

type capturedRequest struct {
	Path   string
	Auth   string
	Body   map[string]any
	Called int
}

func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Called++
		captured.Path = r.URL.Path
		captured.Auth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &captured.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func newTestClient(t *testing.T, baseURL string, mutate func(*OpenAIConfig)) *OpenAIClient {
	t.Helper()
	cfg := OpenAIConfig{
		APIKey:       "sk-test",
		BaseURL:      baseURL,
		SystemPrompt: "You design cells.",
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	client, err := NewOpenAIClient(cfg)
	require.NoError(t, err)
	return client
}

func TestNewOpenAIClient_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{APIKey: "  "})

	assert.Error(t, err)
}

func TestNewOpenAIClient_AppliesDefaults(t *testing.T) {
	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test"})

	require.NoError(t, err)
	assert.Equal(t, DefaultModel, client.Model())
	assert.Equal(t, DefaultTemperature, client.cfg.Temperature)
	assert.Equal(t, DefaultMaxTokens, client.cfg.MaxTokens)
	assert.Equal(t, DefaultRequestTimeout, client.cfg.RequestTimeout)
	assert.Nil(t, client.limiter)
}

func TestGenerate_SendsChatCompletionRequest(t *testing.T) {
	srv, captured := newTestServer(t, http.StatusOK, completionBody)
	client := newTestClient(t, srv.URL+"/v1/", nil)

	text, err := client.Generate(context.Background(), "evolve please")

	require.NoError(t, err)
	assert.Equal(t, "hello cells", text)
	assert.Equal(t, "/v1/chat/completions", captured.Path)
	assert.Equal(t, "Bearer sk-test", captured.Auth)
	assert.Equal(t, "gpt-3.5-turbo", captured.Body["model"])
	assert.InDelta(t, 0.8, captured.Body["temperature"], 1e-6)
	assert.Equal(t, 1000.0, captured.Body["max_tokens"])

	messages, ok := captured.Body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "You design cells.", messages[0].(map[string]any)["content"])
	assert.Equal(t, "user", messages[1].(map[string]any)["role"])
	assert.Equal(t, "evolve please", messages[1].(map[string]any)["content"])
}

func TestGenerate_NonSuccessStatusIsTransportError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"api error body", http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`},
		{"plain body", http.StatusTooManyRequests, `slow down`},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.status, tt.body)
			client := newTestClient(t, srv.URL, nil)

			_, err := client.Generate(context.Background(), "p")

			var tErr *datatypes.TransportError
			require.True(t, errors.As(err, &tErr), "got %v", err)
			assert.Equal(t, tt.status, tErr.StatusCode)
			assert.Contains(t, tErr.Error(), "HTTP")
		})
	}
}

func TestGenerate_ZeroChoicesIsTransportError(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"id":"x","object":"chat.completion","choices":[]}`)
	client := newTestClient(t, srv.URL, nil)

	_, err := client.Generate(context.Background(), "p")

	var tErr *datatypes.TransportError
	require.True(t, errors.As(err, &tErr))
	assert.Contains(t, tErr.Error(), "no choices")
}

func TestGenerate_TimeoutIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	client := newTestClient(t, srv.URL, func(c *OpenAIConfig) { c.RequestTimeout = 50 * time.Millisecond })

	_, err := client.Generate(context.Background(), "p")

	var tErr *datatypes.TransportError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, 0, tErr.StatusCode)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestGenerate_ConnectionFailureIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	client := newTestClient(t, url, nil)

	_, err := client.Generate(context.Background(), "p")

	var tErr *datatypes.TransportError
	require.True(t, errors.As(err, &tErr))
	assert.False(t, strings.Contains(tErr.Error(), "HTTP"))
}

func TestGenerate_RateLimiterHonoursCancellation(t *testing.T) {
	srv, captured := newTestServer(t, http.StatusOK, completionBody)
	client := newTestClient(t, srv.URL, func(c *OpenAIConfig) { c.RequestsPerMinute = 1 })

	_, err := client.Generate(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Generate(ctx, "second")

	var tErr *datatypes.TransportError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, 1, captured.Called)
}

func TestGenerationClientFunc(t *testing.T) {
	var f GenerationClient = GenerationClientFunc(func(_ context.Context, p string) (string, error) {
		return strings.ToUpper(p), nil
	})

	out, err := f.Generate(context.Background(), "abc")

	require.NoError(t, err)
	assert.Equal(t, "ABC", out)
}
