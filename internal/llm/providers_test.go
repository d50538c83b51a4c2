package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/norkodev/finbot/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaClient_Complete(t *testing.T) {
	var got ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Model: got.Model, Response: `[]`, Done: true})
	}))
	defer server.Close()

	client, err := newOllamaClient(Config{BaseURL: server.URL + "/", Temperature: 0.1})
	require.NoError(t, err)

	content, err := client.Complete(context.Background(), Request{System: "sys", Prompt: "hola"})
	require.NoError(t, err)
	assert.Equal(t, "[]", content)

	assert.Equal(t, defaultOllamaModel, got.Model)
	assert.Equal(t, "hola", got.Prompt)
	assert.Equal(t, "sys", got.System)
	assert.Equal(t, "json", got.Format)
	assert.False(t, got.Stream)
	assert.Equal(t, 500, got.Options.NumPredict)
	assert.InDelta(t, 0.1, got.Options.Temperature, 0.0001)
}

func TestOllamaClient_Errors(t *testing.T) {
	tests := []struct {
		check  func(t *testing.T, err error)
		name   string
		status int
	}{
		{
			name:   "server error is retryable",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				assert.True(t, common.IsRetryable(err))
			},
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, common.ErrRateLimit)
			},
		},
		{
			name:   "model missing is permanent",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				assert.False(t, common.IsRetryable(err))
				assert.Contains(t, err.Error(), "status 404")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer server.Close()

			client, err := newOllamaClient(Config{BaseURL: server.URL})
			require.NoError(t, err)

			_, err = client.Complete(context.Background(), Request{Prompt: "x"})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestOllamaClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := newOllamaClient(Config{BaseURL: url})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), Request{Prompt: "x"})
	assert.True(t, common.IsServiceUnavailable(err))
	assert.False(t, common.IsRetryable(err))
}

func TestOllamaClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client, err := newOllamaClient(Config{BaseURL: server.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.Complete(ctx, Request{Prompt: "x"})
	require.Error(t, err)
	assert.False(t, common.IsServiceUnavailable(err), "a timeout is not an outage")
}

func TestOllamaClient_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3:latest","model":"llama3:latest"},{"name":"qwen2.5:7b","model":"qwen2.5:7b"}]}`))
	}))
	defer server.Close()

	tests := []struct {
		model   string
		wantErr bool
	}{
		{model: "qwen2.5:7b"},
		{model: "llama3"},
		{model: "mistral", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			client, err := newOllamaClient(Config{BaseURL: server.URL, Model: tt.model})
			require.NoError(t, err)

			err = client.HealthCheck(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestOpenAIClient_Complete(t *testing.T) {
	var got openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"x","choices":[{"message":{"role":"assistant","content":"[{\"id\":1}]"},"index":0}]}`))
	}))
	defer server.Close()

	client, err := newOpenAIClient(Config{APIKey: "sk-test", BaseURL: server.URL + "/v1", Model: "gpt-test"})
	require.NoError(t, err)

	content, err := client.Complete(context.Background(), Request{System: "sys", Prompt: "hola"})
	require.NoError(t, err)
	assert.Equal(t, `[{"id":1}]`, content)

	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "hola", got.Messages[1].Content)
}

func TestOpenAIClient_RequiresKey(t *testing.T) {
	_, err := newOpenAIClient(Config{})
	assert.Error(t, err)
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client, err := newOpenAIClient(Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), Request{Prompt: "x"})
	assert.ErrorContains(t, err, "no completion choices")
}

func TestNewClient(t *testing.T) {
	ctx := context.Background()

	client, err := NewClient(ctx, Config{})
	require.NoError(t, err)
	assert.Equal(t, "ollama", client.Provider())

	client, err = NewClient(ctx, Config{Provider: "OpenAI", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openai", client.Provider())

	_, err = NewClient(ctx, Config{Provider: "gemini"})
	assert.Error(t, err, "gemini needs an API key")

	_, err = NewClient(ctx, Config{Provider: "claude"})
	assert.ErrorContains(t, err, "unsupported LLM provider")
}
