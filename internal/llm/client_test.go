package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionResponse(content string) chatResponse {
	var resp chatResponse
	resp.Choices = append(resp.Choices, struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}{})
	resp.Choices[0].Message.Content = content
	return resp
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	os.Unsetenv("LLM_API_KEY")
	_, err := NewClient()
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestNewClient_APIKeyFromEnv(t *testing.T) {
	t.Setenv("LLM_API_KEY", "env-key")

	client, err := NewClient()
	require.NoError(t, err)
	assert.Equal(t, "env-key", client.apiKey)
}

func TestNewClient_APIKeyFromOption(t *testing.T) {
	client, err := NewClient(WithAPIKey("option-key"))
	require.NoError(t, err)
	assert.Equal(t, "option-key", client.apiKey)
}

func TestHTTPClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req chatRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		require.NoError(t, err)
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "be brief", req.Messages[0].Content)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Equal(t, "describe this", req.Messages[1].Content)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completionResponse("a description"))
	}))
	defer server.Close()

	client, err := NewClient(WithAPIKey("test-key"), WithBaseURL(server.URL), WithModel("test-model"))
	require.NoError(t, err)

	got, err := client.Complete(context.Background(), CompletionRequest{
		System: "be brief",
		Prompt: "describe this",
	})
	require.NoError(t, err)
	assert.Equal(t, "a description", got)
}

func TestHTTPClient_Complete_WithImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw struct {
			Messages []struct {
				Role    string          `json:"role"`
				Content json.RawMessage `json:"content"`
			} `json:"messages"`
		}
		err := json.NewDecoder(r.Body).Decode(&raw)
		require.NoError(t, err)
		require.Len(t, raw.Messages, 1)

		// The user message becomes a content-part array carrying the image.
		var parts []contentPart
		err = json.Unmarshal(raw.Messages[0].Content, &parts)
		require.NoError(t, err)
		require.Len(t, parts, 2)
		assert.Equal(t, "text", parts[0].Type)
		assert.Equal(t, "describe this slide", parts[0].Text)
		assert.Equal(t, "image_url", parts[1].Type)
		require.NotNil(t, parts[1].ImageURL)
		assert.Equal(t, "data:image/png;base64,aW1n", parts[1].ImageURL.URL)

		json.NewEncoder(w).Encode(completionResponse("slide contents"))
	}))
	defer server.Close()

	client, err := NewClient(WithAPIKey("test-key"), WithBaseURL(server.URL))
	require.NoError(t, err)

	got, err := client.Complete(context.Background(), CompletionRequest{
		Prompt:      "describe this slide",
		ImageBase64: "aW1n",
	})
	require.NoError(t, err)
	assert.Equal(t, "slide contents", got)
}

func TestHTTPClient_Complete_EmptyPrompt(t *testing.T) {
	client, err := NewClient(WithAPIKey("test-key"))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), CompletionRequest{})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestHTTPClient_Complete_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer server.Close()

	client, err := NewClient(WithAPIKey("test-key"), WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestHTTPClient_Complete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "model overloaded"},
		})
	}))
	defer server.Close()

	client, err := NewClient(WithAPIKey("test-key"), WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestHTTPClient_Complete_RetriesServerError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(completionResponse("recovered"))
	}))
	defer server.Close()

	client, err := NewClient(
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
		WithMaxRetries(3),
		WithBaseBackoff(time.Millisecond),
	)
	require.NoError(t, err)

	got, err := client.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestHTTPClient_Complete_RetriesRateLimit(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(completionResponse("ok"))
	}))
	defer server.Close()

	client, err := NewClient(
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
		WithMaxRetries(2),
		WithBaseBackoff(time.Millisecond),
	)
	require.NoError(t, err)

	got, err := client.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestHTTPClient_Complete_NoRetryOnBadRequest(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := NewClient(
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
		WithMaxRetries(3),
		WithBaseBackoff(time.Millisecond),
	)
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestHTTPClient_Complete_MaxRetriesExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewClient(
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
		WithMaxRetries(1),
		WithBaseBackoff(time.Millisecond),
	)
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
	assert.Contains(t, err.Error(), "max retries exceeded")
}
