package render

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSadTalkerClient_RequiresEndpoint(t *testing.T) {
	_, err := NewSadTalkerClient("")
	assert.ErrorIs(t, err, ErrEndpointRequired)
}

func TestNewSadTalkerClient_RequiresAPIKey(t *testing.T) {
	os.Unsetenv("RENDER_API_KEY")
	_, err := NewSadTalkerClient("https://api.example.com/v2/abc")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestNewSadTalkerClient_APIKeyFromEnv(t *testing.T) {
	t.Setenv("RENDER_API_KEY", "env-key")

	client, err := NewSadTalkerClient("https://api.example.com/v2/abc")
	require.NoError(t, err)
	assert.Equal(t, "env-key", client.apiKey)
}

func TestSadTalkerClient_Submit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/run", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req sadTalkerSubmitRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		require.NoError(t, err)
		assert.Equal(t, "img-b64", req.Input.ImageBase64)
		assert.Equal(t, "wav-b64", req.Input.WavBase64)
		assert.True(t, req.Input.Still)

		json.NewEncoder(w).Encode(sadTalkerSubmitResponse{ID: "job-123"})
	}))
	defer server.Close()

	client, err := NewSadTalkerClient(server.URL, WithSadTalkerAPIKey("test-key"))
	require.NoError(t, err)

	jobID, err := client.Submit(context.Background(), "img-b64", "wav-b64")
	require.NoError(t, err)
	assert.Equal(t, "job-123", jobID)
}

func TestSadTalkerClient_Submit_NoJobID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(sadTalkerSubmitResponse{})
	}))
	defer server.Close()

	client, err := NewSadTalkerClient(server.URL, WithSadTalkerAPIKey("test-key"))
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), "img", "wav")
	assert.ErrorIs(t, err, ErrNoJobIDReturned)
}

func TestSadTalkerClient_Poll(t *testing.T) {
	tests := []struct {
		name           string
		responseStatus string
		expectedStatus Status
	}{
		{"in queue", "IN_QUEUE", StatusPending},
		{"in progress", "IN_PROGRESS", StatusRunning},
		{"completed", "COMPLETED", StatusCompleted},
		{"failed", "FAILED", StatusFailed},
		{"cancelled", "CANCELLED", StatusCancelled},
		{"timed out", "TIMED_OUT", StatusTimedOut},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/status/job-123", r.URL.Path)
				json.NewEncoder(w).Encode(sadTalkerStatusResponse{Status: tt.responseStatus})
			}))
			defer server.Close()

			client, err := NewSadTalkerClient(server.URL, WithSadTalkerAPIKey("test-key"))
			require.NoError(t, err)

			result, err := client.Poll(context.Background(), "job-123")
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, result.Status)
		})
	}
}

func TestSadTalkerClient_Poll_RequiresJobID(t *testing.T) {
	client, err := NewSadTalkerClient("https://api.example.com", WithSadTalkerAPIKey("test-key"))
	require.NoError(t, err)

	_, err = client.Poll(context.Background(), "")
	assert.ErrorIs(t, err, ErrJobIDRequired)
}

func TestSadTalkerClient_RenderClip(t *testing.T) {
	tmpDir := t.TempDir()
	imagePath := filepath.Join(tmpDir, "slide.png")
	audioPath := filepath.Join(tmpDir, "narration.wav")
	require.NoError(t, os.WriteFile(imagePath, []byte("png-bytes"), 0600))
	require.NoError(t, os.WriteFile(audioPath, []byte("wav-bytes"), 0600))

	video := []byte("mp4-bytes")
	polls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/run":
			json.NewEncoder(w).Encode(sadTalkerSubmitResponse{ID: "job-123"})
		case strings.HasPrefix(r.URL.Path, "/status/"):
			polls++
			if polls < 2 {
				json.NewEncoder(w).Encode(sadTalkerStatusResponse{Status: "IN_PROGRESS"})
				return
			}
			resp := sadTalkerStatusResponse{Status: "COMPLETED"}
			resp.Output.Video = base64.StdEncoding.EncodeToString(video)
			json.NewEncoder(w).Encode(resp)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client, err := NewSadTalkerClient(server.URL,
		WithSadTalkerAPIKey("test-key"),
		WithSadTalkerPollInterval(time.Millisecond),
		WithSadTalkerMaxPolls(10),
	)
	require.NoError(t, err)

	destPath := filepath.Join(tmpDir, "avatar.mp4")
	err = client.RenderClip(context.Background(), imagePath, audioPath, destPath)
	require.NoError(t, err)

	data, err := os.ReadFile(destPath)
	require.NoError(t, err)
	assert.Equal(t, video, data)
}

func TestSadTalkerClient_RenderClip_JobFails(t *testing.T) {
	tmpDir := t.TempDir()
	imagePath := filepath.Join(tmpDir, "slide.png")
	audioPath := filepath.Join(tmpDir, "narration.wav")
	require.NoError(t, os.WriteFile(imagePath, []byte("png"), 0600))
	require.NoError(t, os.WriteFile(audioPath, []byte("wav"), 0600))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/run" {
			json.NewEncoder(w).Encode(sadTalkerSubmitResponse{ID: "job-123"})
			return
		}
		json.NewEncoder(w).Encode(sadTalkerStatusResponse{Status: "FAILED", Error: "face not detected"})
	}))
	defer server.Close()

	client, err := NewSadTalkerClient(server.URL,
		WithSadTalkerAPIKey("test-key"),
		WithSadTalkerPollInterval(time.Millisecond),
	)
	require.NoError(t, err)

	err = client.RenderClip(context.Background(), imagePath, audioPath, filepath.Join(tmpDir, "out.mp4"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRenderFailed)
	assert.Contains(t, err.Error(), "face not detected")
}

func TestSadTalkerClient_RenderClip_PollBudgetExceeded(t *testing.T) {
	tmpDir := t.TempDir()
	imagePath := filepath.Join(tmpDir, "slide.png")
	audioPath := filepath.Join(tmpDir, "narration.wav")
	require.NoError(t, os.WriteFile(imagePath, []byte("png"), 0600))
	require.NoError(t, os.WriteFile(audioPath, []byte("wav"), 0600))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/run" {
			json.NewEncoder(w).Encode(sadTalkerSubmitResponse{ID: "job-123"})
			return
		}
		json.NewEncoder(w).Encode(sadTalkerStatusResponse{Status: "IN_PROGRESS"})
	}))
	defer server.Close()

	client, err := NewSadTalkerClient(server.URL,
		WithSadTalkerAPIKey("test-key"),
		WithSadTalkerPollInterval(time.Millisecond),
		WithSadTalkerMaxPolls(3),
	)
	require.NoError(t, err)

	err = client.RenderClip(context.Background(), imagePath, audioPath, filepath.Join(tmpDir, "out.mp4"))
	assert.ErrorIs(t, err, ErrPollBudgetExceeded)
}

func TestSadTalkerClient_RenderClip_MissingImage(t *testing.T) {
	client, err := NewSadTalkerClient("https://api.example.com", WithSadTalkerAPIKey("test-key"))
	require.NoError(t, err)

	err = client.RenderClip(context.Background(), "/nonexistent/slide.png", "/nonexistent/a.wav", "/tmp/out.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read")
}

func TestSadTalkerClient_ServerErrors(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
	}{
		{"server error", http.StatusInternalServerError, ErrServerError},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"bad request", http.StatusBadRequest, ErrRequestFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			client, err := NewSadTalkerClient(server.URL, WithSadTalkerAPIKey("test-key"))
			require.NoError(t, err)

			_, err = client.Submit(context.Background(), "img", "wav")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
