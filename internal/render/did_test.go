package render

import (
	"context"
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

func TestNewDIDClient_RequiresBaseURL(t *testing.T) {
	_, err := NewDIDClient("")
	assert.ErrorIs(t, err, ErrEndpointRequired)
}

func TestNewDIDClient_RequiresToken(t *testing.T) {
	os.Unsetenv("RENDER_FALLBACK_API_KEY")
	_, err := NewDIDClient("https://api.d-id.com")
	assert.ErrorIs(t, err, ErrTokenNotSet)
}

func TestNewDIDClient_TokenFromEnv(t *testing.T) {
	t.Setenv("RENDER_FALLBACK_API_KEY", "env-token")

	client, err := NewDIDClient("https://api.d-id.com")
	require.NoError(t, err)
	assert.Equal(t, "env-token", client.token)
}

func TestDIDClient_Submit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/talks", r.URL.Path)
		assert.Equal(t, "Basic test-token", r.Header.Get("Authorization"))

		var req didSubmitRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		require.NoError(t, err)
		assert.Equal(t, "img-b64", req.SourceImage)
		assert.Equal(t, "wav-b64", req.AudioBase64)

		json.NewEncoder(w).Encode(didSubmitResponse{ID: "talk-123"})
	}))
	defer server.Close()

	client, err := NewDIDClient(server.URL, WithDIDToken("test-token"))
	require.NoError(t, err)

	jobID, err := client.Submit(context.Background(), "img-b64", "wav-b64")
	require.NoError(t, err)
	assert.Equal(t, "talk-123", jobID)
}

func TestDIDClient_Poll(t *testing.T) {
	tests := []struct {
		name           string
		responseStatus string
		expectedStatus Status
	}{
		{"created", "created", StatusPending},
		{"pending", "pending", StatusPending},
		{"started", "started", StatusRunning},
		{"done", "done", StatusCompleted},
		{"error", "error", StatusFailed},
		{"rejected", "rejected", StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/talks/talk-123", r.URL.Path)
				resp := didStatusResponse{Status: tt.responseStatus}
				if tt.responseStatus == "done" {
					resp.ResultURL = "https://cdn.example.com/talk-123.mp4"
				}
				json.NewEncoder(w).Encode(resp)
			}))
			defer server.Close()

			client, err := NewDIDClient(server.URL, WithDIDToken("test-token"))
			require.NoError(t, err)

			result, err := client.Poll(context.Background(), "talk-123")
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, result.Status)
			if tt.expectedStatus == StatusCompleted {
				assert.NotEmpty(t, result.VideoURL)
			}
		})
	}
}

func TestDIDClient_Poll_CompletedWithoutURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(didStatusResponse{Status: "done"})
	}))
	defer server.Close()

	client, err := NewDIDClient(server.URL, WithDIDToken("test-token"))
	require.NoError(t, err)

	result, err := client.Poll(context.Background(), "talk-123")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Empty(t, result.VideoURL)
	assert.NotEmpty(t, result.Error)
}

func TestDIDClient_DownloadOutput(t *testing.T) {
	video := []byte("mp4-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(video)
	}))
	defer server.Close()

	client, err := NewDIDClient("https://api.d-id.com", WithDIDToken("test-token"))
	require.NoError(t, err)

	destPath := filepath.Join(t.TempDir(), "out.mp4")
	err = client.DownloadOutput(context.Background(), server.URL, destPath)
	require.NoError(t, err)

	data, err := os.ReadFile(destPath)
	require.NoError(t, err)
	assert.Equal(t, video, data)
}

func TestDIDClient_DownloadOutput_EmptyURL(t *testing.T) {
	client, err := NewDIDClient("https://api.d-id.com", WithDIDToken("test-token"))
	require.NoError(t, err)

	err = client.DownloadOutput(context.Background(), "", "/tmp/out.mp4")
	assert.ErrorIs(t, err, ErrNoOutputURL)
}

func TestDIDClient_RenderClip(t *testing.T) {
	tmpDir := t.TempDir()
	imagePath := filepath.Join(tmpDir, "slide.png")
	audioPath := filepath.Join(tmpDir, "narration.wav")
	require.NoError(t, os.WriteFile(imagePath, []byte("png-bytes"), 0600))
	require.NoError(t, os.WriteFile(audioPath, []byte("wav-bytes"), 0600))

	video := []byte("mp4-bytes")
	polls := 0
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/talks":
			json.NewEncoder(w).Encode(didSubmitResponse{ID: "talk-123"})
		case strings.HasPrefix(r.URL.Path, "/talks/"):
			polls++
			if polls < 2 {
				json.NewEncoder(w).Encode(didStatusResponse{Status: "started"})
				return
			}
			json.NewEncoder(w).Encode(didStatusResponse{
				Status:    "done",
				ResultURL: server.URL + "/download/talk-123.mp4",
			})
		case strings.HasPrefix(r.URL.Path, "/download/"):
			w.Write(video)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client, err := NewDIDClient(server.URL,
		WithDIDToken("test-token"),
		WithDIDPollInterval(time.Millisecond),
		WithDIDMaxPolls(10),
	)
	require.NoError(t, err)

	destPath := filepath.Join(tmpDir, "avatar.mp4")
	err = client.RenderClip(context.Background(), imagePath, audioPath, destPath)
	require.NoError(t, err)

	data, err := os.ReadFile(destPath)
	require.NoError(t, err)
	assert.Equal(t, video, data)
}

func TestDIDClient_RenderClip_JobRejected(t *testing.T) {
	tmpDir := t.TempDir()
	imagePath := filepath.Join(tmpDir, "slide.png")
	audioPath := filepath.Join(tmpDir, "narration.wav")
	require.NoError(t, os.WriteFile(imagePath, []byte("png"), 0600))
	require.NoError(t, os.WriteFile(audioPath, []byte("wav"), 0600))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(didSubmitResponse{ID: "talk-123"})
			return
		}
		json.NewEncoder(w).Encode(didStatusResponse{Status: "rejected", Error: "no face in image"})
	}))
	defer server.Close()

	client, err := NewDIDClient(server.URL,
		WithDIDToken("test-token"),
		WithDIDPollInterval(time.Millisecond),
	)
	require.NoError(t, err)

	err = client.RenderClip(context.Background(), imagePath, audioPath, filepath.Join(tmpDir, "out.mp4"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRenderFailed)
	assert.Contains(t, err.Error(), "no face in image")
}

func TestStatus_IsTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "expected %s to be terminal", s)
	}
	for _, s := range []Status{StatusPending, StatusRunning} {
		assert.False(t, s.IsTerminal(), "expected %s not to be terminal", s)
	}
}
