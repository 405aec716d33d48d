package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/OCAP2/vehicledyn/pkg/core"
)

func TestNew(t *testing.T) {
	c := New("http://localhost:5000", "secret123")

	if c == nil {
		t.Fatal("New returned nil")
	}
	if c.baseURL != "http://localhost:5000" {
		t.Errorf("expected baseURL=http://localhost:5000, got %s", c.baseURL)
	}
	if c.apiKey != "secret123" {
		t.Errorf("expected apiKey=secret123, got %s", c.apiKey)
	}
	if c.httpClient == nil {
		t.Error("httpClient is nil")
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:5000/", "secret")
	if c.baseURL != "http://localhost:5000" {
		t.Errorf("expected trailing slash trimmed, got %s", c.baseURL)
	}
}

func TestHealthcheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"ok", http.StatusOK, false},
		{"server error", http.StatusInternalServerError, true},
		{"not found", http.StatusNotFound, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/healthcheck" {
					t.Errorf("expected path /healthcheck, got %s", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := New(server.URL, "").Healthcheck(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Healthcheck() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHealthcheck_ServerDown(t *testing.T) {
	c := New("http://127.0.0.1:1", "")
	if err := c.Healthcheck(context.Background()); err == nil {
		t.Error("expected error for unreachable server")
	}
}

func TestHealthcheck_Cancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New(server.URL, "").Healthcheck(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func writeRecording(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	return path
}

func TestUpload_Success(t *testing.T) {
	var received map[string]string
	var receivedFile []byte
	var auth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != UploadPath {
			t.Errorf("expected path %s, got %s", UploadPath, r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		auth = r.Header.Get("Authorization")

		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		received = map[string]string{}
		for key, values := range r.MultipartForm.Value {
			received[key] = values[0]
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("failed to get file: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		receivedFile, _ = io.ReadAll(file)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	path := writeRecording(t, "practice_20240115_103000.json.gz", "test content")
	meta := core.UploadMetadata{
		SessionID:   "7f9c",
		TrackName:   "oval",
		SessionName: "Morning Practice",
		Scenario:    "slalom",
		Duration:    95.5,
		TickRate:    60,
		Cars:        3,
		Tag:         "Practice",
	}
	if err := New(server.URL, "mysecret").Upload(context.Background(), path, meta); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	expected := map[string]string{
		"secret":      "mysecret",
		"filename":    "practice_20240115_103000.json.gz",
		"sessionId":   "7f9c",
		"trackName":   "oval",
		"sessionName": "Morning Practice",
		"scenario":    "slalom",
		"duration":    "95.500000",
		"tickRate":    "60",
		"cars":        "3",
		"tag":         "Practice",
	}
	for key, want := range expected {
		if received[key] != want {
			t.Errorf("expected %s=%s, got %s", key, want, received[key])
		}
	}
	if auth != "Bearer mysecret" {
		t.Errorf("expected bearer auth header, got %q", auth)
	}
	if string(receivedFile) != "test content" {
		t.Errorf("expected file content 'test content', got '%s'", string(receivedFile))
	}
}

func TestUpload_FileNotFound(t *testing.T) {
	c := New("http://localhost:5000", "secret")
	if err := c.Upload(context.Background(), "/nonexistent/file.json.gz", core.UploadMetadata{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestUpload_ServerErrorIncludesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, "bad secret\n")
	}))
	defer server.Close()

	path := writeRecording(t, "test.json.gz", "content")
	err := New(server.URL, "wrong-secret").Upload(context.Background(), path, core.UploadMetadata{})
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "bad secret") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestUpload_ServerDown(t *testing.T) {
	path := writeRecording(t, "test.json.gz", "content")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := New("http://127.0.0.1:1", "").Upload(ctx, path, core.UploadMetadata{}); err == nil {
		t.Error("expected error for unreachable server")
	}
}
