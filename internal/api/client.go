// Package api talks to the telemetry dashboard that stores uploaded sessions.
package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/OCAP2/vehicledyn/pkg/core"
)

// UploadPath is the dashboard endpoint receiving recordings.
const UploadPath = "/api/v1/sessions/add"

// Client handles communication with the telemetry dashboard.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck checks if the dashboard is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthcheck", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus("healthcheck", resp)
}

// formFields are the metadata fields sent ahead of the file.
func (c *Client) formFields(filePath string, meta core.UploadMetadata) [][2]string {
	return [][2]string{
		{"secret", c.apiKey},
		{"filename", filepath.Base(filePath)},
		{"sessionId", meta.SessionID},
		{"trackName", meta.TrackName},
		{"sessionName", meta.SessionName},
		{"scenario", meta.Scenario},
		{"duration", fmt.Sprintf("%f", meta.Duration)},
		{"tickRate", strconv.FormatFloat(meta.TickRate, 'f', -1, 64)},
		{"cars", strconv.Itoa(meta.Cars)},
		{"tag", meta.Tag},
	}
}

// Upload streams an exported session recording to the dashboard as a
// multipart form.
func (c *Client) Upload(ctx context.Context, filePath string, meta core.UploadMetadata) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	errCh := make(chan error, 1)
	go func() {
		err := writeForm(writer, c.formFields(filePath, meta), filepath.Base(filePath), file)
		if cerr := writer.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
		errCh <- err
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+UploadPath, pr)
	if err != nil {
		pr.Close()
		<-errCh
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		pr.Close()
		<-errCh
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("upload", resp); err != nil {
		pr.Close()
		<-errCh
		return err
	}
	return <-errCh
}

func writeForm(w *multipart.Writer, fields [][2]string, name string, r io.Reader) error {
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}
	return nil
}

// checkStatus turns a non-200 response into an error carrying the start of
// the body.
func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return fmt.Errorf("%s returned status %d: %s", op, resp.StatusCode, msg)
	}
	return fmt.Errorf("%s returned status %d", op, resp.StatusCode)
}
