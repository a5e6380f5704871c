package unstructured

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	partitionPath   = "/general/v0/general"
	healthcheckPath = "/healthcheck"
	maxErrorBody    = 4096
)

// Client calls a running unstructured-api service.
type Client struct {
	baseURL    string // e.g. http://127.0.0.1:8000
	httpClient *http.Client
}

// NewClient creates a client. A zero timeout leaves request lifetimes to the
// caller's context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Element is one partitioned document element.
type Element struct {
	Type      string         `json:"type"`
	ElementID string         `json:"element_id"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unstructured-api returned status %d", e.Code)
	}
	return fmt.Sprintf("unstructured-api returned status %d: %s", e.Code, e.Body)
}

// HealthCheck returns nil when the service answers its health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthcheckPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Partition uploads the PDF at path and returns the decoded elements along
// with the raw response body.
func (c *Client) Partition(ctx context.Context, path, strategy string) ([]Element, []byte, error) {
	body, contentType, err := multipartBody(path, strategy)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+partitionPath, body)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("partition request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read partition response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, nil, &StatusError{Code: resp.StatusCode, Body: msg}
	}

	var elements []Element
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil, nil, fmt.Errorf("decode partition response: %w", err)
	}
	return elements, raw, nil
}

func multipartBody(path, strategy string) (*bytes.Buffer, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	if strategy != "" {
		if err := w.WriteField("strategy", strategy); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
