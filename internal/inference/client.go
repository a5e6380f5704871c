package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client talks to the OpenAI-compatible API of a vLLM or SGLang server.
type Client struct {
	baseURL    string // e.g. http://127.0.0.1:30024/v1
	httpClient *http.Client
}

func NewClient(baseURL string, timeout float64) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Duration(timeout * float64(time.Second)),
		},
	}
}

// BaseURL builds the /v1 URL of a server listening on host:port.
func BaseURL(host string, port int) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + "/v1"
}

// Model is one entry of GET /v1/models. MaxModelLen is only reported by vLLM.
type Model struct {
	ID          string `json:"id"`
	Object      string `json:"object"`
	OwnedBy     string `json:"owned_by"`
	MaxModelLen int    `json:"max_model_len"`
}

type modelsResponse struct {
	Data []Model `json:"data"`
}

// ListModels returns the models the server has loaded.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list models: status %d", resp.StatusCode)
	}
	var result modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}
	return result.Data, nil
}

// HealthCheck returns true once the server has at least one model loaded.
func (c *Client) HealthCheck(ctx context.Context) bool {
	models, err := c.ListModels(ctx)
	if err != nil {
		slog.Debug("Inference server not ready", "url", c.baseURL, "error", err)
		return false
	}
	return len(models) > 0
}

// Describe summarizes the loaded models for preflight output.
func (c *Client) Describe(ctx context.Context) (string, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return "", err
	}
	if len(models) == 0 {
		return "", fmt.Errorf("no models loaded at %s", c.baseURL)
	}
	var parts []string
	for _, m := range models {
		if m.MaxModelLen > 0 {
			parts = append(parts, fmt.Sprintf("%s (context %d)", m.ID, m.MaxModelLen))
		} else {
			parts = append(parts, m.ID)
		}
	}
	return strings.Join(parts, ", "), nil
}

// PortOpen reports whether something accepts TCP connections on host:port.
func PortOpen(host string, port int, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
