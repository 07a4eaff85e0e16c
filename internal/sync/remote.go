// Package sync provides the offline synchronization core: the drain
// service, connectivity monitoring and the national database client.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/swanhtet/medbridge/internal/models"
)

// SubmitResult is the remote endpoint's response to an accepted
// operation. The remote may accept the write and still report that it
// detected divergent concurrent edits.
type SubmitResult struct {
	Conflicts []ConflictReport `json:"conflicts,omitempty"`
}

// ConflictReport describes one divergent record as seen by the remote.
type ConflictReport struct {
	Remote models.RecordVersion `json:"remote"`
}

// RemoteClient is the national database endpoint consumed by the drain
// loop and the connectivity monitor.
type RemoteClient interface {
	// Submit delivers one operation. A nil error means the remote
	// accepted it; the result may still carry conflicts to resolve.
	Submit(ctx context.Context, op *models.SyncOperation) (*SubmitResult, error)

	// Ping probes the remote health endpoint. A nil error means
	// reachable.
	Ping(ctx context.Context) error
}

// HTTPRemoteConfig holds HTTP client construction options.
type HTTPRemoteConfig struct {
	BaseURL       string
	SubmitPath    string // default /api/sync/operations
	HealthPath    string // default /api/health
	AuthToken     string
	SubmitTimeout time.Duration // default 15s
	ProbeTimeout  time.Duration // default 5s
}

// HTTPRemote implements RemoteClient over HTTP with bearer
// authentication and bounded per-attempt deadlines, so a hanging
// request can never stall a drain pass indefinitely.
type HTTPRemote struct {
	baseURL       string
	submitPath    string
	healthPath    string
	authToken     string
	submitTimeout time.Duration
	probeTimeout  time.Duration
	httpClient    *http.Client
}

// NewHTTPRemote creates an HTTPRemote.
func NewHTTPRemote(cfg HTTPRemoteConfig) *HTTPRemote {
	if cfg.SubmitPath == "" {
		cfg.SubmitPath = "/api/sync/operations"
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/api/health"
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 15 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}

	return &HTTPRemote{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		submitPath:    cfg.SubmitPath,
		healthPath:    cfg.HealthPath,
		authToken:     cfg.AuthToken,
		submitTimeout: cfg.SubmitTimeout,
		probeTimeout:  cfg.ProbeTimeout,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// Submit POSTs the full operation record to the submission endpoint.
func (c *HTTPRemote) Submit(ctx context.Context, op *models.SyncOperation) (*SubmitResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	body, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize operation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.submitPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("submit failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	// A 2xx body is optional; an empty or unparsable body just means no
	// reported conflicts.
	var result SubmitResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return &SubmitResult{}, nil
	}
	return &result, nil
}

// Ping issues a lightweight GET against the health endpoint.
func (c *HTTPRemote) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		return err
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health probe failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health probe returned status %d", resp.StatusCode)
	}
	return nil
}
