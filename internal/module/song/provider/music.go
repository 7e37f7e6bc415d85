package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sony/gobreaker/v2"

	"github.com/memora-music/server/internal/shared/config"
)

// GenerationRequest describes one song to compose.
type GenerationRequest struct {
	Title  string   `json:"title"`
	Lyrics string   `json:"lyrics"`
	Style  string   `json:"style"`
	Tags   []string `json:"tags,omitempty"`
	Model  string   `json:"model,omitempty"`
}

// TaskState is the generation task state reported by the provider.
type TaskState string

const (
	TaskPending    TaskState = "pending"
	TaskProcessing TaskState = "processing"
	TaskCompleted  TaskState = "completed"
	TaskFailed     TaskState = "failed"
)

// TaskResult is the provider-side state of a generation task.
type TaskResult struct {
	State     TaskState `json:"status"`
	AudioURLs []string  `json:"audioUrls"`
	Error     string    `json:"error,omitempty"`
}

// MusicClient starts and polls music generation tasks.
type MusicClient interface {
	StartGeneration(ctx context.Context, req GenerationRequest) (string, error)
	CheckTask(ctx context.Context, taskID string) (*TaskResult, error)
}

// HTTPMusicClient talks to the music generation API. A circuit
// breaker shields the service from a flapping upstream.
type HTTPMusicClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// NewMusicClient creates the music API client.
func NewMusicClient(cfg *config.MusicConfig) *HTTPMusicClient {
	threshold := cfg.BreakerThreshold
	if threshold == 0 {
		threshold = 5
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "music-api",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})

	return &HTTPMusicClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		breaker: breaker,
	}
}

func (c *HTTPMusicClient) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			encoded, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("encode request: %w", err)
			}
			reader = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("music api request: %w", err)
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("music api status %d: %s", resp.StatusCode, truncate(payload, 256))
		}
		return payload, nil
	})
}

// StartGeneration submits a generation request and returns the task id.
func (c *HTTPMusicClient) StartGeneration(ctx context.Context, req GenerationRequest) (string, error) {
	if req.Model == "" {
		req.Model = c.model
	}

	payload, err := c.do(ctx, http.MethodPost, "/generate", req)
	if err != nil {
		return "", err
	}

	var result struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return "", fmt.Errorf("decode generation response: %w", err)
	}
	if result.TaskID == "" {
		return "", fmt.Errorf("music api returned no task id")
	}
	return result.TaskID, nil
}

// CheckTask fetches the current state of a generation task.
func (c *HTTPMusicClient) CheckTask(ctx context.Context, taskID string) (*TaskResult, error) {
	payload, err := c.do(ctx, http.MethodGet, "/tasks/"+taskID, nil)
	if err != nil {
		return nil, err
	}

	var result TaskResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode task response: %w", err)
	}
	return &result, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
