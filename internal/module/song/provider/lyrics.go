package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/memora-music/server/internal/shared/config"
)

// LyricsBrief describes the song the user wants.
type LyricsBrief struct {
	Recipient string
	Occasion  string
	Style     string
	Details   string
}

// LyricsResult is a generated title and lyrics.
type LyricsResult struct {
	Title  string
	Lyrics string
}

// LyricsClient generates song lyrics from a brief.
type LyricsClient interface {
	GenerateLyrics(ctx context.Context, brief LyricsBrief) (*LyricsResult, error)
}

// OpenAILyricsClient calls an OpenAI-compatible chat completions API.
type OpenAILyricsClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewLyricsClient creates the lyrics client.
func NewLyricsClient(cfg *config.LyricsConfig) *OpenAILyricsClient {
	return &OpenAILyricsClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
	}
}

const lyricsSystemPrompt = "Você é um compositor de músicas personalizadas em português brasileiro. " +
	"Responda somente com JSON no formato {\"title\": \"...\", \"lyrics\": \"...\"}."

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GenerateLyrics produces a title and lyrics for the brief.
func (c *OpenAILyricsClient) GenerateLyrics(ctx context.Context, brief LyricsBrief) (*LyricsResult, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Escreva uma música para %s", brief.Recipient)
	if brief.Occasion != "" {
		fmt.Fprintf(&prompt, " por ocasião de %s", brief.Occasion)
	}
	if brief.Style != "" {
		fmt.Fprintf(&prompt, ", no estilo %s", brief.Style)
	}
	if brief.Details != "" {
		fmt.Fprintf(&prompt, ". Detalhes: %s", brief.Details)
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: lyricsSystemPrompt},
			{Role: "user", Content: prompt.String()},
		},
	}
	reqBody.ResponseFormat = &struct {
		Type string `json:"type"`
	}{Type: "json_object"}

	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode lyrics request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build lyrics request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lyrics api request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read lyrics response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("lyrics api status %d: %s", resp.StatusCode, truncate(payload, 256))
	}

	var chat chatResponse
	if err := json.Unmarshal(payload, &chat); err != nil {
		return nil, fmt.Errorf("decode lyrics response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("lyrics api returned no choices")
	}

	var result LyricsResult
	content := chat.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("decode lyrics content: %w", err)
	}
	if result.Lyrics == "" {
		return nil, fmt.Errorf("lyrics api returned empty lyrics")
	}
	return &result, nil
}
