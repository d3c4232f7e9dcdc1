package real

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/KazimAndrei/HollyProject/internal/api"
	"github.com/KazimAndrei/HollyProject/internal/models"
)

const (
	openaiAPIURL = "https://api.openai.com/v1/chat/completions"

	systemPrompt = "You are a respectful Bible assistant. Always cite at least two verses in 'Book Chapter:Verse' format. " +
		"Keep quotes concise. Do not invent references."
)

// GeneratorConfig configures the chat-completions client.
type GeneratorConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	Temperature float64
}

// OpenAIGenerator answers questions through an OpenAI-compatible chat completions endpoint.
type OpenAIGenerator struct {
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	client      *http.Client
	logger      zerolog.Logger
}

func NewOpenAIGenerator(cfg GeneratorConfig, logger zerolog.Logger) *OpenAIGenerator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = openaiAPIURL
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OpenAIGenerator{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		baseURL:     cfg.BaseURL,
		temperature: cfg.Temperature,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "generator").Logger(),
	}
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []struct {
		Message openaiMessage `json:"message"`
	} `json:"choices"`
}

type openaiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate returns the model's answer. Failures come back as *api.GenerationError.
func (g *OpenAIGenerator) Generate(ctx context.Context, question string, passages []models.Passage) (string, error) {
	body, err := json.Marshal(openaiRequest{
		Model: g.model,
		Messages: []openaiMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(question, passages)},
		},
		Temperature: g.temperature,
	})
	if err != nil {
		return "", g.fail(http.StatusBadGateway, api.GenerationCodeError, fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", g.fail(http.StatusBadGateway, api.GenerationCodeError, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", g.fail(http.StatusGatewayTimeout, api.GenerationCodeTimeout, err)
		}
		return "", g.fail(http.StatusBadGateway, api.GenerationCodeError, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return "", g.fail(http.StatusGatewayTimeout, api.GenerationCodeTimeout, err)
		}
		return "", g.fail(http.StatusBadGateway, api.GenerationCodeError, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := fmt.Errorf("API error (%d)", resp.StatusCode)
		var errResp openaiError
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			apiErr = fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusTooManyRequests {
			return "", g.fail(http.StatusBadGateway, api.GenerationCodeUnavailable, apiErr)
		}
		return "", g.fail(http.StatusBadGateway, api.GenerationCodeError, apiErr)
	}

	var out openaiResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", g.fail(http.StatusBadGateway, api.GenerationCodeError, fmt.Errorf("failed to decode response: %w", err))
	}
	if len(out.Choices) == 0 {
		return "", g.fail(http.StatusBadGateway, api.GenerationCodeError, errors.New("response has no choices"))
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (g *OpenAIGenerator) fail(status int, code string, err error) error {
	g.logger.Error().Err(err).Str("code", code).Msg("Generation failed")
	return &api.GenerationError{Status: status, Code: code, Err: err}
}

func buildPrompt(question string, passages []models.Passage) string {
	var b strings.Builder
	b.WriteString("Answer the user's question using the verses below. Cite at least two verses.\n\n")
	for _, p := range passages {
		if p.Text == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s %s: %s\n", p.Translation, p.Ref, p.Text)
	}
	fmt.Fprintf(&b, "\nQuestion: %s", question)
	return b.String()
}
