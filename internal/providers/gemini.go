package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel   = "gemini-2.5-flash"
	geminiTemperature    = 0.3
)

// GeminiConfig holds settings for the Gemini provider
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// GeminiProvider implements Provider against the Google generative
// language REST API. It is the primary generation backend.
type GeminiProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewGeminiProvider creates a new Gemini provider instance
func NewGeminiProvider(cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required for Gemini provider")
	}

	model := cfg.Model
	if model == "" {
		model = geminiDefaultModel
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &GeminiProvider{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		client:  client,
	}, nil
}

// Name returns the provider identifier
func (p *GeminiProvider) Name() string {
	return "gemini"
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate sends a generateContent request to Gemini
func (p *GeminiProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: req.Prompt}}},
		},
		GenerationConfig: geminiGenConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     geminiTemperature,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, p.model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &Error{Kind: ErrTimeout, Message: "gemini call timed out"}
		}
		return nil, &Error{Kind: ErrServer, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: ErrServer, Message: fmt.Sprintf("failed to read response: %v", err)}
	}

	var decoded geminiResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, &Error{Kind: ErrServer, Status: resp.StatusCode, Message: "undecodable response"}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Kind:    classifyGeminiError(resp.StatusCode, decoded.Error.Message),
			Status:  resp.StatusCode,
			Message: decoded.Error.Message,
		}
	}

	if len(decoded.Candidates) == 0 {
		return nil, &Error{Kind: ErrServer, Status: resp.StatusCode, Message: "empty response from gemini"}
	}

	candidate := decoded.Candidates[0]
	if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "PROHIBITED_CONTENT" {
		return nil, &Error{Kind: ErrPolicy, Message: "response blocked by content policy"}
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}
	if text.Len() == 0 {
		return nil, &Error{Kind: ErrServer, Message: "empty candidate text"}
	}

	return &Result{
		Text:         strings.TrimSpace(text.String()),
		InputTokens:  decoded.UsageMetadata.PromptTokenCount,
		OutputTokens: decoded.UsageMetadata.CandidatesTokenCount,
		Latency:      time.Since(start),
	}, nil
}

// classifyGeminiError refines the status-based classification with the
// message, since Gemini reports quota problems both ways
func classifyGeminiError(status int, message string) ErrorKind {
	lower := strings.ToLower(message)
	if strings.Contains(lower, "quota") || strings.Contains(lower, "rate") {
		return ErrThrottled
	}
	if strings.Contains(lower, "api key") {
		return ErrAuth
	}
	return classifyStatus(status)
}

// Close cleans up resources
func (p *GeminiProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
